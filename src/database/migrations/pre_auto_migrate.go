package migrations

import (
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// PrepareLegacySymbolColumns normalizes schemas that previously stored run
// symbols as comma separated text and strategy configs as plain text so
// that AutoMigrate can bring both to jsonb without failing casts.
func PrepareLegacySymbolColumns(db *gorm.DB) error {
	columnType, exists, err := lookupColumnType(db, "backtest_runs", "symbols")
	if err != nil {
		return fmt.Errorf("inspect backtest_runs.symbols: %w", err)
	}
	if exists && isStringy(columnType) {
		if err := db.Exec(
			"ALTER TABLE backtest_runs ALTER COLUMN symbols TYPE jsonb USING to_jsonb(string_to_array(symbols, ','))",
		).Error; err != nil {
			return fmt.Errorf("convert backtest_runs.symbols to jsonb: %w", err)
		}
	}

	columnType, exists, err = lookupColumnType(db, "backtest_runs", "strategy")
	if err != nil {
		return fmt.Errorf("inspect backtest_runs.strategy: %w", err)
	}
	if exists && isStringy(columnType) {
		if err := db.Exec(
			"ALTER TABLE backtest_runs ALTER COLUMN strategy TYPE jsonb USING strategy::jsonb",
		).Error; err != nil {
			return fmt.Errorf("convert backtest_runs.strategy to jsonb: %w", err)
		}
	}

	return nil
}

func lookupColumnType(db *gorm.DB, table, column string) (dataType string, exists bool, err error) {
	row := db.Raw(
		`SELECT data_type FROM information_schema.columns WHERE table_name = ? AND column_name = ?`,
		table,
		column,
	).Row()

	if scanErr := row.Scan(&dataType); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, scanErr
	}

	return dataType, true, nil
}

func isStringy(dataType string) bool {
	dataType = strings.ToLower(dataType)
	return strings.Contains(dataType, "char") || dataType == "text"
}
