package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"backtestapi/src/database"
	"backtestapi/src/model"
	"backtestapi/src/repository"
)

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type mockEventPublisher struct {
	events []string
}

func (m *mockEventPublisher) PublishRunEvent(runID, status string) {
	m.events = append(m.events, runID+":"+status)
}

type mockRunCreator struct {
	created     *model.BacktestRun
	err         error
	calledCount int
}

func (m *mockRunCreator) Create(ctx context.Context, run *model.BacktestRun) error {
	m.calledCount++
	m.created = run
	return m.err
}

type mockRunFinder struct {
	run         *model.BacktestRun
	err         error
	requestedID string
}

func (m *mockRunFinder) FindByID(ctx context.Context, id string) (*model.BacktestRun, error) {
	m.requestedID = id
	return m.run, m.err
}

type mockRunSearcher struct {
	runs        []model.BacktestRun
	err         error
	options     repository.RunSearchOptions
	calledCount int
}

func (m *mockRunSearcher) Search(ctx context.Context, options repository.RunSearchOptions) ([]model.BacktestRun, error) {
	m.calledCount++
	m.options = options
	return m.runs, m.err
}

type mockRunDeleter struct {
	deleted     bool
	err         error
	requestedID string
}

func (m *mockRunDeleter) Delete(ctx context.Context, runID string) (bool, error) {
	m.requestedID = runID
	return m.deleted, m.err
}

func submitBody(t *testing.T, params map[string]float64) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"strategy": map[string]interface{}{
			"type":   model.StrategyMovingAverageCrossover,
			"params": params,
			"position_sizing": map[string]interface{}{
				"mode":  model.SizingFixed,
				"value": "10000",
			},
		},
		"symbols":         []string{"AAPL", "MSFT"},
		"start_date":      "2024-01-02T00:00:00Z",
		"end_date":        "2024-06-28T00:00:00Z",
		"initial_capital": "100000",
	})
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return bytes.NewBuffer(body)
}

func TestSubmitRunHandler_Success(t *testing.T) {
	creator := &mockRunCreator{}
	events := &mockEventPublisher{}
	handler := SubmitRunHandler(creator, events)

	req := httptest.NewRequest(http.MethodPost, "/backtest/runs", submitBody(t, map[string]float64{"fastPeriod": 10, "slowPeriod": 30}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	if creator.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", creator.calledCount)
	}

	var run model.BacktestRun
	if err := json.NewDecoder(rr.Body).Decode(&run); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected a generated run id")
	}
	if run.Status != model.RunStatusPending {
		t.Fatalf("expected pending status, got %s", run.Status)
	}
	if creator.created.ID != run.ID {
		t.Fatalf("persisted id %s does not match response id %s", creator.created.ID, run.ID)
	}

	if len(events.events) != 1 || events.events[0] != run.ID+":pending" {
		t.Fatalf("expected one pending event, got %v", events.events)
	}
}

func TestSubmitRunHandler_InvalidBody(t *testing.T) {
	creator := &mockRunCreator{}
	handler := SubmitRunHandler(creator, nil)

	req := httptest.NewRequest(http.MethodPost, "/backtest/runs", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if creator.calledCount != 0 {
		t.Fatal("expected nothing persisted for an unreadable body")
	}
}

func TestSubmitRunHandler_InvalidConfig(t *testing.T) {
	creator := &mockRunCreator{}
	handler := SubmitRunHandler(creator, nil)

	req := httptest.NewRequest(http.MethodPost, "/backtest/runs", submitBody(t, map[string]float64{"fastPeriod": 30, "slowPeriod": 10}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if creator.calledCount != 0 {
		t.Fatal("expected nothing persisted for an invalid config")
	}

	var envelope map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if envelope["error"] == "" {
		t.Fatal("expected the validation reason in the error envelope")
	}
}

func TestSubmitRunHandler_RepoError(t *testing.T) {
	creator := &mockRunCreator{err: assert.AnError}
	handler := SubmitRunHandler(creator, nil)

	req := httptest.NewRequest(http.MethodPost, "/backtest/runs", submitBody(t, map[string]float64{"fastPeriod": 10, "slowPeriod": 30}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestSearchRunsHandler_Success(t *testing.T) {
	searcher := &mockRunSearcher{runs: []model.BacktestRun{{ID: "run-1"}}}
	handler := SearchRunsHandler(searcher)

	req := httptest.NewRequest(http.MethodGet, "/backtest/runs?status=completed&page=2&pageSize=5", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if searcher.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", searcher.calledCount)
	}
	if searcher.options.Status == nil || *searcher.options.Status != "completed" {
		t.Fatalf("expected status filter completed, got %v", searcher.options.Status)
	}
	if searcher.options.Limit != 5 || searcher.options.Offset != 5 {
		t.Fatalf("expected limit 5 offset 5, got limit=%d offset=%d", searcher.options.Limit, searcher.options.Offset)
	}
}

func TestSearchRunsHandler_InvalidStatus(t *testing.T) {
	handler := SearchRunsHandler(&mockRunSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/backtest/runs?status=bogus", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchRunsHandler_InvalidPagination(t *testing.T) {
	handler := SearchRunsHandler(&mockRunSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/backtest/runs?page=0", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchRunsHandler_EmptyResultIsArray(t *testing.T) {
	handler := SearchRunsHandler(&mockRunSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/backtest/runs", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty JSON array, got %q", rr.Body.String())
	}
}

func TestGetRunHandler_Success(t *testing.T) {
	completed := time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC)
	finder := &mockRunFinder{run: &model.BacktestRun{
		ID:          "run-1",
		Status:      model.RunStatusCompleted,
		CompletedAt: &completed,
	}}
	handler := GetRunHandler(finder)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/backtest/runs/run-1", nil), "runID", "run-1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if finder.requestedID != "run-1" {
		t.Fatalf("expected lookup of run-1, got %s", finder.requestedID)
	}

	var run model.BacktestRun
	if err := json.NewDecoder(rr.Body).Decode(&run); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if run.ID != "run-1" || run.Status != model.RunStatusCompleted {
		t.Fatalf("unexpected run payload: %+v", run)
	}
}

func TestGetRunHandler_NotFound(t *testing.T) {
	handler := GetRunHandler(&mockRunFinder{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/backtest/runs/missing", nil), "runID", "missing")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestDeleteRunHandler_CancelsAndDeletes(t *testing.T) {
	deleter := &mockRunDeleter{deleted: true}
	events := &mockEventPublisher{}
	var cancelled string
	handler := DeleteRunHandler(deleter, func(runID string) bool {
		cancelled = runID
		return true
	}, events)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/backtest/runs/run-1", nil), "runID", "run-1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if cancelled != "run-1" {
		t.Fatalf("expected in-flight cancel of run-1, got %q", cancelled)
	}
	if deleter.requestedID != "run-1" {
		t.Fatalf("expected delete of run-1, got %s", deleter.requestedID)
	}
	if len(events.events) != 1 || events.events[0] != "run-1:deleted" {
		t.Fatalf("expected one deleted event, got %v", events.events)
	}
}

func TestDeleteRunHandler_IdempotentWhenMissing(t *testing.T) {
	deleter := &mockRunDeleter{deleted: false}
	events := &mockEventPublisher{}
	handler := DeleteRunHandler(deleter, func(string) bool { return false }, events)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/backtest/runs/missing", nil), "runID", "missing")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 for an unknown run, got %d", rr.Code)
	}
	if len(events.events) != 0 {
		t.Fatalf("expected no event for an unknown run, got %v", events.events)
	}
}

func openMigratedDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.BacktestRun{}))
	return db
}

// The Default wirings of the GET endpoints serve from the read-only
// pool. A run visible only through that pool must still come back,
// which fails if any query slips over to the main pool.
func TestDefaultGetRunHandlerServesFromReadOnlyPool(t *testing.T) {
	readDB := openMigratedDB(t)
	mainDB := openMigratedDB(t)

	prevMain, prevRead := database.MainDB, database.ReadOnlyDB
	database.MainDB, database.ReadOnlyDB = mainDB, readDB
	t.Cleanup(func() { database.MainDB, database.ReadOnlyDB = prevMain, prevRead })

	run := &model.BacktestRun{
		ID:             "run-ro",
		Status:         model.RunStatusCompleted,
		Symbols:        []string{"AAPL"},
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: decimal.NewFromInt(100000),
	}
	require.NoError(t, readDB.Create(run).Error)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/backtest/runs/run-ro", nil), "runID", "run-ro")
	rr := httptest.NewRecorder()
	DefaultGetRunHandler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got model.BacktestRun
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "run-ro", got.ID)

	listReq := httptest.NewRequest(http.MethodGet, "/backtest/runs", nil)
	listRR := httptest.NewRecorder()
	DefaultSearchRunsHandler().ServeHTTP(listRR, listReq)

	require.Equal(t, http.StatusOK, listRR.Code)
	var listed []model.BacktestRun
	require.NoError(t, json.NewDecoder(listRR.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "run-ro", listed[0].ID)
}
