package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"backtestapi/src/model"
)

type mockPriceBarFinder struct {
	bars        []model.PriceBar
	err         error
	symbol      string
	from        time.Time
	to          time.Time
	calledCount int
}

func (m *mockPriceBarFinder) FindRange(ctx context.Context, symbol string, from, to time.Time) ([]model.PriceBar, error) {
	m.calledCount++
	m.symbol = symbol
	m.from = from
	m.to = to
	return m.bars, m.err
}

func TestGetPriceBarsHandler_Success(t *testing.T) {
	finder := &mockPriceBarFinder{bars: []model.PriceBar{{
		Symbol: "AAPL",
		Date:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Close:  decimal.RequireFromString("187.5"),
	}}}
	handler := GetPriceBarsHandler(finder)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/pricebars/AAPL?start=2024-01-02&end=2024-06-28", nil), "symbol", "AAPL")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if finder.symbol != "AAPL" {
		t.Fatalf("expected symbol AAPL, got %s", finder.symbol)
	}
	if !finder.from.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", finder.from)
	}
	if !finder.to.Equal(time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %v", finder.to)
	}
	if rr.Body.String() == "" {
		t.Fatal("expected response body to be set")
	}
}

func TestGetPriceBarsHandler_DefaultsToLastYear(t *testing.T) {
	finder := &mockPriceBarFinder{}
	handler := GetPriceBarsHandler(finder)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/pricebars/AAPL", nil), "symbol", "AAPL")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if finder.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", finder.calledCount)
	}
	if !finder.from.Equal(finder.to.AddDate(-1, 0, 0)) {
		t.Fatalf("expected a one year default window, got %v .. %v", finder.from, finder.to)
	}
}

func TestGetPriceBarsHandler_InvalidDate(t *testing.T) {
	handler := GetPriceBarsHandler(&mockPriceBarFinder{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/pricebars/AAPL?start=notadate", nil), "symbol", "AAPL")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestGetPriceBarsHandler_StartAfterEnd(t *testing.T) {
	handler := GetPriceBarsHandler(&mockPriceBarFinder{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/pricebars/AAPL?start=2024-06-28&end=2024-01-02", nil), "symbol", "AAPL")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestGetPriceBarsHandler_EmptyResultIsArray(t *testing.T) {
	handler := GetPriceBarsHandler(&mockPriceBarFinder{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/pricebars/NVDA", nil), "symbol", "NVDA")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty JSON array, got %q", rr.Body.String())
	}
}

type mockSymbolLister struct {
	symbols []string
	err     error
}

func (m *mockSymbolLister) Symbols(ctx context.Context) ([]string, error) {
	return m.symbols, m.err
}

func TestListSymbolsHandler(t *testing.T) {
	handler := ListSymbolsHandler(&mockSymbolLister{symbols: []string{"AAPL", "BTC_USDT", "MSFT"}})

	req := httptest.NewRequest(http.MethodGet, "/symbols", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "[\"AAPL\",\"BTC_USDT\",\"MSFT\"]\n" {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestListSymbolsHandler_EmptyResultIsArray(t *testing.T) {
	handler := ListSymbolsHandler(&mockSymbolLister{})

	req := httptest.NewRequest(http.MethodGet, "/symbols", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty JSON array, got %q", rr.Body.String())
	}
}
