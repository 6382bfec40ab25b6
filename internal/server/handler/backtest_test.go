package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quantflow/quantflow/internal/domain"
	"github.com/quantflow/quantflow/internal/server/middleware"
	"github.com/quantflow/quantflow/internal/service"
)

// stubBacktestService records calls and returns canned responses.
type stubBacktestService struct {
	runReq    service.RunBacktestRequest
	runUserID int64
	runErr    error

	sweepOverrides []map[string]any

	record domain.BacktestRecord
	getErr error
}

func (s *stubBacktestService) Run(_ context.Context, userID int64, req service.RunBacktestRequest) (domain.BacktestRecord, error) {
	s.runUserID = userID
	s.runReq = req
	return s.record, s.runErr
}

func (s *stubBacktestService) Sweep(_ context.Context, userID int64, base service.RunBacktestRequest, overrides []map[string]any) ([]domain.BacktestRecord, error) {
	s.runUserID = userID
	s.runReq = base
	s.sweepOverrides = overrides
	out := make([]domain.BacktestRecord, len(overrides))
	for i := range out {
		out[i] = s.record
	}
	return out, nil
}

func (s *stubBacktestService) Get(_ context.Context, _ int64, _ string) (domain.BacktestRecord, error) {
	return s.record, s.getErr
}

func (s *stubBacktestService) List(_ context.Context, _ int64, _ domain.ListOpts) ([]domain.BacktestRecord, error) {
	return []domain.BacktestRecord{s.record}, nil
}

func (s *stubBacktestService) ListByStrategy(_ context.Context, _, _ int64, _ domain.ListOpts) ([]domain.BacktestRecord, error) {
	return []domain.BacktestRecord{s.record}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authedRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.ContextWithUser(r.Context(), domain.User{ID: 7, Username: "tester"})
	return r.WithContext(ctx)
}

func TestBacktestRun(t *testing.T) {
	stub := &stubBacktestService{record: domain.BacktestRecord{ID: "bt-1", Status: domain.BacktestStatusFinished}}
	h := NewBacktestHandler(stub, testLogger())

	body := `{
		"strategy_id": 3,
		"symbol": "BTCUSDT",
		"timeframe": "1h",
		"start_date": "2025-01-01",
		"end_date": "2025-02-01",
		"commission_rate": 0
	}`
	w := httptest.NewRecorder()
	h.Run(w, authedRequest(http.MethodPost, "/api/backtests", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if stub.runUserID != 7 {
		t.Fatalf("service called with user %d, want 7", stub.runUserID)
	}
	if stub.runReq.Symbol != "BTCUSDT" || stub.runReq.StrategyID != 3 {
		t.Fatalf("request not forwarded: %+v", stub.runReq)
	}
	// An explicit zero commission must reach the service as set.
	if !stub.runReq.CommissionSet || stub.runReq.CommissionRate != 0 {
		t.Fatalf("explicit commission_rate 0 not marked set: %+v", stub.runReq)
	}
}

func TestBacktestRunRequiresAuth(t *testing.T) {
	h := NewBacktestHandler(&stubBacktestService{}, testLogger())

	w := httptest.NewRecorder()
	h.Run(w, httptest.NewRequest(http.MethodPost, "/api/backtests", strings.NewReader(`{}`)))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestBacktestRunRejectsBadDates(t *testing.T) {
	h := NewBacktestHandler(&stubBacktestService{}, testLogger())

	body := `{"strategy_id": 1, "symbol": "BTCUSDT", "start_date": "01/02/2025", "end_date": "2025-02-01"}`
	w := httptest.NewRecorder()
	h.Run(w, authedRequest(http.MethodPost, "/api/backtests", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestBacktestRunSweep(t *testing.T) {
	stub := &stubBacktestService{record: domain.BacktestRecord{ID: "bt-2"}}
	h := NewBacktestHandler(stub, testLogger())

	body := `{
		"strategy_id": 3,
		"symbol": "BTCUSDT",
		"timeframe": "1h",
		"start_date": "2025-01-01",
		"end_date": "2025-02-01",
		"param_sets": [
			{"short_period": 5, "long_period": 20},
			{"short_period": 10, "long_period": 30}
		]
	}`
	w := httptest.NewRecorder()
	h.Run(w, authedRequest(http.MethodPost, "/api/backtests", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	if len(stub.sweepOverrides) != 2 {
		t.Fatalf("Sweep called with %d overrides, want 2", len(stub.sweepOverrides))
	}

	var resp struct {
		Backtests []domain.BacktestRecord `json:"backtests"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Backtests) != 2 {
		t.Fatalf("response has %d backtests, want 2", len(resp.Backtests))
	}
}

func TestBacktestRunMapsServiceErrors(t *testing.T) {
	stub := &stubBacktestService{runErr: domain.ErrNoData}
	h := NewBacktestHandler(stub, testLogger())

	body := `{"strategy_id": 1, "symbol": "BTCUSDT", "timeframe": "1h", "start_date": "2025-01-01", "end_date": "2025-02-01"}`
	w := httptest.NewRecorder()
	h.Run(w, authedRequest(http.MethodPost, "/api/backtests", body))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for ErrNoData", w.Code)
	}
}

func TestBacktestGetIncludesResult(t *testing.T) {
	stub := &stubBacktestService{record: domain.BacktestRecord{
		ID:         "bt-3",
		ResultJSON: []byte(`{"total_return": 0.12}`),
	}}
	h := NewBacktestHandler(stub, testLogger())

	r := authedRequest(http.MethodGet, "/api/backtests/bt-3", "")
	r.SetPathValue("id", "bt-3")
	w := httptest.NewRecorder()
	h.Get(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Result["total_return"] != 0.12 {
		t.Fatalf("result not embedded: %v", resp.Result)
	}
}
