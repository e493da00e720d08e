package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/R3E-Network/splitpay/internal/app"
	splitsvc "github.com/R3E-Network/splitpay/internal/app/services/split"
)

func newTestHandler(t *testing.T) (http.Handler, *splitsvc.MemoryLedger) {
	t.Helper()

	ledger := splitsvc.NewMemoryLedger()
	application, err := app.New(app.Options{Ledger: ledger}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	return NewHandler(application), ledger
}

func marshal(t *testing.T, v any) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(raw)
}

func callerRequest(method, path, caller string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	return req
}

func do(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestHandlerLifecycle(t *testing.T) {
	handler, ledger := newTestHandler(t)
	ledger.Credit("", "bob", 50)
	ledger.Credit("", "carol", 50)

	body := marshal(t, map[string]any{
		"purpose":          "dinner",
		"asset":            "",
		"total_amount":     100,
		"num_participants": 2,
		"duration_days":    1,
	})
	resp := do(handler, callerRequest(http.MethodPost, "/splits", "alice", body))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create split: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created splitView
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created split: %v", err)
	}
	if created.AmountPerParticipant != 50 || !created.IsActive {
		t.Fatalf("unexpected created split: %+v", created)
	}

	resp = do(handler, callerRequest(http.MethodGet, "/splits/"+created.ID, "", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("get split: expected 200, got %d", resp.Code)
	}

	contribution := marshal(t, map[string]any{"amount": 50, "attached_value": 50})
	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/contributions", "bob", contribution))
	if resp.Code != http.StatusOK {
		t.Fatalf("first contribution: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	contribution = marshal(t, map[string]any{"amount": 50, "attached_value": 50})
	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/contributions", "carol", contribution))
	if resp.Code != http.StatusOK {
		t.Fatalf("closing contribution: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var closed splitView
	if err := json.Unmarshal(resp.Body.Bytes(), &closed); err != nil {
		t.Fatalf("unmarshal closed split: %v", err)
	}
	if closed.IsActive || closed.TotalContributed != 100 {
		t.Fatalf("expected closed fully-funded split, got %+v", closed)
	}
	if got := ledger.Balance("", "alice"); got != 100 {
		t.Fatalf("initiator balance = %d, want 100", got)
	}

	resp = do(handler, callerRequest(http.MethodGet, "/splits/"+created.ID+"/contributors/bob", "", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("contributor lookup: expected 200, got %d", resp.Code)
	}
	var contributor struct {
		HasContributed       bool   `json:"has_contributed"`
		AmountPerParticipant uint64 `json:"amount_per_participant"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &contributor); err != nil {
		t.Fatalf("unmarshal contributor: %v", err)
	}
	if !contributor.HasContributed || contributor.AmountPerParticipant != 50 {
		t.Fatalf("unexpected contributor response: %+v", contributor)
	}

	resp = do(handler, callerRequest(http.MethodGet, "/splits?initiator=alice", "", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("list splits: expected 200, got %d", resp.Code)
	}
	var listed []splitView
	if err := json.Unmarshal(resp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("list returned %d splits, want 1", len(listed))
	}

	resp = do(handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || resp.Body.Len() == 0 {
		t.Fatalf("metrics: expected non-empty 200, got %d", resp.Code)
	}

	resp = do(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.Code)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	handler, ledger := newTestHandler(t)
	ledger.Credit("", "bob", 100)

	// Mutations without a caller header are rejected.
	resp := do(handler, callerRequest(http.MethodPost, "/splits", "", marshal(t, map[string]any{})))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing caller: expected 400, got %d", resp.Code)
	}

	// Unknown split maps to 404.
	contribution := marshal(t, map[string]any{"amount": 10, "attached_value": 10})
	resp = do(handler, callerRequest(http.MethodPost, "/splits/missing/contributions", "bob", contribution))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown split: expected 404, got %d", resp.Code)
	}

	body := marshal(t, map[string]any{
		"purpose":          "rent",
		"asset":            "",
		"total_amount":     90,
		"num_participants": 3,
		"duration_days":    1,
	})
	resp = do(handler, callerRequest(http.MethodPost, "/splits", "alice", body))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create split: expected 201, got %d", resp.Code)
	}
	var created splitView
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created split: %v", err)
	}

	// Wrong share maps to 400.
	contribution = marshal(t, map[string]any{"amount": 31, "attached_value": 31})
	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/contributions", "bob", contribution))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("wrong amount: expected 400, got %d", resp.Code)
	}

	// Double contribution maps to 409.
	contribution = marshal(t, map[string]any{"amount": 30, "attached_value": 30})
	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/contributions", "bob", contribution))
	if resp.Code != http.StatusOK {
		t.Fatalf("contribution: expected 200, got %d", resp.Code)
	}
	contribution = marshal(t, map[string]any{"amount": 30, "attached_value": 30})
	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/contributions", "bob", contribution))
	if resp.Code != http.StatusConflict {
		t.Fatalf("double contribution: expected 409, got %d", resp.Code)
	}

	// Cancellation by a stranger maps to 403.
	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/cancel", "mallory", nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("stranger cancel: expected 403, got %d", resp.Code)
	}

	// Withdrawal from the still-active split maps to 409.
	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/withdraw", "bob", nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("early withdraw: expected 409, got %d", resp.Code)
	}
}

func TestHandlerWithdrawAfterCancel(t *testing.T) {
	handler, ledger := newTestHandler(t)
	ledger.Credit("", "bob", 30)

	body := marshal(t, map[string]any{
		"purpose":          "gift",
		"asset":            "",
		"total_amount":     90,
		"num_participants": 3,
		"duration_days":    1,
	})
	resp := do(handler, callerRequest(http.MethodPost, "/splits", "alice", body))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create split: expected 201, got %d", resp.Code)
	}
	var created splitView
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created split: %v", err)
	}

	contribution := marshal(t, map[string]any{"amount": 30, "attached_value": 30})
	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/contributions", "bob", contribution))
	if resp.Code != http.StatusOK {
		t.Fatalf("contribution: expected 200, got %d", resp.Code)
	}

	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/cancel", "alice", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.Code)
	}
	var cancelled splitView
	if err := json.Unmarshal(resp.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("unmarshal cancelled split: %v", err)
	}
	if !cancelled.IsCancelled {
		t.Fatalf("expected cancelled split, got %+v", cancelled)
	}

	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/withdraw", "bob", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("withdraw: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var refund struct {
		Amount uint64 `json:"amount"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &refund); err != nil {
		t.Fatalf("unmarshal refund: %v", err)
	}
	if refund.Amount != 30 {
		t.Fatalf("refund amount = %d, want 30", refund.Amount)
	}

	resp = do(handler, callerRequest(http.MethodPost, "/splits/"+created.ID+"/withdraw", "bob", nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("second withdraw: expected 409, got %d", resp.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	handler, _ := newTestHandler(t)
	limited := NewRateLimiter(1, 1).Handler(handler)

	resp := do(limited, callerRequest(http.MethodGet, "/healthz", "alice", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", resp.Code)
	}

	resp = do(limited, callerRequest(http.MethodGet, "/healthz", "alice", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", resp.Code)
	}

	// A different caller has its own budget.
	resp = do(limited, callerRequest(http.MethodGet, "/healthz", "bob", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("other caller: expected 200, got %d", resp.Code)
	}
}
