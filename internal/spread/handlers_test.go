package spread

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sapp/margin-engine/internal/auth"
)

func newTestRouter(env *testEnv) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/exclusive/spread", env.registry.HandleSpreadPrice)
		r.Post("/spreads", env.svc.HandleOpen)
		r.Get("/spreads/{spreadID}", env.svc.HandleGet)
		r.Post("/spreads/{spreadID}/close", env.svc.HandleClose)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(auth.CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func openBody(trader string, leg1Size, leg2Size, margin int64) OpenRequest {
	return OpenRequest{
		Trader:   trader,
		Leg1:     "WTI",
		Leg2:     "BRENT",
		Leg1Size: decimal.NewFromInt(leg1Size),
		Leg2Size: decimal.NewFromInt(leg2Size),
		Margin:   decimal.NewFromInt(margin),
	}
}

func TestAPI_SpreadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env)

	w := doJSON(t, router, http.MethodGet, "/api/v1/exclusive/spread?leg1=WTI&leg2=BRENT", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("spread price: status %d, body %s", w.Code, w.Body)
	}
	var quote struct {
		Spread string `json:"spread"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote.Spread != "-400000000000" {
		t.Errorf("expected spread -400000000000, got %s", quote.Spread)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/spreads", "alice",
		openBody("alice", 1000, -1000, 100_000))
	if w.Code != http.StatusCreated {
		t.Fatalf("open: status %d, body %s", w.Code, w.Body)
	}
	var opened OpenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &opened); err != nil {
		t.Fatalf("decode open response: %v", err)
	}
	if opened.SpreadID != 1 {
		t.Errorf("expected spread id 1, got %d", opened.SpreadID)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/spreads/1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d, body %s", w.Code, w.Body)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/spreads/1/close", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close: status %d, body %s", w.Code, w.Body)
	}
	var closed CloseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode close response: %v", err)
	}
	if !closed.PnL.IsZero() {
		t.Errorf("expected zero pnl, got %s", closed.PnL)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/spreads/1", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("closed spread: expected 404, got %d", w.Code)
	}
}

func TestAPI_SpreadStatusCodes(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		want   int
	}{
		{"no caller", http.MethodPost, "/api/v1/spreads", "",
			openBody("alice", 1000, -1000, 100_000), http.StatusUnauthorized},
		{"wrong caller", http.MethodPost, "/api/v1/spreads", "mallory",
			openBody("alice", 1000, -1000, 100_000), http.StatusForbidden},
		{"unbalanced", http.MethodPost, "/api/v1/spreads", "alice",
			openBody("alice", 1000, -900, 100_000), http.StatusBadRequest},
		{"thin margin", http.MethodPost, "/api/v1/spreads", "alice",
			openBody("alice", 1000, -1000, 99_999), http.StatusBadRequest},
		{"unknown market name", http.MethodPost, "/api/v1/spreads", "alice",
			OpenRequest{Trader: "alice", Leg1: "WTI", Leg2: "PORKBELLIES"}, http.StatusBadRequest},
		{"unknown spread", http.MethodPost, "/api/v1/spreads/42/close", "alice", nil, http.StatusNotFound},
		{"bad spread id", http.MethodGet, "/api/v1/spreads/abc", "", nil, http.StatusBadRequest},
		{"bad quote leg", http.MethodGet, "/api/v1/exclusive/spread?leg1=WTI&leg2=XXX", "", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, tt.method, tt.path, tt.caller, tt.body)
			if w.Code != tt.want {
				t.Errorf("status %d, want %d, body %s", w.Code, tt.want, w.Body)
			}
		})
	}
}
