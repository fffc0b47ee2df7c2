package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimit_MemoryStore(t *testing.T) {
	t.Parallel()

	store, err := NewLimiterStore(nil)
	if err != nil {
		t.Fatalf("NewLimiterStore() error = %v", err)
	}
	mw, err := RateLimit(store, "2-M")
	if err != nil {
		t.Fatalf("RateLimit() error = %v", err)
	}
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil)
		req.Header.Set("X-Real-IP", "192.0.2.10")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK || statuses[2] != http.StatusTooManyRequests {
		t.Errorf("statuses = %v, want [200 200 429]", statuses)
	}
}

func TestRateLimit_InvalidRate(t *testing.T) {
	t.Parallel()

	store, _ := NewLimiterStore(nil)
	if _, err := RateLimit(store, "lots"); err == nil {
		t.Error("expected error for malformed rate")
	}
}
