package middleware

import (
	"net/http"

	"github.com/benvon/workitem-fieldmap/internal/request"
	"github.com/google/uuid"
)

// RequestID propagates an inbound X-Request-ID or assigns a fresh one
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(request.HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(request.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(request.WithRequestID(r.Context(), id)))
	})
}
