package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	logpkg "github.com/benvon/workitem-fieldmap/internal/logger"
	"github.com/benvon/workitem-fieldmap/internal/request"
	"go.uber.org/zap"
)

// PanicResponse is the envelope written when a handler panics before
// sending its own response
type PanicResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}

// Recover turns a handler panic into a logged 500. http.ErrAbortHandler is
// passed through so the server can drop the connection.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracked := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				logger.Error("handler_panic",
					zap.Any("panic", v),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("request_id", request.RequestID(r)),
					zap.Bool("response_started", tracked.wroteHeader),
					zap.Stack("stack"),
				)
				// the status line is gone once the handler started writing
				if tracked.wroteHeader {
					return
				}
				writePanicResponse(tracked, r, logger)
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}

func writePanicResponse(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)

	body := PanicResponse{
		Error:     "Internal Server Error",
		Message:   "An unexpected error occurred",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: request.RequestID(r),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed_to_write_panic_response", zap.Error(err))
	}
}
