package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// DefaultFrontendOrigin is allowed when no origin is configured
const DefaultFrontendOrigin = "http://localhost:3000"

// CORS allows the dashboard origins listed in frontendURLs (comma-separated)
func CORS(frontendURLs string, logger *zap.Logger) func(http.Handler) http.Handler {
	origins := AllowedOrigins(frontendURLs)
	logger.Info("cors_configured", zap.Strings("allowed_origins", origins))

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}

// AllowedOrigins splits a comma-separated origin list, trimming and de-duplicating.
// An empty list falls back to DefaultFrontendOrigin.
func AllowedOrigins(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{DefaultFrontendOrigin}
	}
	return out
}
