package middleware

import (
	"fmt"
	"net/http"

	"github.com/benvon/workitem-fieldmap/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const defaultRate = "20-S"

// NewLimiterStore returns a Redis-backed limiter store when client is set,
// and an in-process store otherwise
func NewLimiterStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memorystore.NewStore(), nil
	}
	store, err := redisstore.NewStore(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return store, nil
}

// RateLimit limits requests per client IP. rate uses the limiter format, e.g. "20-S" or "1000-H".
func RateLimit(store limiter.Store, rate string) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = defaultRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}
	instance := limiter.New(store, parsed)
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(request.ClientIP))
	return mw.Handler, nil
}
