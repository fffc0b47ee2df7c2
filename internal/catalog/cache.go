package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/workitem-fieldmap/internal/models"
	"go.uber.org/zap"
)

// Cache holds the most recent catalog snapshot for one project.
// Readers never wait for a fetch; they see whatever snapshot is current,
// which is empty until the first fetch completes.
type Cache struct {
	fetcher Fetcher
	project string
	log     *zap.Logger

	mu        sync.RWMutex
	fields    []Field
	index     map[string]models.ExternalField
	fetchedAt time.Time

	refreshing sync.Mutex
}

// NewCache creates an empty cache for project
func NewCache(fetcher Fetcher, project string, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		fetcher: fetcher,
		project: project,
		log:     log,
		index:   make(map[string]models.ExternalField),
	}
}

// Project returns the project the cache is bound to
func (c *Cache) Project() string {
	return c.project
}

// Refresh fetches the catalog and swaps the snapshot. On failure the
// previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.fetcher == nil {
		return nil
	}
	c.refreshing.Lock()
	defer c.refreshing.Unlock()

	fields, err := c.fetcher.FetchFields(ctx, c.project)
	if err != nil {
		c.log.Warn("catalog_refresh_failed",
			zap.String("project", c.project),
			zap.Error(err),
		)
		return err
	}
	c.Replace(fields)
	c.log.Info("catalog_refreshed",
		zap.String("project", c.project),
		zap.Int("field_count", len(fields)),
	)
	return nil
}

// RefreshAsync starts a refresh in the background and returns immediately
func (c *Cache) RefreshAsync(ctx context.Context) {
	go func() {
		_ = c.Refresh(ctx)
	}()
}

// Start refreshes once and then every interval until ctx is cancelled
func (c *Cache) Start(ctx context.Context, interval time.Duration) {
	_ = c.Refresh(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}

// Replace installs fields as the current snapshot
func (c *Cache) Replace(fields []Field) {
	index := make(map[string]models.ExternalField, len(fields))
	snapshot := make([]Field, len(fields))
	copy(snapshot, fields)
	for _, f := range snapshot {
		index[f.ReferenceName] = f.ExternalField
	}

	c.mu.Lock()
	c.fields = snapshot
	c.index = index
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

// Lookup finds an external field by reference name in the current snapshot
func (c *Cache) Lookup(referenceName string) (models.ExternalField, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.index[referenceName]
	return f, ok
}

// Empty reports whether no snapshot has been loaded yet
func (c *Cache) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fields) == 0
}

// FetchedAt returns when the current snapshot was installed
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Fields returns every field in the current snapshot
func (c *Cache) Fields() []models.ExternalField {
	return c.Suggest(models.DirectionImport)
}

// Suggest returns the fields worth offering for direction. Export targets
// must be writable, so read-only fields are left out there.
func (c *Cache) Suggest(direction models.Direction) []models.ExternalField {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.ExternalField, 0, len(c.fields))
	for _, f := range c.fields {
		if direction == models.DirectionExport && f.ReadOnly {
			continue
		}
		out = append(out, f.ExternalField)
	}
	return out
}
