// Package presets persists field-mapping presets as one JSON document in a key-value store.
package presets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benvon/workitem-fieldmap/internal/kv"
	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/benvon/workitem-fieldmap/internal/telemetry"
	"github.com/benvon/workitem-fieldmap/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultKey is the key the preset collection is stored under
const DefaultKey = "fieldMappingPresets"

// Store loads and saves the whole preset collection
type Store interface {
	// Load returns the persisted collection. A missing or malformed payload
	// yields an empty collection; an error means the backend is unavailable.
	Load(ctx context.Context) ([]models.Preset, error)

	// Save replaces the persisted collection
	Save(ctx context.Context, presets []models.Preset) error
}

// KVStore is a Store that keeps the collection as a JSON array under a single key
type KVStore struct {
	kv     kv.Store
	key    string
	logger *zap.Logger
}

// KVStoreOption configures a KVStore
type KVStoreOption func(*KVStore)

// WithKey overrides the key the collection is stored under
func WithKey(key string) KVStoreOption {
	return func(s *KVStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for malformed-payload warnings
func WithLogger(logger *zap.Logger) KVStoreOption {
	return func(s *KVStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewKVStore creates a preset store on top of a key-value store
func NewKVStore(store kv.Store, opts ...KVStoreOption) *KVStore {
	s := &KVStore{
		kv:     store,
		key:    DefaultKey,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads and decodes the preset collection
func (s *KVStore) Load(ctx context.Context) (_ []models.Preset, err error) {
	ctx, span := telemetry.StartSpan(ctx, "presets.load", attribute.String("preset.key", s.key))
	defer func() { telemetry.EndSpan(span, err) }()

	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	if !found || raw == "" {
		return []models.Preset{}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("malformed_preset_payload",
			zap.String("key", s.key),
			zap.Error(err),
		)
		return []models.Preset{}, nil
	}

	presets := make([]models.Preset, 0, len(entries))
	for i, entry := range entries {
		var p models.Preset
		if err := json.Unmarshal(entry, &p); err != nil {
			s.logger.Warn("skipping_undecodable_preset",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		p, dropped := validation.CleanPreset(p)
		if len(dropped) > 0 {
			s.logger.Warn("dropping_unmapped_preset_fields",
				zap.Int("index", i),
				zap.String("preset_id", p.ID),
				zap.Any("fields", dropped),
			)
		}
		if err := validation.ValidatePreset(p); err != nil {
			s.logger.Warn("skipping_invalid_preset",
				zap.Int("index", i),
				zap.String("preset_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		presets = append(presets, p)
	}

	return presets, nil
}

// Save encodes and writes the whole collection in one set
func (s *KVStore) Save(ctx context.Context, presets []models.Preset) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "presets.save",
		attribute.String("preset.key", s.key),
		attribute.Int("preset.count", len(presets)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if presets == nil {
		presets = []models.Preset{}
	}
	payload, err := json.Marshal(presets)
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(payload)); err != nil {
		return fmt.Errorf("save presets: %w", err)
	}
	return nil
}

// Merge appends loaded presets to current, skipping any whose id is already
// present. Entries already in current always win, and within loaded the first
// occurrence of an id wins.
func Merge(current, loaded []models.Preset) []models.Preset {
	seen := make(map[string]bool, len(current)+len(loaded))
	out := make([]models.Preset, 0, len(current)+len(loaded))
	for _, p := range current {
		seen[p.ID] = true
		out = append(out, p)
	}
	for _, p := range loaded {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
