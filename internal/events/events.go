// Package events announces preset collection changes to downstream import/export workers.
package events

import (
	"context"
	"time"

	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/benvon/workitem-fieldmap/internal/presets"
	"go.uber.org/zap"
)

// TypePresetsChanged is emitted after the preset collection is persisted
const TypePresetsChanged = "presets.changed"

// Event is the message body published on every change
type Event struct {
	Type        string    `json:"type"`
	PresetIDs   []string  `json:"preset_ids"`
	PresetCount int       `json:"preset_count"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher delivers events to interested consumers
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher discards every event
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Close does nothing
func (NoopPublisher) Close() error { return nil }

// NotifyingStore wraps a preset store and publishes an event after each successful save.
// Publish failures are logged and never fail the save.
type NotifyingStore struct {
	presets.Store
	publisher Publisher
	log       *zap.Logger
}

// NewNotifyingStore decorates store with change notifications
func NewNotifyingStore(store presets.Store, publisher Publisher, log *zap.Logger) *NotifyingStore {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NotifyingStore{Store: store, publisher: publisher, log: log}
}

// Save persists presets, then announces the change
func (s *NotifyingStore) Save(ctx context.Context, list []models.Preset) error {
	if err := s.Store.Save(ctx, list); err != nil {
		return err
	}

	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.ID
	}
	event := Event{
		Type:        TypePresetsChanged,
		PresetIDs:   ids,
		PresetCount: len(list),
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("failed_to_publish_presets_changed", zap.Error(err))
	}
	return nil
}
