// Package mapping holds the working field mapping and the preset collection
// a user edits, and translates work-item data through a mapping.
package mapping

import (
	"context"
	"fmt"

	"github.com/benvon/workitem-fieldmap/internal/logger"
	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/benvon/workitem-fieldmap/internal/presets"
	"github.com/benvon/workitem-fieldmap/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Catalog resolves external reference names against the current catalog snapshot
type Catalog interface {
	Lookup(referenceName string) (models.ExternalField, bool)
}

// Engine owns the working mapping, the in-memory preset collection and the
// selected preset id. It is not safe for concurrent use.
type Engine struct {
	store   presets.Store
	catalog Catalog
	log     *zap.Logger
	newID   func() string

	working  models.FieldMapping
	presets  []models.Preset
	selected string
	// loaded is set once the stored collection has been merged in. Writes
	// replace the whole stored collection, so none happen before that.
	loaded bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithIDGenerator overrides how new preset ids are generated
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithDefaults replaces the built-in presets the engine starts with
func WithDefaults(defaults []models.Preset) Option {
	return func(e *Engine) {
		e.presets = clonePresets(defaults)
	}
}

// NewEngine creates an engine seeded with the default preset and an empty working mapping
func NewEngine(store presets.Store, catalog Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		log:     zap.NewNop(),
		newID:   NewPresetID,
		working: models.FieldMapping{},
		presets: []models.Preset{models.DefaultPreset()},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewPresetID returns a fresh, time-ordered preset id
func NewPresetID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "preset-" + uuid.NewString()
	}
	return "preset-" + id.String()
}

// LoadPresets merges the persisted collection into the in-memory presets.
// On error the in-memory presets are left untouched and the engine refuses
// to persist until a later load succeeds.
func (e *Engine) LoadPresets(ctx context.Context) error {
	loaded, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}
	before := len(e.presets)
	e.presets = presets.Merge(e.presets, loaded)
	e.loaded = true
	e.log.Info("presets_loaded",
		zap.Int("stored", len(loaded)),
		zap.Int("added", len(e.presets)-before),
		zap.Int("total", len(e.presets)),
	)
	return nil
}

// PresetsLoaded reports whether the stored collection has been merged in
func (e *Engine) PresetsLoaded() bool {
	return e.loaded
}

// ImportPresets merges presets into the collection with the same rule as
// LoadPresets and persists the result. It returns how many were added.
// Empty or unknown field entries are dropped before validation.
func (e *Engine) ImportPresets(ctx context.Context, incoming []models.Preset) (int, error) {
	valid := make([]models.Preset, 0, len(incoming))
	for _, p := range incoming {
		p, dropped := validation.CleanPreset(p)
		if len(dropped) > 0 {
			e.log.Warn("dropping_unmapped_preset_fields",
				zap.String("preset_id", p.ID),
				zap.Any("fields", dropped),
			)
		}
		if err := validation.ValidatePreset(p); err != nil {
			return 0, err
		}
		valid = append(valid, p.Clone())
	}

	if err := e.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	prev, prevSelected := e.presets, e.selected
	e.presets = presets.Merge(e.presets, valid)
	added := len(e.presets) - len(prev)
	if added == 0 {
		return 0, nil
	}
	if err := e.persist(ctx, prev, prevSelected); err != nil {
		return 0, err
	}
	return added, nil
}

// SetMapping points field at the external field named referenceName. The
// display name comes from the catalog when the reference is known and falls
// back to the reference name otherwise. An empty reference name unmaps field.
// Unknown task fields are ignored.
func (e *Engine) SetMapping(field models.TaskField, referenceName string) {
	if !field.Valid() {
		return
	}
	if referenceName == "" {
		delete(e.working, field)
		return
	}

	ref := models.FieldRef{ReferenceName: referenceName, DisplayName: referenceName}
	if e.catalog != nil {
		if ext, ok := e.catalog.Lookup(referenceName); ok {
			ref.DisplayName = ext.DisplayName
		}
	}
	e.working[field] = ref
}

// WorkingMapping returns a copy of the mapping being edited
func (e *Engine) WorkingMapping() models.FieldMapping {
	return e.working.Clone()
}

// ExportMapping projects the working mapping onto display names
func (e *Engine) ExportMapping() map[models.TaskField]string {
	return e.working.DisplayNames()
}

// Presets returns a copy of the preset collection in order
func (e *Engine) Presets() []models.Preset {
	return clonePresets(e.presets)
}

// Preset returns the preset with id
func (e *Engine) Preset(id string) (models.Preset, bool) {
	i := e.indexOf(id)
	if i < 0 {
		return models.Preset{}, false
	}
	return e.presets[i].Clone(), true
}

// SelectedPresetID returns the selected preset id, or "" when none is selected
func (e *Engine) SelectedPresetID() string {
	return e.selected
}

// SelectPreset marks id as selected. Unknown ids are ignored.
func (e *Engine) SelectPreset(id string) bool {
	if e.indexOf(id) < 0 {
		return false
	}
	e.selected = id
	return true
}

// LoadPreset replaces the working mapping with the fields of preset id,
// discarding unsaved edits, and selects it. Unknown ids are ignored.
func (e *Engine) LoadPreset(id string) bool {
	i := e.indexOf(id)
	if i < 0 {
		return false
	}
	e.working = e.presets[i].Fields.Clone()
	e.selected = id
	e.log.Info("preset_loaded",
		zap.String("preset_id", id),
		zap.String("preset_name", logger.SanitizeName(e.presets[i].Name)),
	)
	return true
}

// SaveCurrentAsPreset snapshots the working mapping into a new preset named
// name, selects it and persists the collection. A blank name does nothing
// and returns nil.
func (e *Engine) SaveCurrentAsPreset(ctx context.Context, name string) (*models.Preset, error) {
	name = validation.SanitizePresetName(name)
	if name == "" {
		return nil, nil
	}

	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	preset := models.Preset{
		ID:     e.newID(),
		Name:   name,
		Fields: e.working.Clone(),
	}

	prev, prevSelected := e.presets, e.selected
	e.presets = append(clonePresets(prev), preset)
	e.selected = preset.ID
	if err := e.persist(ctx, prev, prevSelected); err != nil {
		return nil, err
	}

	e.log.Info("preset_saved",
		zap.String("preset_id", preset.ID),
		zap.String("preset_name", logger.SanitizeName(preset.Name)),
	)
	out := preset.Clone()
	return &out, nil
}

// OverwriteSelectedPreset replaces the selected preset's fields with the
// working mapping and persists. It reports false when nothing is selected.
func (e *Engine) OverwriteSelectedPreset(ctx context.Context) (bool, error) {
	i := e.indexOf(e.selected)
	if e.selected == "" || i < 0 {
		return false, nil
	}
	if err := e.ensureLoaded(ctx); err != nil {
		return false, err
	}

	prev, prevSelected := e.presets, e.selected
	e.presets = clonePresets(prev)
	e.presets[i].Fields = e.working.Clone()
	if err := e.persist(ctx, prev, prevSelected); err != nil {
		return false, err
	}

	e.log.Info("preset_overwritten",
		zap.String("preset_id", e.selected),
		zap.String("preset_name", logger.SanitizeName(e.presets[i].Name)),
	)
	return true, nil
}

// DeleteSelectedPreset removes the selected preset, clears the selection and
// persists. It reports false when nothing is selected.
func (e *Engine) DeleteSelectedPreset(ctx context.Context) (bool, error) {
	i := e.indexOf(e.selected)
	if e.selected == "" || i < 0 {
		return false, nil
	}
	if err := e.ensureLoaded(ctx); err != nil {
		return false, err
	}

	prev, prevSelected := e.presets, e.selected
	removed := prev[i]
	remaining := make([]models.Preset, 0, len(prev)-1)
	remaining = append(remaining, prev[:i]...)
	remaining = append(remaining, prev[i+1:]...)
	e.presets = remaining
	e.selected = ""
	if err := e.persist(ctx, prev, prevSelected); err != nil {
		return false, err
	}

	e.log.Info("preset_deleted",
		zap.String("preset_id", removed.ID),
		zap.String("preset_name", logger.SanitizeName(removed.Name)),
	)
	return true, nil
}

// ensureLoaded retries LoadPresets when no load has succeeded yet
func (e *Engine) ensureLoaded(ctx context.Context) error {
	if e.loaded {
		return nil
	}
	if err := e.LoadPresets(ctx); err != nil {
		e.log.Error("refusing_to_persist_presets_before_load", zap.Error(err))
		return err
	}
	return nil
}

// persist writes the whole collection. On failure the collection and
// selection are restored to prev so no partial change is visible.
func (e *Engine) persist(ctx context.Context, prev []models.Preset, prevSelected string) error {
	if err := e.store.Save(ctx, e.presets); err != nil {
		e.presets = prev
		e.selected = prevSelected
		e.log.Error("failed_to_persist_presets", zap.Error(err))
		return fmt.Errorf("persist presets: %w", err)
	}
	return nil
}

func (e *Engine) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, p := range e.presets {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func clonePresets(in []models.Preset) []models.Preset {
	out := make([]models.Preset, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
