package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/workitem-fieldmap/internal/catalog"
	"github.com/benvon/workitem-fieldmap/internal/kv"
	"github.com/benvon/workitem-fieldmap/internal/mapping"
	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/benvon/workitem-fieldmap/internal/presets"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type failingStore struct{}

func (failingStore) Load(context.Context) ([]models.Preset, error) { return nil, nil }
func (failingStore) Save(context.Context, []models.Preset) error {
	return errors.New("store unavailable")
}

func testCatalog() *catalog.Cache {
	cache := catalog.NewCache(nil, "Fabrikam", zap.NewNop())
	cache.Replace([]catalog.Field{
		{ExternalField: models.ExternalField{ReferenceName: "System.Title", DisplayName: "Title"}},
		{ExternalField: models.ExternalField{ReferenceName: "Custom.Notes", DisplayName: "Notes"}},
		{ExternalField: models.ExternalField{ReferenceName: "System.Id", DisplayName: "ID"}, ReadOnly: true},
	})
	return cache
}

func newTestRouter(t *testing.T, store presets.Store) (*mux.Router, *mapping.Engine) {
	t.Helper()
	seq := 0
	engine := mapping.NewEngine(store, testCatalog(), mapping.WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("preset-%d", seq)
	}))

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	NewMappingHandler(engine, zap.NewNop()).RegisterRoutes(api)
	return r, engine
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMappingHandler_GetState(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, presets.NewKVStore(kv.NewMemoryStore()))
	w := serve(r, newTestRequest(http.MethodGet, "/api/v1/mapping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var state MappingState
	decodeData(t, w, &state)
	if len(state.Mapping) != 0 {
		t.Errorf("expected empty working mapping, got %v", state.Mapping)
	}
	if state.SelectedPresetID != "" {
		t.Errorf("expected no selection, got %q", state.SelectedPresetID)
	}
	if len(state.Presets) != 1 || state.Presets[0].ID != models.DefaultPresetID {
		t.Errorf("expected only the default preset, got %+v", state.Presets)
	}
	if len(state.TaskFields) != 4 {
		t.Errorf("expected 4 task field descriptors, got %d", len(state.TaskFields))
	}
}

func TestMappingHandler_SetField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		field      string
		body       any
		wantStatus int
		wantRef    *models.FieldRef
	}{
		{
			name:       "catalog field",
			field:      "title",
			body:       SetFieldRequest{ReferenceName: "System.Title"},
			wantStatus: http.StatusOK,
			wantRef:    &models.FieldRef{ReferenceName: "System.Title", DisplayName: "Title"},
		},
		{
			name:       "unknown reference falls back to reference name",
			field:      "additionalInfo",
			body:       SetFieldRequest{ReferenceName: "Custom.Missing"},
			wantStatus: http.StatusOK,
			wantRef:    &models.FieldRef{ReferenceName: "Custom.Missing", DisplayName: "Custom.Missing"},
		},
		{
			name:       "unknown task field",
			field:      "state",
			body:       SetFieldRequest{ReferenceName: "System.State"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			field:      "title",
			body:       nil,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, engine := newTestRouter(t, presets.NewKVStore(kv.NewMemoryStore()))
			w := serve(r, newTestRequest(http.MethodPut, "/api/v1/mapping/fields/"+tt.field, tt.body))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantRef == nil {
				return
			}
			got := engine.WorkingMapping()[models.TaskField(tt.field)]
			if got != *tt.wantRef {
				t.Errorf("mapping = %+v, want %+v", got, *tt.wantRef)
			}
		})
	}
}

func TestMappingHandler_SaveLoadExport(t *testing.T) {
	t.Parallel()

	kvStore := kv.NewMemoryStore()
	r, _ := newTestRouter(t, presets.NewKVStore(kvStore))

	serve(r, newTestRequest(http.MethodPut, "/api/v1/mapping/fields/title", SetFieldRequest{ReferenceName: "System.Title"}))
	serve(r, newTestRequest(http.MethodPut, "/api/v1/mapping/fields/description", SetFieldRequest{ReferenceName: "Custom.Notes"}))

	w := serve(r, newTestRequest(http.MethodPost, "/api/v1/presets", SavePresetRequest{Name: "My Mapping"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("save status = %d, want 201", w.Code)
	}
	var saved ChangeResponse
	decodeData(t, w, &saved)
	if !saved.Changed || saved.Preset == nil || saved.Preset.ID != "preset-1" {
		t.Fatalf("unexpected save response: %+v", saved)
	}
	if saved.State.SelectedPresetID != "preset-1" || len(saved.State.Presets) != 2 {
		t.Errorf("unexpected state after save: %+v", saved.State)
	}

	persisted, err := presets.NewKVStore(kvStore).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(persisted) != 2 || persisted[1].Name != "My Mapping" {
		t.Errorf("persisted presets = %+v", persisted)
	}

	w = serve(r, newTestRequest(http.MethodPost, "/api/v1/presets/default/load", nil))
	var loaded ChangeResponse
	decodeData(t, w, &loaded)
	if !loaded.Changed || loaded.State.SelectedPresetID != models.DefaultPresetID {
		t.Errorf("unexpected load response: %+v", loaded)
	}

	w = serve(r, newTestRequest(http.MethodPost, "/api/v1/presets/preset-1/load", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("load status = %d", w.Code)
	}

	w = serve(r, newTestRequest(http.MethodGet, "/api/v1/mapping/export", nil))
	var exported map[models.TaskField]string
	decodeData(t, w, &exported)
	want := map[models.TaskField]string{
		models.TaskFieldTitle:       "Title",
		models.TaskFieldDescription: "Notes",
	}
	if diff := cmp.Diff(want, exported); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}
}

func TestMappingHandler_NoOps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"blank preset name", http.MethodPost, "/api/v1/presets", SavePresetRequest{Name: "   "}},
		{"select unknown preset", http.MethodPost, "/api/v1/presets/missing/select", nil},
		{"load unknown preset", http.MethodPost, "/api/v1/presets/missing/load", nil},
		{"overwrite without selection", http.MethodPut, "/api/v1/presets/selected", nil},
		{"delete without selection", http.MethodDelete, "/api/v1/presets/selected", nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, engine := newTestRouter(t, presets.NewKVStore(kv.NewMemoryStore()))
			w := serve(r, newTestRequest(tt.method, tt.path, tt.body))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var resp ChangeResponse
			decodeData(t, w, &resp)
			if resp.Changed {
				t.Error("expected changed=false")
			}
			if len(engine.Presets()) != 1 || engine.SelectedPresetID() != "" {
				t.Errorf("state changed: presets=%d selected=%q", len(engine.Presets()), engine.SelectedPresetID())
			}
		})
	}
}

func TestMappingHandler_OverwriteAndDeleteSelected(t *testing.T) {
	t.Parallel()

	r, engine := newTestRouter(t, presets.NewKVStore(kv.NewMemoryStore()))

	serve(r, newTestRequest(http.MethodPost, "/api/v1/presets/default/select", nil))
	serve(r, newTestRequest(http.MethodPut, "/api/v1/mapping/fields/title", SetFieldRequest{ReferenceName: "Custom.Notes"}))

	w := serve(r, newTestRequest(http.MethodPut, "/api/v1/presets/selected", nil))
	var overwritten ChangeResponse
	decodeData(t, w, &overwritten)
	if !overwritten.Changed {
		t.Fatal("expected overwrite to change the preset")
	}
	p, _ := engine.Preset(models.DefaultPresetID)
	want := models.FieldMapping{models.TaskFieldTitle: {ReferenceName: "Custom.Notes", DisplayName: "Notes"}}
	if diff := cmp.Diff(want, p.Fields); diff != "" {
		t.Errorf("overwritten fields mismatch (-want +got):\n%s", diff)
	}

	w = serve(r, newTestRequest(http.MethodDelete, "/api/v1/presets/selected", nil))
	var deleted ChangeResponse
	decodeData(t, w, &deleted)
	if !deleted.Changed || deleted.State.SelectedPresetID != "" || len(deleted.State.Presets) != 0 {
		t.Errorf("unexpected delete response: %+v", deleted)
	}
}

func TestMappingHandler_PersistFailure(t *testing.T) {
	t.Parallel()

	r, engine := newTestRouter(t, failingStore{})
	w := serve(r, newTestRequest(http.MethodPost, "/api/v1/presets", SavePresetRequest{Name: "Doomed"}))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if len(engine.Presets()) != 1 || engine.SelectedPresetID() != "" {
		t.Errorf("failed save left state behind: presets=%d selected=%q", len(engine.Presets()), engine.SelectedPresetID())
	}
}

func TestMappingHandler_Transform(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, presets.NewKVStore(kv.NewMemoryStore()))
	serve(r, newTestRequest(http.MethodPost, "/api/v1/presets/default/load", nil))

	w := serve(r, newTestRequest(http.MethodPost, "/api/v1/mapping/transform?direction=import", TransformRequest{
		Fields: map[string]any{"System.Title": "Fix login", "System.State": "Active"},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d", w.Code)
	}
	var imported TransformResponse
	decodeData(t, w, &imported)
	if diff := cmp.Diff(map[models.TaskField]string{models.TaskFieldTitle: "Fix login"}, imported.Values); diff != "" {
		t.Errorf("import mismatch (-want +got):\n%s", diff)
	}

	w = serve(r, newTestRequest(http.MethodPost, "/api/v1/mapping/transform?direction=export", TransformRequest{
		Values: map[string]string{"title": "Fix login", "description": ""},
	}))
	var exported TransformResponse
	decodeData(t, w, &exported)
	wantOps := []mapping.PatchOperation{{Op: "add", Path: "/fields/System.Title", Value: "Fix login"}}
	if diff := cmp.Diff(wantOps, exported.Operations); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}

	for _, path := range []string{
		"/api/v1/mapping/transform?direction=sideways",
		"/api/v1/mapping/transform",
	} {
		w = serve(r, newTestRequest(http.MethodPost, path, TransformRequest{}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}

	w = serve(r, newTestRequest(http.MethodPost, "/api/v1/mapping/transform?direction=export", TransformRequest{
		Values: map[string]string{"state": "Active"},
	}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown task field: status = %d, want 400", w.Code)
	}
}
