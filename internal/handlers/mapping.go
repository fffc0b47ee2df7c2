package handlers

import (
	"net/http"
	"sync"

	"github.com/benvon/workitem-fieldmap/internal/logger"
	"github.com/benvon/workitem-fieldmap/internal/mapping"
	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/benvon/workitem-fieldmap/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MappingHandler exposes the mapping engine to the dashboard.
// The engine is not safe for concurrent use, so every request holds mu.
type MappingHandler struct {
	mu     sync.Mutex
	engine *mapping.Engine
	log    *zap.Logger
}

// NewMappingHandler creates a new mapping handler
func NewMappingHandler(engine *mapping.Engine, log *zap.Logger) *MappingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MappingHandler{engine: engine, log: log}
}

// RegisterRoutes registers mapping and preset routes on an /api/v1 subrouter
func (h *MappingHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/mapping", h.GetState).Methods("GET")
	r.HandleFunc("/mapping/fields/{field}", h.SetField).Methods("PUT")
	r.HandleFunc("/mapping/export", h.ExportMapping).Methods("GET")
	r.HandleFunc("/mapping/transform", h.Transform).Methods("POST")

	r.HandleFunc("/presets", h.ListPresets).Methods("GET")
	r.HandleFunc("/presets", h.SavePreset).Methods("POST")
	r.HandleFunc("/presets/selected", h.OverwriteSelected).Methods("PUT")
	r.HandleFunc("/presets/selected", h.DeleteSelected).Methods("DELETE")
	r.HandleFunc("/presets/{id}/select", h.SelectPreset).Methods("POST")
	r.HandleFunc("/presets/{id}/load", h.LoadPreset).Methods("POST")
}

// MappingState is the full editor state rendered by the dashboard
type MappingState struct {
	Mapping          models.FieldMapping    `json:"mapping"`
	SelectedPresetID string                 `json:"selectedPresetId"`
	Presets          []models.Preset        `json:"presets"`
	TaskFields       []models.TaskFieldInfo `json:"taskFields"`
}

// ChangeResponse reports whether an operation changed anything
type ChangeResponse struct {
	Changed bool           `json:"changed"`
	State   MappingState   `json:"state"`
	Preset  *models.Preset `json:"preset,omitempty"`
}

// SetFieldRequest assigns an external field to a task field. An empty
// referenceName clears the assignment.
type SetFieldRequest struct {
	ReferenceName string `json:"referenceName" validate:"max=256"`
}

// SavePresetRequest names the snapshot of the working mapping
type SavePresetRequest struct {
	Name string `json:"name" validate:"max=1000"`
}

// TransformRequest carries the data to translate. Fields is read for
// imports, Values for exports.
type TransformRequest struct {
	Fields map[string]any    `json:"fields"`
	Values map[string]string `json:"values"`
}

// TransformResponse carries the translated data for the requested direction
type TransformResponse struct {
	Direction  models.Direction            `json:"direction"`
	Values     map[models.TaskField]string `json:"values,omitempty"`
	Operations []mapping.PatchOperation    `json:"operations,omitempty"`
}

// state must be called with mu held
func (h *MappingHandler) state() MappingState {
	return MappingState{
		Mapping:          h.engine.WorkingMapping(),
		SelectedPresetID: h.engine.SelectedPresetID(),
		Presets:          h.engine.Presets(),
		TaskFields:       models.TaskFieldDescriptors(),
	}
}

// GetState returns the working mapping, presets and selection
func (h *MappingHandler) GetState(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	state := h.state()
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, state)
}

// SetField assigns one task field in the working mapping
func (h *MappingHandler) SetField(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]
	if err := validation.ValidateTaskField(field); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var req SetFieldRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.mu.Lock()
	h.engine.SetMapping(models.TaskField(field), validation.SanitizeText(req.ReferenceName))
	state := h.state()
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, ChangeResponse{Changed: true, State: state})
}

// ExportMapping returns the display-name projection of the working mapping
func (h *MappingHandler) ExportMapping(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	exported := h.engine.ExportMapping()
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, exported)
}

// Transform applies the working mapping to work-item data in either direction
func (h *MappingHandler) Transform(w http.ResponseWriter, r *http.Request) {
	direction := r.URL.Query().Get("direction")
	if err := validation.ValidateDirection(direction); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var req TransformRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	values := make(map[models.TaskField]string, len(req.Values))
	if models.Direction(direction) == models.DirectionExport {
		for k, v := range req.Values {
			if err := validation.ValidateTaskField(k); err != nil {
				respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
				return
			}
			values[models.TaskField(k)] = v
		}
	}

	h.mu.Lock()
	working := h.engine.WorkingMapping()
	h.mu.Unlock()

	resp := TransformResponse{Direction: models.Direction(direction)}
	if resp.Direction == models.DirectionImport {
		resp.Values = mapping.ImportTask(working, req.Fields)
	} else {
		resp.Operations = mapping.ExportPatch(working, values)
	}

	respondJSON(w, http.StatusOK, resp)
}

// ListPresets returns the preset collection in order
func (h *MappingHandler) ListPresets(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	list := h.engine.Presets()
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, list)
}

// SavePreset stores the working mapping as a new preset and selects it
func (h *MappingHandler) SavePreset(w http.ResponseWriter, r *http.Request) {
	var req SavePresetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	preset, err := h.engine.SaveCurrentAsPreset(r.Context(), req.Name)
	if err != nil {
		h.log.Error("failed_to_save_preset",
			zap.String("name", logger.SanitizeName(req.Name)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save presets")
		return
	}
	if preset == nil {
		respondJSON(w, http.StatusOK, ChangeResponse{Changed: false, State: h.state()})
		return
	}

	respondJSON(w, http.StatusCreated, ChangeResponse{Changed: true, State: h.state(), Preset: preset})
}

// SelectPreset marks a preset as selected without loading it
func (h *MappingHandler) SelectPreset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.mu.Lock()
	changed := h.engine.SelectPreset(id)
	state := h.state()
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, ChangeResponse{Changed: changed, State: state})
}

// LoadPreset copies a preset into the working mapping and selects it
func (h *MappingHandler) LoadPreset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.mu.Lock()
	changed := h.engine.LoadPreset(id)
	state := h.state()
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, ChangeResponse{Changed: changed, State: state})
}

// OverwriteSelected replaces the selected preset's fields with the working mapping
func (h *MappingHandler) OverwriteSelected(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed, err := h.engine.OverwriteSelectedPreset(r.Context())
	if err != nil {
		h.log.Error("failed_to_overwrite_preset",
			zap.String("preset_id", h.engine.SelectedPresetID()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save presets")
		return
	}

	respondJSON(w, http.StatusOK, ChangeResponse{Changed: changed, State: h.state()})
}

// DeleteSelected removes the selected preset and clears the selection
func (h *MappingHandler) DeleteSelected(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed, err := h.engine.DeleteSelectedPreset(r.Context())
	if err != nil {
		h.log.Error("failed_to_delete_preset",
			zap.String("preset_id", h.engine.SelectedPresetID()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save presets")
		return
	}

	respondJSON(w, http.StatusOK, ChangeResponse{Changed: changed, State: h.state()})
}
