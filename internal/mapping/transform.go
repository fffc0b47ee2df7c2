package mapping

import (
	"fmt"
	"strconv"

	"github.com/benvon/workitem-fieldmap/internal/models"
)

// PatchOperation is one JSON-Patch operation of a work-item update
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// Invert returns the reverse lookup of m, from external reference name to task field.
// When several task fields share a reference, the first in canonical order wins.
func Invert(m models.FieldMapping) map[string]models.TaskField {
	out := make(map[string]models.TaskField, len(m))
	for _, field := range models.AllTaskFields() {
		ref, ok := m[field]
		if !ok || ref.ReferenceName == "" {
			continue
		}
		if _, taken := out[ref.ReferenceName]; taken {
			continue
		}
		out[ref.ReferenceName] = field
	}
	return out
}

// ImportTask reads the mapped task field values out of an external work
// item's field bag. Missing or null values are left out.
func ImportTask(m models.FieldMapping, external map[string]any) map[models.TaskField]string {
	out := make(map[models.TaskField]string, len(m))
	for _, field := range models.AllTaskFields() {
		ref, ok := m[field]
		if !ok || ref.ReferenceName == "" {
			continue
		}
		raw, ok := external[ref.ReferenceName]
		if !ok || raw == nil {
			continue
		}
		out[field] = toString(raw)
	}
	return out
}

// ExportPatch builds the work-item update that writes values into their
// mapped external fields. Unmapped fields and empty values are skipped.
func ExportPatch(m models.FieldMapping, values map[models.TaskField]string) []PatchOperation {
	ops := make([]PatchOperation, 0, len(values))
	for _, field := range models.AllTaskFields() {
		value, ok := values[field]
		if !ok || value == "" {
			continue
		}
		ref, ok := m[field]
		if !ok || ref.ReferenceName == "" {
			continue
		}
		ops = append(ops, PatchOperation{
			Op:    "add",
			Path:  "/fields/" + ref.ReferenceName,
			Value: value,
		})
	}
	return ops
}

// toString flattens a decoded JSON value. Identity objects collapse to their display name.
func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		if name, ok := val["displayName"].(string); ok {
			return name
		}
		return fmt.Sprint(val)
	default:
		return fmt.Sprint(val)
	}
}
