package validation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/go-playground/validator/v10"
)

// MaxPresetNameLength bounds user-supplied preset names
const MaxPresetNameLength = 200

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("task_field", validateTaskField); err != nil {
		panic(fmt.Sprintf("failed to register task_field validator: %v", err))
	}
	if err := Validate.RegisterValidation("direction", validateDirection); err != nil {
		panic(fmt.Sprintf("failed to register direction validator: %v", err))
	}
}

func validateTaskField(fl validator.FieldLevel) bool {
	return models.TaskField(fl.Field().String()).Valid()
}

func validateDirection(fl validator.FieldLevel) bool {
	return models.Direction(fl.Field().String()).Valid()
}

// SanitizeText trims whitespace and removes control characters except newline and tab
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// SanitizePresetName collapses a preset name to a single trimmed line.
// An empty result means the name is unusable.
func SanitizePresetName(name string) string {
	name = SanitizeText(name)
	name = strings.Join(strings.Fields(name), " ")
	if len([]rune(name)) > MaxPresetNameLength {
		name = string([]rune(name)[:MaxPresetNameLength])
	}
	return name
}

// ValidateTaskField validates a task field string value
func ValidateTaskField(value string) error {
	if models.TaskField(value).Valid() {
		return nil
	}
	return fmt.Errorf("invalid task field: %s (must be 'title', 'description', 'acceptanceCriteria', or 'additionalInfo')", value)
}

// ValidateDirection validates a direction string value
func ValidateDirection(value string) error {
	if models.Direction(value).Valid() {
		return nil
	}
	return fmt.Errorf("invalid direction: %s (must be 'import' or 'export')", value)
}

// CleanPreset prepares a preset read from outside the process for validation.
// Entries with an empty reference name are treated as unmapped and entries
// keyed by unknown task fields are dropped; the dropped keys are returned.
func CleanPreset(p models.Preset) (models.Preset, []models.TaskField) {
	cleaned := make(models.FieldMapping, len(p.Fields))
	var dropped []models.TaskField
	for field, ref := range p.Fields {
		if !field.Valid() || strings.TrimSpace(ref.ReferenceName) == "" {
			dropped = append(dropped, field)
			continue
		}
		cleaned[field] = ref
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
	p.Fields = cleaned
	return p, dropped
}

// ValidatePreset checks a preset read from outside the process.
// Fields keyed by unknown task fields or lacking a reference name are reported.
func ValidatePreset(p models.Preset) error {
	if err := Validate.Struct(p); err != nil {
		return fmt.Errorf("invalid preset: %w", err)
	}
	for field, ref := range p.Fields {
		if !field.Valid() {
			return fmt.Errorf("invalid preset %s: unknown task field %q", p.ID, field)
		}
		if err := Validate.Struct(ref); err != nil {
			return fmt.Errorf("invalid preset %s: field %s: %w", p.ID, field, err)
		}
	}
	return nil
}
