package models

// TaskField identifies one of the internal task fields a mapping targets.
// The set is closed: adding a field is a code change.
type TaskField string

const (
	TaskFieldTitle              TaskField = "title"
	TaskFieldDescription        TaskField = "description"
	TaskFieldAcceptanceCriteria TaskField = "acceptanceCriteria"
	TaskFieldAdditionalInfo     TaskField = "additionalInfo"
)

// TaskFieldInfo describes a task field for display in the dashboard
type TaskFieldInfo struct {
	ID          TaskField `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

var taskFields = []TaskFieldInfo{
	{ID: TaskFieldTitle, Name: "Title", Description: "Maps to the title/headline of the task"},
	{ID: TaskFieldDescription, Name: "Description", Description: "Maps to the main description content of the task"},
	{ID: TaskFieldAcceptanceCriteria, Name: "Acceptance Criteria", Description: "Maps to the criteria that must be met for the task to be considered complete"},
	{ID: TaskFieldAdditionalInfo, Name: "Additional Information", Description: "Maps to any additional information or context about the task"},
}

// AllTaskFields returns every task field in canonical order
func AllTaskFields() []TaskField {
	out := make([]TaskField, len(taskFields))
	for i, info := range taskFields {
		out[i] = info.ID
	}
	return out
}

// TaskFieldDescriptors returns display metadata for every task field in canonical order
func TaskFieldDescriptors() []TaskFieldInfo {
	out := make([]TaskFieldInfo, len(taskFields))
	copy(out, taskFields)
	return out
}

// Valid reports whether f is one of the known task fields
func (f TaskField) Valid() bool {
	for _, info := range taskFields {
		if info.ID == f {
			return true
		}
	}
	return false
}

// Info returns the descriptor for f, or false when f is unknown
func (f TaskField) Info() (TaskFieldInfo, bool) {
	for _, info := range taskFields {
		if info.ID == f {
			return info, true
		}
	}
	return TaskFieldInfo{}, false
}

// Direction selects which way a mapping is applied
type Direction string

const (
	// DirectionImport translates external work-item fields into task fields
	DirectionImport Direction = "import"
	// DirectionExport translates task fields into external work-item fields
	DirectionExport Direction = "export"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == DirectionImport || d == DirectionExport
}
