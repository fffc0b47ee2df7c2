package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ExternalField is a field exposed by the external tracker's project schema
type ExternalField struct {
	ReferenceName string `json:"referenceName" yaml:"referenceName" validate:"required"`
	DisplayName   string `json:"displayName" yaml:"displayName"`
}

// FieldRef is a single mapping entry. DisplayName is cached at selection
// time and is not refreshed when the external catalog changes.
type FieldRef struct {
	ReferenceName string `json:"referenceName" yaml:"referenceName" validate:"required"`
	DisplayName   string `json:"displayName" yaml:"displayName"`
}

// UnmarshalJSON accepts both the object form and the older plain
// reference-name string form, where the display name was never stored.
func (r *FieldRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.ReferenceName = name
		r.DisplayName = name
		return nil
	}

	type plain FieldRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("field ref must be a string or object: %w", err)
	}
	*r = FieldRef(p)
	return nil
}

// UnmarshalYAML accepts the same two forms as UnmarshalJSON
func (r *FieldRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var name string
		if err := value.Decode(&name); err != nil {
			return err
		}
		r.ReferenceName = name
		r.DisplayName = name
		return nil
	}

	type plain FieldRef
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("field ref must be a string or mapping: %w", err)
	}
	*r = FieldRef(p)
	return nil
}

// FieldMapping maps task fields to external fields. A missing key means unmapped.
type FieldMapping map[TaskField]FieldRef

// Clone returns an independent copy of m
func (m FieldMapping) Clone() FieldMapping {
	out := make(FieldMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DisplayNames projects m onto the display names of its mapped fields.
// Unmapped task fields are absent from the result.
func (m FieldMapping) DisplayNames() map[TaskField]string {
	out := make(map[TaskField]string, len(m))
	for _, f := range AllTaskFields() {
		if ref, ok := m[f]; ok && ref.ReferenceName != "" {
			out[f] = ref.DisplayName
		}
	}
	return out
}

// Preset is a named, persisted snapshot of a field mapping
type Preset struct {
	ID     string       `json:"id" yaml:"id" validate:"required"`
	Name   string       `json:"name" yaml:"name"`
	Fields FieldMapping `json:"fields" yaml:"fields"`
}

// Clone returns a deep copy of p
func (p Preset) Clone() Preset {
	p.Fields = p.Fields.Clone()
	return p
}

// DefaultPresetID is the id of the preset that ships with the service
const DefaultPresetID = "default"

// DefaultPreset returns the built-in Azure DevOps mapping
func DefaultPreset() Preset {
	return Preset{
		ID:   DefaultPresetID,
		Name: "Default Mapping",
		Fields: FieldMapping{
			TaskFieldTitle:              {ReferenceName: "System.Title", DisplayName: "Title"},
			TaskFieldDescription:        {ReferenceName: "System.Description", DisplayName: "Description"},
			TaskFieldAcceptanceCriteria: {ReferenceName: "Microsoft.VSTS.Common.AcceptanceCriteria", DisplayName: "Acceptance Criteria"},
			TaskFieldAdditionalInfo:     {ReferenceName: "System.AdditionalInfo", DisplayName: "Additional Info"},
		},
	}
}
