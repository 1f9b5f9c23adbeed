package model

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// ChangeStatus is the per-file change status reported by source control.
type ChangeStatus string

const (
	StatusAdded     ChangeStatus = "added"
	StatusModified  ChangeStatus = "modified"
	StatusRemoved   ChangeStatus = "removed"
	StatusRenamed   ChangeStatus = "renamed"
	StatusChanged   ChangeStatus = "changed"
	StatusCopied    ChangeStatus = "copied"
	StatusUnchanged ChangeStatus = "unchanged"
)

var validStatuses = []ChangeStatus{
	StatusAdded,
	StatusModified,
	StatusRemoved,
	StatusRenamed,
	StatusChanged,
	StatusCopied,
	StatusUnchanged,
}

// ValidateStatus returns an error if s is not a recognized change status.
func ValidateStatus(s ChangeStatus) error {
	for _, v := range validStatuses {
		if s == v {
			return nil
		}
	}
	return fmt.Errorf("invalid change status %q: must be one of %v", s, validStatuses)
}

// ChangedModel is one dbt model file touched by the pull request.
//
// The catalog identity, mappings and downstream lists are filled in by the
// lineage resolver; Impacts is filled in by the deduplication step.
type ChangedModel struct {
	Path   string
	Status ChangeStatus

	Mappings   []WarehouseMapping
	Downstream []DownstreamConsumer
	Impacts    []ImpactEntry

	filename string
	guid     string
}

// NewChangedModel builds a ChangedModel from a repository-relative path.
// An empty status is accepted and left empty; a non-empty unknown status is
// rejected.
func NewChangedModel(filePath string, status ChangeStatus) (*ChangedModel, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, &ParseError{Entity: "changed model", Field: "filename", Err: ErrMissingField}
	}
	if status != "" {
		if err := ValidateStatus(status); err != nil {
			return nil, &ParseError{Entity: "changed model", Field: "status", Err: err}
		}
	}
	return &ChangedModel{
		Path:     filePath,
		Status:   status,
		filename: path.Base(filePath),
	}, nil
}

// Filename returns the final segment of the model path.
func (m *ChangedModel) Filename() string { return m.filename }

// GUID returns the catalog identity, or "" when the model is unresolved.
func (m *ChangedModel) GUID() string { return m.guid }

// Resolved reports whether a catalog identity has been assigned.
func (m *ChangedModel) Resolved() bool { return m.guid != "" }

// SetGUID assigns the catalog identity. Once set, the identity is never
// replaced; it reports whether the assignment took effect.
func (m *ChangedModel) SetGUID(guid string) bool {
	if m.guid != "" || guid == "" {
		return false
	}
	m.guid = guid
	return true
}

// FirstMapping returns the first warehouse mapping, or nil if there is none.
// Only the first mapping takes part in impact computation.
func (m *ChangedModel) FirstMapping() *WarehouseMapping {
	if len(m.Mappings) == 0 {
		return nil
	}
	return &m.Mappings[0]
}

// MappedDownstream returns the downstream consumers of the first mapping's
// physical table, or nil if the model has no mapped table.
func (m *ChangedModel) MappedDownstream() []DownstreamConsumer {
	first := m.FirstMapping()
	if first == nil || first.Table == nil {
		return nil
	}
	return first.Table.Downstream
}

// DisplayName returns the model path without its file extension.
func (m *ChangedModel) DisplayName() string {
	if i := strings.Index(m.Path, "."); i >= 0 {
		return m.Path[:i]
	}
	return m.Path
}

// changedModelJSON is the JSON wire format for ChangedModel.
type changedModelJSON struct {
	Path       string               `json:"path"`
	Filename   string               `json:"filename"`
	Status     string               `json:"status"`
	GUID       *string              `json:"guid"`
	Mappings   []WarehouseMapping   `json:"warehouse_mappings"`
	Downstream []DownstreamConsumer `json:"downstream"`
	Impacts    []ImpactEntry        `json:"impacts"`
}

// MarshalJSON implements custom JSON serialization for ChangedModel.
func (m ChangedModel) MarshalJSON() ([]byte, error) {
	j := changedModelJSON{
		Path:       m.Path,
		Filename:   m.filename,
		Status:     string(m.Status),
		Mappings:   m.Mappings,
		Downstream: m.Downstream,
		Impacts:    m.Impacts,
	}
	if m.guid != "" {
		guid := m.guid
		j.GUID = &guid
	}
	if j.Mappings == nil {
		j.Mappings = []WarehouseMapping{}
	}
	if j.Downstream == nil {
		j.Downstream = []DownstreamConsumer{}
	}
	if j.Impacts == nil {
		j.Impacts = []ImpactEntry{}
	}
	return json.Marshal(j)
}
