package models

import "slices"

// Column names of the attribute table returned to the identity server.
const (
	ColumnRoles                  = "roles"
	ColumnOrganizationIdentifier = "organizationIdentifier"
)

// ExtractionResult holds the PSD2 attributes read from one certificate.
// Roles keep encounter order and may contain duplicates.
type ExtractionResult struct {
	Roles                  []string `json:"roles"`
	OrganizationIdentifier string   `json:"organizationIdentifier"`
}

// Clone returns a copy that shares no memory with r.
func (r ExtractionResult) Clone() ExtractionResult {
	roles := slices.Clone(r.Roles)
	if roles == nil {
		roles = []string{}
	}
	return ExtractionResult{
		Roles:                  roles,
		OrganizationIdentifier: r.OrganizationIdentifier,
	}
}

// AttributeRow is one row of an attribute table, keyed by column name.
type AttributeRow map[string]any

// AttributeTable is the result of an attribute lookup.
type AttributeTable struct {
	Rows []AttributeRow `json:"rows"`
}

// NewAttributeTable builds the single row table for an extraction result.
func NewAttributeTable(r ExtractionResult) *AttributeTable {
	r = r.Clone()
	return &AttributeTable{
		Rows: []AttributeRow{{
			ColumnRoles:                  r.Roles,
			ColumnOrganizationIdentifier: r.OrganizationIdentifier,
		}},
	}
}

// Row returns row i, or nil if out of range.
func (t *AttributeTable) Row(i int) AttributeRow {
	if i < 0 || i >= len(t.Rows) {
		return nil
	}
	return t.Rows[i]
}
