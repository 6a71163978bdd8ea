package models

import (
	"time"
)

// Outcomes of an attribute lookup.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AttributeLookup is the audit record of one attribute lookup
type AttributeLookup struct {
	ID                     int64     `json:"id"`
	Fingerprint            string    `json:"fingerprint,omitempty"` // empty when no certificate could be decoded
	OrganizationIdentifier string    `json:"organization_identifier,omitempty"`
	Roles                  []string  `json:"roles"`
	Outcome                string    `json:"outcome"`
	ErrorCode              string    `json:"error_code,omitempty"`
	ValidFrom              time.Time `json:"valid_from,omitzero"`
	ValidTo                time.Time `json:"valid_to,omitzero"`
	Source                 string    `json:"source"` // "attributes" or "mtls"
	CreatedAt              time.Time `json:"created_at"`
}
