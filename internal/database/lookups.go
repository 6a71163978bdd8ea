package database

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/evidenceledger/psd2attr/internal/errl"
	"github.com/evidenceledger/psd2attr/internal/models"
)

// CreateLookup stores the audit record of an attribute lookup
func (d *Database) CreateLookup(l *models.AttributeLookup) error {
	roles := l.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return errl.Errorf("failed to encode roles: %w", err)
	}

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO attribute_lookups (
			fingerprint, organization_identifier, roles, outcome, error_code,
			valid_from, valid_to, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.Exec(query,
		l.Fingerprint, l.OrganizationIdentifier, string(rolesJSON), l.Outcome, l.ErrorCode,
		l.ValidFrom.UTC(), l.ValidTo.UTC(), l.Source, l.CreatedAt.UTC(),
	)
	if err != nil {
		return errl.Errorf("failed to create attribute lookup: %w", err)
	}

	l.ID, _ = result.LastInsertId()

	slog.Debug("Created attribute lookup", "id", l.ID, "outcome", l.Outcome, "fingerprint", l.Fingerprint)
	return nil
}

// ListLookups returns the most recent lookups first
func (d *Database) ListLookups(limit int) ([]models.AttributeLookup, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, fingerprint, organization_identifier, roles, outcome, error_code,
		       valid_from, valid_to, source, created_at
		FROM attribute_lookups
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, errl.Errorf("failed to list attribute lookups: %w", err)
	}
	defer rows.Close()

	lookups := []models.AttributeLookup{}
	for rows.Next() {
		var l models.AttributeLookup
		var rolesJSON string
		err := rows.Scan(
			&l.ID, &l.Fingerprint, &l.OrganizationIdentifier, &rolesJSON, &l.Outcome, &l.ErrorCode,
			&l.ValidFrom, &l.ValidTo, &l.Source, &l.CreatedAt,
		)
		if err != nil {
			return nil, errl.Errorf("failed to scan attribute lookup: %w", err)
		}
		if err := json.Unmarshal([]byte(rolesJSON), &l.Roles); err != nil {
			return nil, errl.Errorf("failed to decode roles of lookup %d: %w", l.ID, err)
		}
		lookups = append(lookups, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errl.Errorf("failed to list attribute lookups: %w", err)
	}

	return lookups, nil
}

// CleanupLookups removes audit records older than maxAge
func (d *Database) CleanupLookups(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	result, err := d.db.Exec(`DELETE FROM attribute_lookups WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errl.Errorf("failed to cleanup attribute lookups: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		slog.Debug("Cleaned up attribute lookups", "count", rowsAffected)
	}

	return rowsAffected, nil
}
