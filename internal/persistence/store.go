// Package persistence is the optional sqlite history store. The core
// runs correctly without it; a restart begins with empty indices.
package persistence

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AGENTHIVE/internal/hootl"
	"github.com/AGENTHIVE/internal/priority"
	"github.com/AGENTHIVE/internal/sla"
)

//go:embed schema.sql
var schemaSQL string

// Store persists priority assignments, SLA compliance snapshots,
// violations and HOOTL cycle history
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	db.SetMaxOpenConns(1) // sqlite writer discipline

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAssignment upserts a priority assignment snapshot
func (s *Store) SaveAssignment(a *priority.Assignment) error {
	locked := 0
	if a.Locked {
		locked = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO priority_assignments (target_id, target_kind, base_priority, current_priority, locked, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			current_priority = excluded.current_priority,
			locked = excluded.locked,
			last_updated = excluded.last_updated`,
		a.TargetID.String(), string(a.TargetKind), a.BasePriority, a.CurrentPriority,
		locked, a.CreatedAt, a.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

// DeleteAssignment removes a persisted assignment
func (s *Store) DeleteAssignment(targetID string) error {
	if _, err := s.db.Exec(`DELETE FROM priority_assignments WHERE target_id = ?`, targetID); err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	return nil
}

// SaveCompliance appends a compliance snapshot
func (s *Store) SaveCompliance(c *sla.Compliance) error {
	_, err := s.db.Exec(`
		INSERT INTO sla_compliance (sla_id, current_value, target_value, compliance_pct, status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.SLAID, c.CurrentValue, c.TargetValue, c.CompliancePercentage, string(c.Status), c.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to save compliance: %w", err)
	}
	return nil
}

// SaveViolation appends an SLA violation record
func (s *Store) SaveViolation(v *sla.Violation) error {
	resolved := 0
	if v.Resolved {
		resolved = 1
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sla_violations (id, sla_id, severity, measured, target, resolved, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID.String(), v.SLAID, string(v.Severity), v.Measured, v.Target, resolved, v.Time)
	if err != nil {
		return fmt.Errorf("failed to save violation: %w", err)
	}
	return nil
}

// ViolationCount returns the number of persisted violations for an SLA
func (s *Store) ViolationCount(slaID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sla_violations WHERE sla_id = ?`, slaID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return count, nil
}

// SaveCycle appends a HOOTL cycle result
func (s *Store) SaveCycle(r *hootl.CycleResult) error {
	phases, err := json.Marshal(r.Phases)
	if err != nil {
		return fmt.Errorf("failed to marshal phases: %w", err)
	}
	success := 0
	if r.Success {
		success = 1
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO hootl_cycles (cycle, started_at, duration_ms, success, score, phases)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Cycle, r.StartedAt, r.Duration.Milliseconds(), success, r.Score, string(phases))
	if err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the newest n cycle summaries
func (s *Store) RecentCycles(n int) ([]hootl.CycleResult, error) {
	rows, err := s.db.Query(`
		SELECT cycle, started_at, duration_ms, success, score, phases
		FROM hootl_cycles ORDER BY cycle DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var result []hootl.CycleResult
	for rows.Next() {
		var (
			r          hootl.CycleResult
			durationMS int64
			success    int
			phases     string
		)
		if err := rows.Scan(&r.Cycle, &r.StartedAt, &durationMS, &success, &r.Score, &phases); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Success = success == 1
		if err := json.Unmarshal([]byte(phases), &r.Phases); err != nil {
			return nil, fmt.Errorf("failed to decode phases: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// PruneBefore removes history rows older than the cutoff
func (s *Store) PruneBefore(cutoff time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM sla_compliance WHERE recorded_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune compliance: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM sla_violations WHERE occurred_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune violations: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM hootl_cycles WHERE started_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune cycles: %w", err)
	}
	return nil
}
