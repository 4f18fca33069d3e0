package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/hootl"
	"github.com/AGENTHIVE/internal/priority"
	"github.com/AGENTHIVE/internal/sla"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndDeleteAssignment(t *testing.T) {
	s := openTestStore(t)

	a := &priority.Assignment{
		TargetID:        uuid.New(),
		TargetKind:      priority.TargetTask,
		BasePriority:    40,
		CurrentPriority: 55,
		CreatedAt:       time.Now(),
		LastUpdated:     time.Now(),
	}
	if err := s.SaveAssignment(a); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Upsert path
	a.CurrentPriority = 70
	if err := s.SaveAssignment(a); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := s.DeleteAssignment(a.TargetID.String()); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
}

func TestSaveComplianceAndViolation(t *testing.T) {
	s := openTestStore(t)

	c := &sla.Compliance{
		SLAID:                "response-time",
		CurrentValue:         700,
		TargetValue:          300,
		CompliancePercentage: 42.86,
		Status:               sla.StatusViolation,
		LastUpdated:          time.Now(),
	}
	if err := s.SaveCompliance(c); err != nil {
		t.Fatalf("save compliance failed: %v", err)
	}

	v := &sla.Violation{
		ID:       uuid.New(),
		SLAID:    "response-time",
		Time:     time.Now(),
		Severity: sla.SeverityCatastrophic,
		Measured: 700,
		Target:   300,
	}
	if err := s.SaveViolation(v); err != nil {
		t.Fatalf("save violation failed: %v", err)
	}

	count, err := s.ViolationCount("response-time")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 violation, got %d", count)
	}
}

func TestSaveAndReadCycles(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 3; i++ {
		r := &hootl.CycleResult{
			Cycle:     uint64(i),
			StartedAt: time.Now(),
			Duration:  250 * time.Millisecond,
			Success:   i != 2,
			Score:     0.85,
			Phases: []hootl.PhaseResult{
				{Phase: hootl.PhaseSense, Success: true},
				{Phase: hootl.PhaseDecide, Success: true},
			},
		}
		if err := s.SaveCycle(r); err != nil {
			t.Fatalf("save cycle %d failed: %v", i, err)
		}
	}

	cycles, err := s.RecentCycles(2)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(cycles))
	}
	if cycles[0].Cycle != 3 {
		t.Errorf("expected newest cycle first, got %d", cycles[0].Cycle)
	}
	if len(cycles[0].Phases) != 2 {
		t.Errorf("phases not round-tripped: %d", len(cycles[0].Phases))
	}
	if cycles[1].Success {
		t.Error("cycle 2 should read back as failed")
	}
}

func TestPruneBefore(t *testing.T) {
	s := openTestStore(t)

	old := &sla.Violation{
		ID: uuid.New(), SLAID: "aged", Time: time.Now().Add(-48 * time.Hour),
		Severity: sla.SeverityMinor, Measured: 10, Target: 9,
	}
	fresh := &sla.Violation{
		ID: uuid.New(), SLAID: "aged", Time: time.Now(),
		Severity: sla.SeverityMinor, Measured: 10, Target: 9,
	}
	if err := s.SaveViolation(old); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.SaveViolation(fresh); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := s.PruneBefore(time.Now().Add(-24 * time.Hour)); err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	count, _ := s.ViolationCount("aged")
	if count != 1 {
		t.Errorf("expected 1 violation after prune, got %d", count)
	}
}
