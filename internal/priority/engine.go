package priority

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/task"
	"github.com/AGENTHIVE/internal/types"
)

// Engine errors
var (
	ErrAssignmentNotFound = errors.New("priority assignment not found")
	ErrAssignmentLocked   = errors.New("priority assignment is locked")
)

// agingBonusPerHour is the priority added per hour of assignment age by
// the background recalculation pass
const agingBonusPerHour = 0.5

// Engine computes weighted-factor priorities and maintains the live
// assignment table. A background loop applies aging and refreshes the
// aggregate statistics.
type Engine struct {
	mu          sync.RWMutex
	cfg         types.PriorityConfig
	factors     []Factor
	assignments map[uuid.UUID]*Assignment
	stats       Stats

	// now is swappable for tests that advance simulated time
	now func() time.Time
}

// NewEngine creates a priority engine with the default factor set
func NewEngine(cfg types.PriorityConfig) *Engine {
	return &Engine{
		cfg:         cfg,
		factors:     DefaultFactors(),
		assignments: make(map[uuid.UUID]*Assignment),
		stats:       Stats{ByKind: make(map[TargetKind]int)},
		now:         time.Now,
	}
}

// SetClock replaces the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetFactors replaces the factor set
func (e *Engine) SetFactors(factors []Factor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factors = factors
}

// CalculatePriority computes the task's priority in [0, 100] and records
// the assignment. Weights over enabled factors normalize to 1; a zero
// weight sum falls back to the neutral 50. The task's age adds
// age_seconds * aging_factor on top.
func (e *Engine) CalculatePriority(t *task.Task) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var total, totalWeight float64
	var applied []AppliedFactor

	for _, f := range e.factors {
		if !f.Enabled {
			continue
		}
		value := factorValue(f.Kind, t)
		contribution := f.Weight * value
		total += contribution
		totalWeight += f.Weight
		applied = append(applied, AppliedFactor{
			Kind: f.Kind, Weight: f.Weight, Value: value, Contribution: contribution,
		})
	}

	normalized := 50.0
	if totalWeight > 0 {
		normalized = total / totalWeight
	}

	ageBonus := now.Sub(t.CreatedAt).Seconds() * e.cfg.PriorityAgingFactor
	final := clamp(normalized+ageBonus, 0, 100)

	existing, ok := e.assignments[t.ID]
	if ok && existing.Locked {
		// Locked assignments keep their priority and are not updated
		return existing.CurrentPriority
	}

	assignment := &Assignment{
		TargetID:        t.ID,
		TargetKind:      TargetTask,
		BasePriority:    normalized,
		CurrentPriority: final,
		AppliedFactors:  applied,
		// Assignment age tracks the task's age so ageing and the
		// task-age policy condition see one clock.
		CreatedAt:   t.CreatedAt,
		LastUpdated: now,
	}
	if ok {
		assignment.CreatedAt = existing.CreatedAt
		assignment.Locked = existing.Locked
		assignment.SourceAgent = existing.SourceAgent
	}
	e.assignments[t.ID] = assignment

	return final
}

// Escalate multiplies the current priority by (1 + factor), clamped to
// [0, 100]. Locked assignments reject the escalation.
func (e *Engine) Escalate(targetID uuid.UUID, factor float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	assignment, ok := e.assignments[targetID]
	if !ok {
		return 0, ErrAssignmentNotFound
	}
	if assignment.Locked {
		return assignment.CurrentPriority, ErrAssignmentLocked
	}

	assignment.CurrentPriority = clamp(assignment.CurrentPriority*(1+factor), 0, 100)
	assignment.LastUpdated = e.now()
	return assignment.CurrentPriority, nil
}

// Boost adds a flat amount to the current priority, clamped to [0, 100].
// Locked assignments reject the boost.
func (e *Engine) Boost(targetID uuid.UUID, amount float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	assignment, ok := e.assignments[targetID]
	if !ok {
		return 0, ErrAssignmentNotFound
	}
	if assignment.Locked {
		return assignment.CurrentPriority, ErrAssignmentLocked
	}

	assignment.CurrentPriority = clamp(assignment.CurrentPriority+amount, 0, 100)
	assignment.LastUpdated = e.now()
	return assignment.CurrentPriority, nil
}

// Lock marks an assignment as locked by the given source agent
func (e *Engine) Lock(targetID uuid.UUID, source *uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	assignment, ok := e.assignments[targetID]
	if !ok {
		return ErrAssignmentNotFound
	}
	assignment.Locked = true
	assignment.SourceAgent = source
	return nil
}

// Unlock clears an assignment lock
func (e *Engine) Unlock(targetID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	assignment, ok := e.assignments[targetID]
	if !ok {
		return ErrAssignmentNotFound
	}
	assignment.Locked = false
	assignment.SourceAgent = nil
	return nil
}

// Assignment returns a copy of the assignment for targetID
func (e *Engine) Assignment(targetID uuid.UUID) (*Assignment, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	assignment, ok := e.assignments[targetID]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	clone := *assignment
	return &clone, nil
}

// Remove drops an assignment, usually after its target completes
func (e *Engine) Remove(targetID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.assignments, targetID)
}

// Assignments returns copies of every live assignment
func (e *Engine) Assignments() []*Assignment {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*Assignment, 0, len(e.assignments))
	for _, a := range e.assignments {
		clone := *a
		result = append(result, &clone)
	}
	return result
}

// OldestAssignmentAge returns the age of the oldest live task assignment
func (e *Engine) OldestAssignmentAge() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	var oldest time.Duration
	for _, a := range e.assignments {
		if a.TargetKind != TargetTask {
			continue
		}
		if age := now.Sub(a.CreatedAt); age > oldest {
			oldest = age
		}
	}
	return oldest
}

// Stats returns the last computed aggregate statistics
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := e.stats
	stats.ByKind = make(map[TargetKind]int, len(e.stats.ByKind))
	for k, v := range e.stats.ByKind {
		stats.ByKind[k] = v
	}
	return stats
}

// Recalculate applies the aging bonus to every live assignment, drops
// expired ones, and refreshes the aggregate statistics. Runs on each
// calculation tick and is safe to call directly.
func (e *Engine) Recalculate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	stats := Stats{ByKind: make(map[TargetKind]int), UpdatedAt: now}
	var sum float64

	for id, a := range e.assignments {
		if a.Expired(now) {
			delete(e.assignments, id)
			continue
		}
		if !a.Locked {
			ageHours := now.Sub(a.CreatedAt).Hours()
			a.CurrentPriority = clamp(a.CurrentPriority+ageHours*agingBonusPerHour, 0, 100)
			a.LastUpdated = now
		}

		stats.TotalAssignments++
		stats.ByKind[a.TargetKind]++
		sum += a.CurrentPriority
		switch {
		case a.CurrentPriority >= e.cfg.EmergencyThreshold:
			stats.EmergencyCount++
		case a.CurrentPriority >= e.cfg.CriticalThreshold:
			stats.CriticalCount++
		}
	}

	if stats.TotalAssignments > 0 {
		stats.AveragePriority = sum / float64(stats.TotalAssignments)
	}
	e.stats = stats
}

// Run executes the background recalculation loop until ctx is cancelled
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.CalculationPeriod()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[PRIORITY] Recalculation loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[PRIORITY] Recalculation loop stopped")
			return
		case <-ticker.C:
			e.Recalculate()
		}
	}
}
