package policy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/bus"
	"github.com/AGENTHIVE/internal/metrics"
	"github.com/AGENTHIVE/internal/priority"
	"github.com/AGENTHIVE/internal/scheduler"
)

// taskID aliases the task identifier type used across the scheduler
type taskID = uuid.UUID

// Engine errors
var (
	ErrNotFound        = errors.New("policy not found")
	ErrMisconfigured   = errors.New("policy condition or action not interpretable")
	ErrDuplicatePolicy = errors.New("policy id already registered")
)

// executionHistorySize bounds the execution record ring
const executionHistorySize = 100

// SnapshotFunc produces the live scalars a tick evaluates against
type SnapshotFunc func() Snapshot

// Engine evaluates policies in priority-ascending order each tick and
// executes the actions of every policy whose conditions all hold.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	history  []Execution

	snapshot SnapshotFunc
	prio     *priority.Engine
	sched    *scheduler.Scheduler
	msgBus   *bus.Bus
}

// NewEngine creates a policy engine seeded with the default policies
func NewEngine(snapshot SnapshotFunc, prio *priority.Engine, sched *scheduler.Scheduler, msgBus *bus.Bus) *Engine {
	e := &Engine{
		policies: make(map[string]*Policy),
		snapshot: snapshot,
		prio:     prio,
		sched:    sched,
		msgBus:   msgBus,
	}
	for _, p := range DefaultPolicies() {
		e.policies[p.ID] = p
	}
	return e
}

// Register adds a policy. Returns ErrDuplicatePolicy if the id exists.
func (e *Engine) Register(p *Policy) error {
	if err := validate(p); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.policies[p.ID]; exists {
		return ErrDuplicatePolicy
	}
	e.policies[p.ID] = p
	return nil
}

// Remove deletes a policy by id
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.policies[id]; !exists {
		return ErrNotFound
	}
	delete(e.policies, id)
	return nil
}

// SetEnabled toggles a policy
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, exists := e.policies[id]
	if !exists {
		return ErrNotFound
	}
	p.Enabled = enabled
	return nil
}

// Policies returns copies of every registered policy, priority ascending
func (e *Engine) Policies() []*Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*Policy, 0, len(e.policies))
	for _, p := range e.policies {
		clone := *p
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Priority < result[j].Priority })
	return result
}

// History returns a copy of the bounded execution history
func (e *Engine) History() []Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Execution, len(e.history))
	copy(result, e.history)
	return result
}

// Tick evaluates every enabled policy against a fresh snapshot
func (e *Engine) Tick() {
	snap := e.snapshot()

	for _, p := range e.Policies() {
		if !p.Enabled {
			continue
		}

		met, err := e.conditionsMet(p, snap)
		if err != nil {
			e.record(Execution{
				PolicyID: p.ID, Time: time.Now(), Success: false, Error: err.Error(),
			})
			log.Printf("[POLICY] Policy %s misconfigured: %v", p.ID, err)
			continue
		}
		if !met {
			continue
		}

		executed := 0
		var execErr error
		for _, a := range p.Actions {
			if err := e.execute(p, a, snap); err != nil {
				execErr = err
				break
			}
			executed++
		}

		now := time.Now()
		e.mu.Lock()
		if live, ok := e.policies[p.ID]; ok {
			live.LastExecuted = &now
		}
		e.mu.Unlock()

		rec := Execution{
			PolicyID:        p.ID,
			Time:            now,
			ConditionsMet:   true,
			ActionsExecuted: executed,
			Success:         execErr == nil,
		}
		if execErr != nil {
			rec.Error = execErr.Error()
			log.Printf("[POLICY] Policy %s action failed: %v", p.ID, execErr)
		}
		e.record(rec)
		metrics.PolicyExecutions.WithLabelValues(p.ID).Inc()
	}
}

// conditionsMet reports whether every condition of the policy holds
func (e *Engine) conditionsMet(p *Policy, snap Snapshot) (bool, error) {
	for _, c := range p.Conditions {
		var observed float64
		switch c.Type {
		case CondQueueSize:
			observed = float64(snap.QueueSize)
		case CondSystemLoad:
			observed = snap.SystemLoad
		case CondSLAViolation:
			if snap.SLAViolation {
				observed = 1
			}
		case CondTaskAge:
			observed = snap.OldestTaskAge.Seconds()
		case CondAgentAvailability:
			observed = snap.AgentAvailability
		default:
			return false, fmt.Errorf("%w: condition type %q", ErrMisconfigured, c.Type)
		}

		var holds bool
		switch c.Operator {
		case OpGreaterThan:
			holds = observed > c.Value
		case OpLessThan:
			holds = observed < c.Value
		case OpEqual:
			holds = observed == c.Value
		case OpAtLeast:
			holds = observed >= c.Value
		case OpAtMost:
			holds = observed <= c.Value
		default:
			return false, fmt.Errorf("%w: operator %q", ErrMisconfigured, c.Operator)
		}
		if !holds {
			return false, nil
		}
	}
	return true, nil
}

// execute runs one action. Priority-mutating actions target the task
// assignments selected by the policy's task-age condition, falling back
// to the oldest live task assignment.
func (e *Engine) execute(p *Policy, a Action, snap Snapshot) error {
	switch a.Type {
	case ActionIncreasePriority:
		for _, id := range e.targetTasks(p) {
			if newPrio, err := e.prio.Boost(id, a.Amount); err == nil {
				e.sched.UpdateQueuedPriority(id, newPrio)
			}
		}
	case ActionDecreasePriority:
		for _, id := range e.targetTasks(p) {
			if newPrio, err := e.prio.Boost(id, -a.Amount); err == nil {
				e.sched.UpdateQueuedPriority(id, newPrio)
			}
		}
	case ActionSetPriority:
		for _, id := range e.targetTasks(p) {
			current, err := e.prio.Assignment(id)
			if err != nil {
				continue
			}
			if newPrio, err := e.prio.Boost(id, a.Amount-current.CurrentPriority); err == nil {
				e.sched.UpdateQueuedPriority(id, newPrio)
			}
		}
	case ActionEscalatePriority:
		for _, id := range e.targetTasks(p) {
			if newPrio, err := e.prio.Escalate(id, escalationFactor); err == nil {
				e.sched.UpdateQueuedPriority(id, newPrio)
			}
		}
	case ActionReassignTask:
		for _, id := range e.targetTasks(p) {
			if entry := e.sched.QueuedEntry(id); entry != nil {
				entry.TargetAgent = ""
			}
		}
	case ActionCancelTask:
		for _, id := range e.targetTasks(p) {
			if err := e.sched.Cancel(id, "cancelled by policy "+p.ID); err != nil && !errors.Is(err, scheduler.ErrNotFound) {
				return err
			}
		}
	case ActionNotifyOperator:
		msg := a.Message
		if msg == "" {
			msg = "policy " + p.ID + " triggered"
		}
		return e.msgBus.PublishAlert(bus.SeverityWarning, msg, map[string]interface{}{
			"policy":     p.ID,
			"queue_size": snap.QueueSize,
		})
	case ActionTriggerWorkflow:
		// Workflow execution is an external collaborator; announce only
		log.Printf("[POLICY] Policy %s requested workflow trigger: %s", p.ID, a.Message)
		return e.msgBus.PublishAlert(bus.SeverityInfo, "workflow trigger requested: "+a.Message, nil)
	default:
		return fmt.Errorf("%w: action type %q", ErrMisconfigured, a.Type)
	}
	return nil
}

// targetTasks selects the assignments a priority action applies to
func (e *Engine) targetTasks(p *Policy) []taskID {
	var ageFloor float64 = -1
	for _, c := range p.Conditions {
		if c.Type == CondTaskAge {
			ageFloor = c.Value
		}
	}

	assignments := e.prio.Assignments()
	now := time.Now()

	if ageFloor >= 0 {
		var ids []taskID
		for _, a := range assignments {
			if a.TargetKind != priority.TargetTask {
				continue
			}
			if now.Sub(a.CreatedAt).Seconds() > ageFloor {
				ids = append(ids, a.TargetID)
			}
		}
		return ids
	}

	// No age condition: act on the oldest live task assignment
	var oldest *priority.Assignment
	for _, a := range assignments {
		if a.TargetKind != priority.TargetTask {
			continue
		}
		if oldest == nil || a.CreatedAt.Before(oldest.CreatedAt) {
			oldest = a
		}
	}
	if oldest == nil {
		return nil
	}
	return []taskID{oldest.TargetID}
}

func (e *Engine) record(rec Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, rec)
	if len(e.history) > executionHistorySize {
		e.history = e.history[len(e.history)-executionHistorySize:]
	}
}

func validate(p *Policy) error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty policy id", ErrMisconfigured)
	}
	if len(p.Conditions) == 0 || len(p.Actions) == 0 {
		return fmt.Errorf("%w: policy %s needs conditions and actions", ErrMisconfigured, p.ID)
	}
	return nil
}

// Run executes the policy tick loop until ctx is cancelled
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[POLICY] Evaluation loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[POLICY] Evaluation loop stopped")
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}
