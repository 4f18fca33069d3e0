// Package arbiter evaluates pending autonomy decisions against the
// safety limits. Arbitration is a pure rule table: identical inputs
// always produce the identical outcome and confidence.
package arbiter

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/types"
)

// DecisionType names the kind of a pending decision
type DecisionType string

const (
	DecisionResourceAllocation DecisionType = "resource_allocation"
	DecisionAgentSpawn         DecisionType = "agent_spawn"
	DecisionAgentTermination   DecisionType = "agent_termination"
	DecisionTaskAssignment     DecisionType = "task_assignment"
	DecisionStrategyChange     DecisionType = "strategy_change"
	DecisionSelfModification   DecisionType = "self_modification"
	DecisionScaleUp            DecisionType = "scale_up"
	DecisionScaleDown          DecisionType = "scale_down"
	DecisionEmergency          DecisionType = "emergency"
)

// PendingDecision is one queued decision awaiting arbitration
type PendingDecision struct {
	ID           uuid.UUID              `json:"id"`
	DecisionType DecisionType           `json:"decision_type"`
	Context      map[string]interface{} `json:"context,omitempty"`
	Priority     int                    `json:"priority"` // 0..10
	CreatedAt    time.Time              `json:"created_at"`
	Deadline     *time.Time             `json:"deadline,omitempty"`
}

// NewPendingDecision creates a decision with a fresh id
func NewPendingDecision(dt DecisionType, priority int, context map[string]interface{}) *PendingDecision {
	return &PendingDecision{
		ID:           uuid.New(),
		DecisionType: dt,
		Context:      context,
		Priority:     priority,
		CreatedAt:    time.Now(),
	}
}

// Outcome is the arbitration verdict
type Outcome string

const (
	Approved        Outcome = "approved"
	Rejected        Outcome = "rejected"
	Deferred        Outcome = "deferred"
	EscalateToHuman Outcome = "escalate_to_human"
)

// Result is the arbitration output for one decision
type Result struct {
	DecisionID uuid.UUID `json:"decision_id"`
	Outcome    Outcome   `json:"outcome"`
	Rationale  string    `json:"rationale"`
	Confidence float64   `json:"confidence"` // 0..1
}

// SystemView is the slice of autonomous state arbitration reads
type SystemView struct {
	CPUPercent    float64
	MemoryPercent float64
	ActiveAgents  int
	SuccessRate   float64
	ErrorCount    int
	CycleCount    uint64
}

// Arbiter applies the closed decision rule table
type Arbiter struct {
	limits     types.SafetyLimits
	selfModify bool
}

// New creates an arbiter bound to the configured safety limits
func New(cfg types.HOOTLConfig) *Arbiter {
	return &Arbiter{
		limits:     cfg.SafetyLimits,
		selfModify: cfg.EnableSelfModification,
	}
}

// Arbitrate evaluates one decision against the system view
func (a *Arbiter) Arbitrate(d *PendingDecision, view SystemView) Result {
	outcome, rationale, confidence := a.evaluate(d, view)
	return Result{
		DecisionID: d.ID,
		Outcome:    outcome,
		Rationale:  rationale,
		Confidence: confidence,
	}
}

func (a *Arbiter) evaluate(d *PendingDecision, v SystemView) (Outcome, string, float64) {
	switch d.DecisionType {
	case DecisionResourceAllocation:
		if v.CPUPercent > a.limits.MaxCPU {
			return Approved,
				fmt.Sprintf("resource allocation approved: cpu %.1f%% exceeds limit %.1f%%", v.CPUPercent, a.limits.MaxCPU),
				0.9
		}
		return Deferred, "resource allocation deferred: usage within limits", 0.7

	case DecisionScaleUp:
		if v.CPUPercent > 70 && v.ActiveAgents < a.limits.MaxConcurrentAgents {
			return Approved, "scale up approved: high load and capacity available", 0.85
		}
		return Rejected, "scale up rejected: conditions not met", 0.6

	case DecisionScaleDown:
		if v.CPUPercent < 30 && v.ActiveAgents > 1 {
			return Approved, "scale down approved: low load detected", 0.8
		}
		return Rejected, "scale down rejected: minimum agents needed", 0.75

	case DecisionAgentSpawn:
		if v.ActiveAgents < a.limits.MaxConcurrentAgents && v.MemoryPercent < 80 {
			return Approved, "agent spawn approved: capacity and memory available", 0.85
		}
		return Rejected, "agent spawn rejected: at capacity or memory pressure", 0.7

	case DecisionAgentTermination:
		if v.ActiveAgents > 0 {
			return Approved, "agent termination approved", 0.8
		}
		return Rejected, "agent termination rejected: no active agents", 0.9

	case DecisionTaskAssignment:
		if d.Priority >= 7 {
			return Approved, "high priority task assignment approved", 0.85
		}
		return Deferred, "task assignment deferred: low priority", 0.75

	case DecisionStrategyChange:
		if v.SuccessRate < 0.7 || v.ErrorCount > 20 {
			return Approved, "strategy change approved: performance degraded", 0.8
		}
		return Deferred, "strategy change deferred: system performing", 0.6

	case DecisionSelfModification:
		if !a.selfModify {
			return Rejected, "self modification disabled by configuration", 0.95
		}
		if v.CycleCount <= 100 {
			return EscalateToHuman, "self modification requires human review before cycle 100", 0.7
		}
		return Approved, "self modification approved: enabled and system mature", 0.75

	case DecisionEmergency:
		return EscalateToHuman, "emergency decision requires human intervention", 1.0
	}

	return Deferred, fmt.Sprintf("unknown decision type %q deferred", d.DecisionType), 0.5
}
