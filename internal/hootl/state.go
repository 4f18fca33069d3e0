package hootl

import (
	"time"

	"github.com/AGENTHIVE/internal/arbiter"
	"github.com/AGENTHIVE/internal/registry"
)

// Phase names one step of the autonomy cycle
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseSense    Phase = "sense"
	PhaseDecide   Phase = "decide"
	PhasePlan     Phase = "plan"
	PhaseAmplify  Phase = "amplify"
	PhaseGates    Phase = "gates"
	PhaseRun      Phase = "run"
	PhaseObserve  Phase = "observe"
	PhaseScore    Phase = "score"
	PhaseEvolve   Phase = "evolve"
	PhasePromote  Phase = "promote"
	PhaseRollback Phase = "rollback"
)

// cycleOrder is the canonical phase sequence of one cycle
var cycleOrder = []Phase{
	PhaseSense, PhaseDecide, PhasePlan, PhaseAmplify, PhaseGates,
	PhaseRun, PhaseObserve, PhaseScore, PhaseEvolve, PhasePromote,
}

// Health is the system health snapshot maintained by SENSE and OBSERVE
type Health struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryBytes      uint64  `json:"memory_bytes"`
	MemoryPercent    float64 `json:"memory_percent"`
	DiskBytes        uint64  `json:"disk_bytes"`
	ActiveAgentCount int     `json:"active_agent_count"`
	SuccessRate      float64 `json:"success_rate"`
	AvgCycleTime     float64 `json:"avg_cycle_time"` // seconds
	ErrorCount       int     `json:"error_count"`
}

// State is the autonomous state owned exclusively by the controller
type State struct {
	CycleCount       uint64                     `json:"cycle_count"`
	CurrentPhase     Phase                      `json:"current_phase"`
	ActiveAgents     map[registry.AgentID]bool  `json:"-"`
	PendingDecisions []*arbiter.PendingDecision `json:"pending_decisions"`
	Health           Health                     `json:"health"`
	LastCycleAt      *time.Time                 `json:"last_cycle_at,omitempty"`
}

// PhaseResult is the outcome of one phase execution
type PhaseResult struct {
	Phase    Phase                  `json:"phase"`
	Success  bool                   `json:"success"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Errors   []string               `json:"errors,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// CycleResult summarizes one completed cycle
type CycleResult struct {
	Cycle     uint64           `json:"cycle"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Success   bool             `json:"success"`
	Phases    []PhaseResult    `json:"phases"`
	Decisions []arbiter.Result `json:"decisions,omitempty"`
	Score     float64          `json:"score"`
}

// cycleHistorySize bounds the in-memory cycle result ring
const cycleHistorySize = 100
