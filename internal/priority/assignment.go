package priority

import (
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/registry"
)

// TargetKind classifies what an assignment prioritizes
type TargetKind string

const (
	TargetTask     TargetKind = "task"
	TargetAgent    TargetKind = "agent"
	TargetWorkflow TargetKind = "workflow"
	TargetResource TargetKind = "resource"
	TargetAlert    TargetKind = "alert"
)

// Assignment tracks the evolving priority of one target. When Locked,
// the current priority is frozen: recalculation, aging, Escalate and
// Boost all leave it unchanged, with no exception for the source agent
// or for emergency decisions. Unlock clears the lock.
type Assignment struct {
	TargetID        uuid.UUID         `json:"target_id"`
	TargetKind      TargetKind        `json:"target_kind"`
	BasePriority    float64           `json:"base_priority"`
	CurrentPriority float64           `json:"current_priority"`
	AppliedFactors  []AppliedFactor   `json:"applied_factors"`
	CreatedAt       time.Time         `json:"created_at"`
	LastUpdated     time.Time         `json:"last_updated"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	Locked          bool              `json:"locked"`
	SourceAgent     *registry.AgentID `json:"source_agent,omitempty"`
}

// Expired reports whether the assignment has passed its expiry
func (a *Assignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Stats aggregates the assignment population each calculation tick
type Stats struct {
	TotalAssignments int                `json:"total_assignments"`
	AveragePriority  float64            `json:"average_priority"`
	EmergencyCount   int                `json:"emergency_count"` // priority >= emergency threshold
	CriticalCount    int                `json:"critical_count"`  // critical <= priority < emergency
	ByKind           map[TargetKind]int `json:"by_kind"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
