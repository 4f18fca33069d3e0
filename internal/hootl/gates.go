package hootl

import (
	"fmt"

	"github.com/AGENTHIVE/internal/types"
)

// Gates holds the hard resource limits with veto power over the RUN
// phase. Gate checks cannot be bypassed by policy actions.
type Gates struct {
	limits types.SafetyLimits
}

// NewGates creates the gate checker from configured limits
func NewGates(limits types.SafetyLimits) *Gates {
	return &Gates{limits: limits}
}

// Check evaluates every gate against live health. A single failing gate
// fails the phase. Limits are inclusive: a value exactly at its limit
// passes.
func (g *Gates) Check(h Health) (bool, []string) {
	var reasons []string

	if h.CPUPercent > g.limits.MaxCPU {
		reasons = append(reasons, "cpu exhaustion")
	}
	if g.limits.MaxMemoryMB > 0 && h.MemoryBytes > g.limits.MaxMemoryBytes() {
		reasons = append(reasons, "memory exhaustion")
	}
	if g.limits.MaxConcurrentAgents > 0 && h.ActiveAgentCount > g.limits.MaxConcurrentAgents {
		reasons = append(reasons, fmt.Sprintf("agent count %d above limit %d",
			h.ActiveAgentCount, g.limits.MaxConcurrentAgents))
	}

	return len(reasons) == 0, reasons
}
