package arbiter

import (
	"testing"

	"github.com/AGENTHIVE/internal/types"
)

func newArbiter(selfModify bool) *Arbiter {
	cfg := types.DefaultConfig().HOOTL
	cfg.EnableSelfModification = selfModify
	cfg.SafetyLimits.MaxConcurrentAgents = 10
	return New(cfg)
}

func TestAgentSpawnApproved(t *testing.T) {
	a := newArbiter(false)
	d := NewPendingDecision(DecisionAgentSpawn, 5, nil)

	// active=5, max=10, mem=40%
	res := a.Arbitrate(d, SystemView{ActiveAgents: 5, MemoryPercent: 40})
	if res.Outcome != Approved {
		t.Errorf("expected approved, got %s (%s)", res.Outcome, res.Rationale)
	}
	if res.Confidence < 0.80 {
		t.Errorf("expected confidence >= 0.80, got %.2f", res.Confidence)
	}
}

func TestAgentSpawnRejectedAtCapacity(t *testing.T) {
	a := newArbiter(false)
	d := NewPendingDecision(DecisionAgentSpawn, 5, nil)

	res := a.Arbitrate(d, SystemView{ActiveAgents: 10, MemoryPercent: 40})
	if res.Outcome != Rejected {
		t.Errorf("expected rejected at capacity, got %s", res.Outcome)
	}

	res = a.Arbitrate(d, SystemView{ActiveAgents: 5, MemoryPercent: 85})
	if res.Outcome != Rejected {
		t.Errorf("expected rejected under memory pressure, got %s", res.Outcome)
	}
}

func TestResourceAllocationRules(t *testing.T) {
	a := newArbiter(false)
	d := NewPendingDecision(DecisionResourceAllocation, 8, nil)

	res := a.Arbitrate(d, SystemView{CPUPercent: 90})
	if res.Outcome != Approved {
		t.Errorf("cpu over limit should approve allocation, got %s", res.Outcome)
	}

	res = a.Arbitrate(d, SystemView{CPUPercent: 50})
	if res.Outcome != Deferred {
		t.Errorf("cpu within limit should defer allocation, got %s", res.Outcome)
	}
}

func TestScaleRules(t *testing.T) {
	a := newArbiter(false)

	up := NewPendingDecision(DecisionScaleUp, 5, nil)
	if res := a.Arbitrate(up, SystemView{CPUPercent: 75, ActiveAgents: 5}); res.Outcome != Approved {
		t.Errorf("scale up should approve under load, got %s", res.Outcome)
	}
	if res := a.Arbitrate(up, SystemView{CPUPercent: 50, ActiveAgents: 5}); res.Outcome != Rejected {
		t.Errorf("scale up should reject at moderate load, got %s", res.Outcome)
	}
	if res := a.Arbitrate(up, SystemView{CPUPercent: 90, ActiveAgents: 10}); res.Outcome != Rejected {
		t.Errorf("scale up should reject at agent capacity, got %s", res.Outcome)
	}

	down := NewPendingDecision(DecisionScaleDown, 5, nil)
	if res := a.Arbitrate(down, SystemView{CPUPercent: 20, ActiveAgents: 3}); res.Outcome != Approved {
		t.Errorf("scale down should approve at low load, got %s", res.Outcome)
	}
	if res := a.Arbitrate(down, SystemView{CPUPercent: 20, ActiveAgents: 1}); res.Outcome != Rejected {
		t.Errorf("scale down should reject with one agent, got %s", res.Outcome)
	}
}

func TestAgentTerminationRules(t *testing.T) {
	a := newArbiter(false)
	d := NewPendingDecision(DecisionAgentTermination, 5, nil)

	if res := a.Arbitrate(d, SystemView{ActiveAgents: 1}); res.Outcome != Approved {
		t.Errorf("termination should approve with active agents, got %s", res.Outcome)
	}
	if res := a.Arbitrate(d, SystemView{ActiveAgents: 0}); res.Outcome != Rejected {
		t.Errorf("termination should reject with no agents, got %s", res.Outcome)
	}
}

func TestStrategyChangeRules(t *testing.T) {
	a := newArbiter(false)
	d := NewPendingDecision(DecisionStrategyChange, 5, nil)

	if res := a.Arbitrate(d, SystemView{SuccessRate: 0.5}); res.Outcome != Approved {
		t.Errorf("low success rate should approve strategy change, got %s", res.Outcome)
	}
	if res := a.Arbitrate(d, SystemView{SuccessRate: 0.95, ErrorCount: 25}); res.Outcome != Approved {
		t.Errorf("high errors should approve strategy change, got %s", res.Outcome)
	}
	if res := a.Arbitrate(d, SystemView{SuccessRate: 0.95, ErrorCount: 2}); res.Outcome != Deferred {
		t.Errorf("healthy system should defer strategy change, got %s", res.Outcome)
	}
}

func TestSelfModificationRules(t *testing.T) {
	disabled := newArbiter(false)
	d := NewPendingDecision(DecisionSelfModification, 9, nil)

	if res := disabled.Arbitrate(d, SystemView{CycleCount: 500}); res.Outcome != Rejected {
		t.Errorf("self modification disabled should reject, got %s", res.Outcome)
	}

	enabled := newArbiter(true)
	if res := enabled.Arbitrate(d, SystemView{CycleCount: 50}); res.Outcome != EscalateToHuman {
		t.Errorf("early self modification should escalate, got %s", res.Outcome)
	}
	if res := enabled.Arbitrate(d, SystemView{CycleCount: 500}); res.Outcome != Approved {
		t.Errorf("mature self modification should approve, got %s", res.Outcome)
	}
}

func TestEmergencyAlwaysEscalates(t *testing.T) {
	a := newArbiter(true)
	d := NewPendingDecision(DecisionEmergency, 10, nil)

	res := a.Arbitrate(d, SystemView{})
	if res.Outcome != EscalateToHuman {
		t.Errorf("emergency must escalate, got %s", res.Outcome)
	}
	if res.Confidence != 1.0 {
		t.Errorf("emergency escalation confidence should be 1.0, got %.2f", res.Confidence)
	}
}

func TestArbitrationDeterminism(t *testing.T) {
	a := newArbiter(false)
	view := SystemView{CPUPercent: 75, MemoryPercent: 60, ActiveAgents: 4, SuccessRate: 0.85, ErrorCount: 3, CycleCount: 42}

	for _, dt := range []DecisionType{
		DecisionResourceAllocation, DecisionAgentSpawn, DecisionAgentTermination,
		DecisionTaskAssignment, DecisionStrategyChange, DecisionSelfModification,
		DecisionScaleUp, DecisionScaleDown, DecisionEmergency,
	} {
		d := NewPendingDecision(dt, 5, nil)
		first := a.Arbitrate(d, view)
		for i := 0; i < 5; i++ {
			again := a.Arbitrate(d, view)
			if again.Outcome != first.Outcome || again.Confidence != first.Confidence {
				t.Errorf("%s: arbitration not deterministic", dt)
			}
		}
	}
}
