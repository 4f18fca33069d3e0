package hootl

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/arbiter"
	"github.com/AGENTHIVE/internal/bus"
	"github.com/AGENTHIVE/internal/metrics"
	"github.com/AGENTHIVE/internal/registry"
	"github.com/AGENTHIVE/internal/scheduler"
	"github.com/AGENTHIVE/internal/sysinfo"
	"github.com/AGENTHIVE/internal/types"
)

// Sampler supplies host counters to the SENSE and OBSERVE phases
type Sampler interface {
	Sample() sysinfo.Snapshot
}

// Controller drives the eleven-phase autonomy cycle. It owns the
// autonomous state exclusively; other components are read through their
// snapshot methods only.
type Controller struct {
	cfg     types.HOOTLConfig
	gates   *Gates
	arbiter *arbiter.Arbiter
	sampler Sampler
	msgBus  *bus.Bus

	// schedMetrics reads live scheduler measurements
	schedMetrics func() scheduler.Metrics

	mu              sync.Mutex
	state           State
	history         []CycleResult
	decisions       map[uuid.UUID]arbiter.Result // arbitration results of the current cycle
	gatesPassCycle  uint64                       // last cycle with a GATES pass record
	planCounts      map[arbiter.DecisionType]int
	scaleUpIntent   bool
	scaleDownIntent bool
	evolveIntents   []string
	promotions      uint64
	lastScore       float64
	totalCycleTime  time.Duration
	allocations     int
	running         bool
	stopCh          chan struct{}
}

// NewController creates the autonomy controller
func NewController(cfg types.HOOTLConfig, arb *arbiter.Arbiter, sampler Sampler, msgBus *bus.Bus, schedMetrics func() scheduler.Metrics) *Controller {
	return &Controller{
		cfg:          cfg,
		gates:        NewGates(cfg.SafetyLimits),
		arbiter:      arb,
		sampler:      sampler,
		msgBus:       msgBus,
		schedMetrics: schedMetrics,
		state: State{
			CurrentPhase: PhaseIdle,
			ActiveAgents: make(map[registry.AgentID]bool),
		},
		decisions:  make(map[uuid.UUID]arbiter.Result),
		planCounts: make(map[arbiter.DecisionType]int),
		stopCh:     make(chan struct{}),
	}
}

// SeedAgents registers the initial active agent set
func (c *Controller) SeedAgents(ids []registry.AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.state.ActiveAgents[id] = true
	}
}

// EnqueueDecision adds a pending decision for the next cycle
func (c *Controller) EnqueueDecision(d *arbiter.PendingDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PendingDecisions = append(c.state.PendingDecisions, d)
}

// CurrentPhase returns the phase the controller is in
func (c *Controller) CurrentPhase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CurrentPhase
}

// Snapshot returns a copy of the autonomous state
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state
	snap.ActiveAgents = make(map[registry.AgentID]bool, len(c.state.ActiveAgents))
	for id := range c.state.ActiveAgents {
		snap.ActiveAgents[id] = true
	}
	snap.PendingDecisions = append([]*arbiter.PendingDecision(nil), c.state.PendingDecisions...)
	return snap
}

// History returns a copy of the bounded cycle history
func (c *Controller) History() []CycleResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]CycleResult, len(c.history))
	copy(result, c.history)
	return result
}

// Promotions returns the promotion counter
func (c *Controller) Promotions() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promotions
}

// ExecuteCycle runs one full autonomy cycle. A GATES or RUN failure
// transitions to ROLLBACK and terminates the cycle.
func (c *Controller) ExecuteCycle() CycleResult {
	start := time.Now()

	c.mu.Lock()
	c.state.CycleCount++
	cycle := c.state.CycleCount
	c.decisions = make(map[uuid.UUID]arbiter.Result)
	c.planCounts = make(map[arbiter.DecisionType]int)
	c.scaleUpIntent, c.scaleDownIntent = false, false
	c.evolveIntents = nil
	c.mu.Unlock()

	result := CycleResult{Cycle: cycle, StartedAt: start, Success: true}

	for _, phase := range cycleOrder {
		pr := c.executePhase(phase, nil)
		result.Phases = append(result.Phases, pr)

		if !pr.Success && (phase == PhaseGates || phase == PhaseRun) {
			result.Success = false
			rollback := c.executePhase(PhaseRollback, pr.Errors)
			result.Phases = append(result.Phases, rollback)
			break
		}
	}

	c.mu.Lock()
	for _, res := range c.decisions {
		result.Decisions = append(result.Decisions, res)
	}
	now := time.Now()
	c.state.LastCycleAt = &now
	c.state.CurrentPhase = PhaseIdle
	result.Score = c.lastScore
	result.Duration = now.Sub(start)
	c.totalCycleTime += result.Duration
	c.state.Health.AvgCycleTime = c.totalCycleTime.Seconds() / float64(cycle)

	c.history = append(c.history, result)
	if len(c.history) > cycleHistorySize {
		c.history = c.history[len(c.history)-cycleHistorySize:]
	}
	c.mu.Unlock()

	outcome := "success"
	if !result.Success {
		outcome = "rollback"
	}
	metrics.HOOTLCycles.WithLabelValues(outcome).Inc()
	log.Printf("[HOOTL] Cycle %d complete: success=%v duration=%s", cycle, result.Success, result.Duration)
	return result
}

// executePhase runs one phase. failureReasons carries the errors of a
// failed GATES or RUN into the rollback phase.
func (c *Controller) executePhase(phase Phase, failureReasons []string) PhaseResult {
	c.mu.Lock()
	c.state.CurrentPhase = phase
	c.mu.Unlock()

	start := time.Now()
	var (
		success = true
		output  map[string]interface{}
		errs    []string
	)

	switch phase {
	case PhaseSense:
		output = c.sense()
	case PhaseDecide:
		output = c.decide()
	case PhasePlan:
		output = c.plan()
	case PhaseAmplify:
		output = c.amplify()
	case PhaseGates:
		success, output, errs = c.checkGates()
	case PhaseRun:
		success, output, errs = c.run()
	case PhaseObserve:
		output = c.observe()
	case PhaseScore:
		output = c.score()
	case PhaseEvolve:
		output = c.evolve()
	case PhasePromote:
		output = c.promote()
	case PhaseRollback:
		output = c.rollback(failureReasons)
	}

	return PhaseResult{
		Phase:    phase,
		Success:  success,
		Output:   output,
		Errors:   errs,
		Duration: time.Since(start),
	}
}

// sense populates health from host counters and scheduler metrics
func (c *Controller) sense() map[string]interface{} {
	snap := c.sampler.Sample()
	sm := c.schedMetrics()

	successRate := 1.0
	if total := sm.CompletedTotal + sm.FailedTotal; total > 0 {
		successRate = float64(sm.CompletedTotal) / float64(total)
	}

	c.mu.Lock()
	c.state.Health.CPUPercent = snap.CPUPercent
	c.state.Health.MemoryBytes = snap.MemoryUsed
	c.state.Health.MemoryPercent = snap.MemoryPercent()
	c.state.Health.DiskBytes = snap.DiskUsed
	c.state.Health.ActiveAgentCount = len(c.state.ActiveAgents)
	c.state.Health.SuccessRate = successRate
	h := c.state.Health
	c.mu.Unlock()

	return map[string]interface{}{
		"cpu_percent":  h.CPUPercent,
		"memory_bytes": h.MemoryBytes,
		"disk_bytes":   h.DiskBytes,
		"agents":       h.ActiveAgentCount,
		"success_rate": h.SuccessRate,
	}
}

// decide arbitrates every pending decision and enqueues a resource
// allocation request when CPU is past its limit
func (c *Controller) decide() map[string]interface{} {
	c.mu.Lock()
	pending := append([]*arbiter.PendingDecision(nil), c.state.PendingDecisions...)
	view := c.systemViewLocked()
	c.mu.Unlock()

	for _, d := range pending {
		res := c.arbiter.Arbitrate(d, view)
		c.mu.Lock()
		c.decisions[d.ID] = res
		c.mu.Unlock()
	}

	enqueued := false
	if view.CPUPercent > c.cfg.SafetyLimits.MaxCPU {
		deadline := time.Now().Add(5 * time.Minute)
		d := arbiter.NewPendingDecision(arbiter.DecisionResourceAllocation, 8, map[string]interface{}{
			"cpu_percent": view.CPUPercent,
		})
		d.Deadline = &deadline
		c.EnqueueDecision(d)
		enqueued = true
	}

	return map[string]interface{}{
		"arbitrated":          len(pending),
		"allocation_enqueued": enqueued,
	}
}

// plan counts a generated plan per pending decision type
func (c *Controller) plan() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range c.state.PendingDecisions {
		c.planCounts[d.DecisionType]++
	}
	total := 0
	for _, n := range c.planCounts {
		total += n
	}
	return map[string]interface{}{"plans_generated": total}
}

// amplify marks scaling intents and warns on memory pressure
func (c *Controller) amplify() map[string]interface{} {
	c.mu.Lock()
	h := c.state.Health
	if h.CPUPercent > 80 && h.ActiveAgentCount < c.cfg.SafetyLimits.MaxConcurrentAgents {
		c.scaleUpIntent = true
	}
	if h.CPUPercent < 30 && h.ActiveAgentCount > 1 {
		c.scaleDownIntent = true
	}
	up, down := c.scaleUpIntent, c.scaleDownIntent
	c.mu.Unlock()

	if h.MemoryPercent > 80 {
		if err := c.msgBus.PublishAlert(bus.SeverityWarning,
			"memory high-water mark exceeded",
			map[string]interface{}{"memory_percent": h.MemoryPercent}); err != nil {
			log.Printf("[HOOTL] Failed to publish memory alert: %v", err)
		}
	}

	return map[string]interface{}{"scale_up": up, "scale_down": down}
}

// checkGates runs the hard safety checks
func (c *Controller) checkGates() (bool, map[string]interface{}, []string) {
	c.mu.Lock()
	h := c.state.Health
	c.mu.Unlock()

	pass, reasons := c.gates.Check(h)
	if pass {
		c.mu.Lock()
		c.gatesPassCycle = c.state.CycleCount
		c.mu.Unlock()
	}
	return pass, map[string]interface{}{"pass": pass}, reasons
}

// run consumes approved decisions and applies their side effects. It
// refuses to run without a GATES pass record from the same cycle.
func (c *Controller) run() (bool, map[string]interface{}, []string) {
	c.mu.Lock()
	if c.gatesPassCycle != c.state.CycleCount {
		c.mu.Unlock()
		return false, nil, []string{"no gates pass record for this cycle"}
	}
	pending := c.state.PendingDecisions
	c.state.PendingDecisions = nil
	decisions := c.decisions
	c.mu.Unlock()

	executed := 0
	var deferred []*arbiter.PendingDecision

	for _, d := range pending {
		res, arbitrated := decisions[d.ID]
		if !arbitrated {
			// Enqueued after DECIDE this cycle; hold for the next
			deferred = append(deferred, d)
			continue
		}

		switch res.Outcome {
		case arbiter.Approved:
			c.applyDecision(d)
			executed++
		case arbiter.Deferred:
			deferred = append(deferred, d)
		case arbiter.EscalateToHuman:
			c.escalate(d, res)
		case arbiter.Rejected:
			log.Printf("[HOOTL] Decision %s rejected: %s", d.DecisionType, res.Rationale)
		}
	}

	c.mu.Lock()
	c.state.PendingDecisions = append(c.state.PendingDecisions, deferred...)
	c.mu.Unlock()

	return true, map[string]interface{}{
		"executed": executed,
		"deferred": len(deferred),
	}, nil
}

// applyDecision performs the side effect of one approved decision
func (c *Controller) applyDecision(d *arbiter.PendingDecision) {
	switch d.DecisionType {
	case arbiter.DecisionAgentSpawn, arbiter.DecisionScaleUp:
		id := registry.AgentID(uuid.New())
		c.mu.Lock()
		c.state.ActiveAgents[id] = true
		c.state.Health.ActiveAgentCount = len(c.state.ActiveAgents)
		c.mu.Unlock()
		log.Printf("[HOOTL] Spawned agent %s (%s)", id, d.DecisionType)

	case arbiter.DecisionAgentTermination, arbiter.DecisionScaleDown:
		c.mu.Lock()
		for id := range c.state.ActiveAgents {
			delete(c.state.ActiveAgents, id)
			log.Printf("[HOOTL] Terminated agent %s (%s)", id, d.DecisionType)
			break
		}
		c.state.Health.ActiveAgentCount = len(c.state.ActiveAgents)
		c.mu.Unlock()

	case arbiter.DecisionResourceAllocation:
		c.mu.Lock()
		c.allocations++
		c.mu.Unlock()
		log.Println("[HOOTL] Resource allocation recorded")

	case arbiter.DecisionStrategyChange:
		log.Printf("[HOOTL] Strategy change applied: %v", d.Context)

	case arbiter.DecisionSelfModification:
		if !c.cfg.EnableSelfModification {
			log.Println("[HOOTL] Self modification blocked: disabled in configuration")
			return
		}
		log.Printf("[HOOTL] Self modification intent recorded: %v", d.Context)

	default:
		log.Printf("[HOOTL] Decision %s executed with no side effect", d.DecisionType)
	}
}

// escalate forwards a decision to human attention
func (c *Controller) escalate(d *arbiter.PendingDecision, res arbiter.Result) {
	if err := c.msgBus.PublishAlert(bus.SeverityCritical,
		"decision escalated to human: "+string(d.DecisionType),
		map[string]interface{}{
			"decision_id": d.ID.String(),
			"rationale":   res.Rationale,
		}); err != nil {
		log.Printf("[HOOTL] Failed to publish escalation alert: %v", err)
	}
}

// observe refreshes the counters and reports deltas from SENSE
func (c *Controller) observe() map[string]interface{} {
	snap := c.sampler.Sample()

	c.mu.Lock()
	prev := c.state.Health
	c.state.Health.CPUPercent = snap.CPUPercent
	c.state.Health.MemoryBytes = snap.MemoryUsed
	c.state.Health.MemoryPercent = snap.MemoryPercent()
	c.state.Health.DiskBytes = snap.DiskUsed
	c.state.Health.ActiveAgentCount = len(c.state.ActiveAgents)
	c.mu.Unlock()

	return map[string]interface{}{
		"cpu_delta":    snap.CPUPercent - prev.CPUPercent,
		"memory_delta": int64(snap.MemoryUsed) - int64(prev.MemoryBytes),
	}
}

// score computes the composite performance score
func (c *Controller) score() map[string]interface{} {
	c.mu.Lock()
	h := c.state.Health
	c.mu.Unlock()

	resourceEfficiency := (1 - h.CPUPercent/100)
	if maxMem := c.cfg.SafetyLimits.MaxMemoryBytes(); maxMem > 0 {
		memEff := 1 - float64(h.MemoryBytes)/float64(maxMem)
		resourceEfficiency = (resourceEfficiency + memEff) / 2
	}
	resourceEfficiency = math.Max(0, resourceEfficiency)

	cycleTimeScore := 1.0
	if h.AvgCycleTime > 0 {
		cycleTimeScore = math.Min(1, c.cfg.MaxCycleTimeSeconds/h.AvgCycleTime)
	}

	errorScore := 1 - math.Min(1, float64(h.ErrorCount)/10)

	composite := 0.4*h.SuccessRate + 0.3*resourceEfficiency + 0.2*cycleTimeScore + 0.1*errorScore

	c.mu.Lock()
	c.lastScore = composite
	c.mu.Unlock()

	return map[string]interface{}{
		"score":               composite,
		"resource_efficiency": resourceEfficiency,
		"cycle_time_score":    cycleTimeScore,
		"error_score":         errorScore,
	}
}

// evolve records adaptation intents without mutating behavior
func (c *Controller) evolve() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.state.Health
	if h.SuccessRate < 0.8 {
		c.evolveIntents = append(c.evolveIntents, "improve task success rate")
	}
	if h.AvgCycleTime > 1.5*c.cfg.MaxCycleTimeSeconds {
		c.evolveIntents = append(c.evolveIntents, "reduce cycle time")
	}
	if h.ErrorCount > 5 {
		c.evolveIntents = append(c.evolveIntents, "reduce error count")
	}
	return map[string]interface{}{"intents": len(c.evolveIntents)}
}

// promote increments the promotion counter when the system is mature
// and healthy. Promotion emits a signal only; configuration is never
// altered here.
func (c *Controller) promote() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.state.Health
	promoted := h.SuccessRate > 0.9 && h.ErrorCount == 0 && c.state.CycleCount > 10
	if promoted {
		c.promotions++
	}
	return map[string]interface{}{"promoted": promoted, "total_promotions": c.promotions}
}

// rollback drains pending decisions, clears the error count, and emits
// a warning with the rollback reasons
func (c *Controller) rollback(reasons []string) map[string]interface{} {
	c.mu.Lock()
	drained := len(c.state.PendingDecisions)
	c.state.PendingDecisions = nil
	c.state.Health.ErrorCount = 0
	h := c.state.Health
	c.mu.Unlock()

	if len(reasons) == 0 {
		_, reasons = c.gates.Check(h)
	}
	if err := c.msgBus.PublishAlert(bus.SeverityWarning,
		"autonomy cycle rolled back",
		map[string]interface{}{"reasons": reasons}); err != nil {
		log.Printf("[HOOTL] Failed to publish rollback alert: %v", err)
	}

	log.Printf("[HOOTL] Rollback: drained %d decisions, reasons: %v", drained, reasons)
	return map[string]interface{}{"drained_decisions": drained, "reasons": reasons}
}

// systemViewLocked builds the arbitration view. Caller holds c.mu.
func (c *Controller) systemViewLocked() arbiter.SystemView {
	return arbiter.SystemView{
		CPUPercent:    c.state.Health.CPUPercent,
		MemoryPercent: c.state.Health.MemoryPercent,
		ActiveAgents:  len(c.state.ActiveAgents),
		SuccessRate:   c.state.Health.SuccessRate,
		ErrorCount:    c.state.Health.ErrorCount,
		CycleCount:    c.state.CycleCount,
	}
}

// RecordError increments the health error counter
func (c *Controller) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Health.ErrorCount++
}

// Run executes cycles until ctx is cancelled, Stop is called, or the
// configured cycle bound is reached. Cancellation lands between cycles
// only, never mid-phase.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	interval := time.Duration(c.cfg.CycleInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	log.Println("[HOOTL] Autonomy loop started")
	for {
		c.ExecuteCycle()

		c.mu.Lock()
		done := c.cfg.MaxCycles > 0 && c.state.CycleCount >= c.cfg.MaxCycles
		c.mu.Unlock()
		if done {
			log.Println("[HOOTL] Cycle bound reached, halting")
			return
		}

		select {
		case <-ctx.Done():
			log.Println("[HOOTL] Autonomy loop stopped")
			return
		case <-c.stopCh:
			log.Println("[HOOTL] Autonomy loop stopped by request")
			return
		case <-time.After(interval):
		}
	}
}

// Stop requests loop termination at the next between-cycle point
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}
