package sla

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/bus"
	"github.com/AGENTHIVE/internal/metrics"
	"github.com/AGENTHIVE/internal/registry"
	"github.com/AGENTHIVE/internal/scheduler"
	"github.com/AGENTHIVE/internal/types"
)

// Monitor errors
var (
	ErrNotFound  = errors.New("sla definition not found")
	ErrDuplicate = errors.New("sla id already defined")
)

// violationHistorySize bounds the violation ring
const violationHistorySize = 200

// violationEmitThreshold is the multiple of target past which a
// violation is emitted (strictly greater)
const violationEmitThreshold = 1.1

// activeViolationWindow bounds how long an unresolved violation keeps
// the policy engine's sla_violation condition raised
const activeViolationWindow = 5 * time.Minute

// Monitor evaluates every enabled SLA definition each monitoring tick,
// maintains compliance records, and emits violations onto the bus.
type Monitor struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	compliance  map[string]*Compliance
	violations  []*Violation

	sched  *scheduler.Scheduler
	reg    *registry.Registry
	msgBus *bus.Bus

	// onViolation is invoked for each new violation, after bus publication
	onViolation func(*Violation)
}

// NewMonitor creates an SLA monitor seeded with the default objectives
func NewMonitor(cfg types.SLAConfig, sched *scheduler.Scheduler, reg *registry.Registry, msgBus *bus.Bus) *Monitor {
	m := &Monitor{
		definitions: make(map[string]*Definition),
		compliance:  make(map[string]*Compliance),
		sched:       sched,
		reg:         reg,
		msgBus:      msgBus,
	}

	period := time.Duration(cfg.MonitoringInterval) * time.Second
	m.definitions["response-time"] = &Definition{
		ID:                "response-time",
		TargetType:        TargetResponseTime,
		TargetValue:       cfg.ResponseTimeTarget,
		Unit:              "seconds",
		MeasurementPeriod: period,
		PriorityImpact:    10,
		Enabled:           true,
	}
	m.definitions["throughput"] = &Definition{
		ID:                "throughput",
		TargetType:        TargetThroughput,
		TargetValue:       cfg.ThroughputTarget,
		Unit:              "tasks/hour",
		MeasurementPeriod: period,
		PriorityImpact:    5,
		Enabled:           true,
	}

	return m
}

// SetViolationHandler registers a callback for each new violation
func (m *Monitor) SetViolationHandler(fn func(*Violation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onViolation = fn
}

// Define adds an SLA definition
func (m *Monitor) Define(def *Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.definitions[def.ID]; exists {
		return ErrDuplicate
	}
	m.definitions[def.ID] = def
	return nil
}

// Remove deletes a definition and its compliance record
func (m *Monitor) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.definitions[id]; !exists {
		return ErrNotFound
	}
	delete(m.definitions, id)
	delete(m.compliance, id)
	return nil
}

// Definitions returns copies of every definition, ordered by id
func (m *Monitor) Definitions() []*Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Definition, 0, len(m.definitions))
	for _, d := range m.definitions {
		clone := *d
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ComplianceFor returns a copy of the compliance record for an SLA id
func (m *Monitor) ComplianceFor(id string) (*Compliance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.compliance[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	clone.History = append([]Measurement(nil), c.History...)
	return &clone, nil
}

// ComplianceSummary returns sla id -> compliance percentage
func (m *Monitor) ComplianceSummary() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]float64, len(m.compliance))
	for id, c := range m.compliance {
		result[id] = c.CompliancePercentage
	}
	return result
}

// Violations returns a copy of the bounded violation history
func (m *Monitor) Violations() []*Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Violation, 0, len(m.violations))
	for _, v := range m.violations {
		clone := *v
		result = append(result, &clone)
	}
	return result
}

// HasActiveViolation reports whether an unresolved violation exists
// within the active window. Feeds the policy engine's sla_violation
// condition.
func (m *Monitor) HasActiveViolation() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-activeViolationWindow)
	for _, v := range m.violations {
		if !v.Resolved && v.Time.After(cutoff) {
			return true
		}
	}
	return false
}

// ResolveViolation marks a violation resolved
func (m *Monitor) ResolveViolation(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.violations {
		if v.ID == id {
			now := time.Now()
			v.Resolved = true
			v.ResolutionTime = &now
			return nil
		}
	}
	return ErrNotFound
}

// Evaluate runs one monitoring pass over every enabled definition
func (m *Monitor) Evaluate() {
	m.mu.Lock()
	defs := make([]*Definition, 0, len(m.definitions))
	for _, d := range m.definitions {
		if d.Enabled {
			defs = append(defs, d)
		}
	}
	m.mu.Unlock()

	for _, def := range defs {
		current := m.observe(def.TargetType)
		m.evaluateOne(def, current)
	}
}

// observe reads the current value for a target type from the owning
// subsystem
func (m *Monitor) observe(target TargetType) float64 {
	sm := m.sched.Metrics()
	switch target {
	case TargetResponseTime:
		return sm.AvgExecutionTime.Seconds()
	case TargetThroughput:
		return float64(sm.ThroughputWindow)
	case TargetQueueTime:
		return sm.AvgQueueTime.Seconds()
	case TargetErrorRate:
		total := sm.CompletedTotal + sm.FailedTotal
		if total == 0 {
			return 0
		}
		return float64(sm.FailedTotal) / float64(total) * 100
	case TargetAvailability:
		active := m.reg.CountByStatus(registry.StatusActive)
		unhealthy := 0
		for _, meta := range m.reg.All() {
			if meta.Health == registry.HealthUnhealthy {
				unhealthy++
			}
		}
		if active+unhealthy == 0 {
			return 100
		}
		return float64(active) / float64(active+unhealthy) * 100
	}
	return 0
}

// evaluateOne updates the compliance record for one definition and emits
// a violation when the measurement lands past the emission threshold.
func (m *Monitor) evaluateOne(def *Definition, current float64) {
	now := time.Now()

	pct := 100.0
	if current > def.TargetValue && current > 0 {
		pct = def.TargetValue / current * 100
		if pct < 0 {
			pct = 0
		}
	}
	status := classifyCompliance(pct)

	m.mu.Lock()
	c, ok := m.compliance[def.ID]
	if !ok {
		c = &Compliance{SLAID: def.ID, TargetValue: def.TargetValue}
		m.compliance[def.ID] = c
	}
	c.CurrentValue = current
	c.TargetValue = def.TargetValue
	c.CompliancePercentage = pct
	c.Status = status
	c.LastUpdated = now
	c.History = append(c.History, Measurement{Value: current, Time: now})
	if len(c.History) > measurementHistorySize {
		c.History = c.History[len(c.History)-measurementHistorySize:]
	}
	m.mu.Unlock()

	if current > def.TargetValue*violationEmitThreshold {
		m.emitViolation(def, current, now)
	}
}

func (m *Monitor) emitViolation(def *Definition, current float64, now time.Time) {
	severity := classifySeverity(current / def.TargetValue)
	v := &Violation{
		ID:       uuid.New(),
		SLAID:    def.ID,
		Time:     now,
		Severity: severity,
		Measured: current,
		Target:   def.TargetValue,
		Impact:   string(def.TargetType) + " degraded",
	}

	m.mu.Lock()
	m.violations = append(m.violations, v)
	if len(m.violations) > violationHistorySize {
		m.violations = m.violations[len(m.violations)-violationHistorySize:]
	}
	handler := m.onViolation
	m.mu.Unlock()

	metrics.SLAViolations.WithLabelValues(string(severity)).Inc()
	log.Printf("[SLA] Violation on %s: measured %.2f against target %.2f (%s)",
		def.ID, current, def.TargetValue, severity)

	alertSeverity := bus.SeverityWarning
	if severity == SeverityCritical || severity == SeverityCatastrophic {
		alertSeverity = bus.SeverityCritical
	}
	if err := m.msgBus.PublishAlert(alertSeverity,
		"sla violation: "+def.ID,
		map[string]interface{}{
			"sla_id":   def.ID,
			"measured": current,
			"target":   def.TargetValue,
			"severity": string(severity),
		}); err != nil {
		log.Printf("[SLA] Failed to publish violation alert: %v", err)
	}

	if handler != nil {
		handler(v)
	}
}

// Run executes the monitoring loop until ctx is cancelled
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[SLA] Monitoring loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[SLA] Monitoring loop stopped")
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}
