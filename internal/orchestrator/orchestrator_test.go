package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/AGENTHIVE/internal/registry"
	"github.com/AGENTHIVE/internal/types"
)

func startOrchestrator(t *testing.T, busPort int, mutate func(*types.Config)) (*Orchestrator, func()) {
	t.Helper()

	cfg := types.DefaultConfig()
	cfg.Bus.Port = busPort
	cfg.Bus.HeartbeatInterval = 3600 // keep test traffic quiet
	cfg.Hierarchy.TotalAgents = 100
	if mutate != nil {
		mutate(cfg)
	}

	o, err := New(cfg)
	if err != nil {
		t.Fatalf("orchestrator init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := o.Start(ctx); err != nil {
		cancel()
		o.Stop()
		t.Fatalf("orchestrator start failed: %v", err)
	}

	return o, func() {
		cancel()
		o.Stop()
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestInitialPopulation(t *testing.T) {
	o, cleanup := startOrchestrator(t, 14401, nil)
	defer cleanup()

	stats := o.Registry.LayerStats()
	want := map[string]int{
		"cecca":       1,
		"board":       5,
		"executive":   10,
		"stack_chief": 20,
		"specialist":  34,
		"micro":       30,
	}
	total := 0
	for layer, count := range want {
		if stats[layer] != count {
			t.Errorf("layer %s: expected %d, got %d", layer, count, stats[layer])
		}
		total += stats[layer]
	}
	if total != 100 {
		t.Errorf("expected 100 agents, got %d", total)
	}

	// Every board agent escalates to CECCA[0]
	root, err := o.Hierarchy.Root()
	if err != nil {
		t.Fatalf("no root: %v", err)
	}
	for _, id := range o.Hierarchy.LayerMembers(registry.LayerBoard) {
		target, ok := o.Hierarchy.EscalationTarget(id)
		if !ok || target != root {
			t.Errorf("board agent does not escalate to root")
		}
	}
}

func TestSubmitThroughCompletion(t *testing.T) {
	o, cleanup := startOrchestrator(t, 14402, nil)
	defer cleanup()

	id, err := o.SubmitTask(&types.SubmitTaskRequest{
		Name:                 "unit-of-work",
		RequiredCapabilities: []string{"task_execution"},
		Parameters:           map[string]interface{}{"urgency": 90.0},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	o.Scheduler.DispatchCycle()

	waitFor(t, 5*time.Second, func() bool {
		return o.Scheduler.Metrics().CompletedTotal == 1
	})

	// The completed task left the queue and the assignment table
	if o.Scheduler.QueuedEntry(id) != nil {
		t.Error("completed task still queued")
	}
}

func TestQueryStatus(t *testing.T) {
	o, cleanup := startOrchestrator(t, 14403, nil)
	defer cleanup()

	status := o.QueryStatus()
	if status.QueueDepth != 0 {
		t.Errorf("expected empty queue, got %d", status.QueueDepth)
	}
	if len(status.LayerStats) != 6 {
		t.Errorf("expected 6 layers in stats, got %d", len(status.LayerStats))
	}
}

func TestExternalAgentLifecycle(t *testing.T) {
	o, cleanup := startOrchestrator(t, 14404, nil)
	defer cleanup()

	id, err := o.RegisterAgent(&types.RegisterAgentRequest{
		Name:         "external-ml",
		Layer:        "specialist",
		Role:         "specialized",
		Capabilities: []string{"code-generation"},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	meta, err := o.Registry.Lookup(id)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if meta.Layer != registry.LayerSpecialist {
		t.Errorf("expected specialist layer, got %s", meta.Layer)
	}

	// Adopted into the hierarchy under StackChief[0]
	if _, ok := o.Hierarchy.EscalationTarget(id); !ok {
		t.Error("external agent has no escalation target")
	}

	if err := o.DeregisterAgent(id); err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	if _, err := o.Registry.Lookup(id); err != registry.ErrNotFound {
		t.Errorf("expected ErrNotFound after deregister, got %v", err)
	}
}
