package policy

import (
	"testing"
	"time"

	"github.com/AGENTHIVE/internal/bus"
	"github.com/AGENTHIVE/internal/priority"
	"github.com/AGENTHIVE/internal/registry"
	"github.com/AGENTHIVE/internal/scheduler"
	"github.com/AGENTHIVE/internal/task"
	"github.com/AGENTHIVE/internal/types"
)

type harness struct {
	engine *Engine
	prio   *priority.Engine
	sched  *scheduler.Scheduler
	bus    *bus.Bus
	snap   Snapshot
}

func startHarness(t *testing.T, port int) (*harness, func()) {
	t.Helper()

	cfg := types.DefaultConfig()

	srv := bus.NewEmbeddedServer(bus.EmbeddedServerConfig{Port: port})
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start embedded server: %v", err)
	}
	client, err := bus.NewClient(srv.URL())
	if err != nil {
		srv.Shutdown()
		t.Fatalf("failed to connect: %v", err)
	}

	reg := registry.New()
	msgBus := bus.New(client, reg)
	prio := priority.NewEngine(cfg.Priority)
	sched := scheduler.New(cfg.Priority, cfg.Scheduler, prio, reg, msgBus)

	h := &harness{prio: prio, sched: sched, bus: msgBus}
	h.engine = NewEngine(func() Snapshot { return h.snap }, prio, sched, msgBus)

	return h, func() {
		client.Close()
		srv.Shutdown()
	}
}

func TestDefaultPoliciesSeeded(t *testing.T) {
	h, cleanup := startHarness(t, 14321)
	defer cleanup()

	policies := h.engine.Policies()
	if len(policies) != 3 {
		t.Fatalf("expected 3 default policies, got %d", len(policies))
	}
	// Priority-ascending order: sla-violation-response(0), escalate-aged-tasks(1), queue-overflow(2)
	want := []string{"sla-violation-response", "escalate-aged-tasks", "queue-overflow"}
	for i, id := range want {
		if policies[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, policies[i].ID)
		}
	}
}

func TestAgedTaskEscalation(t *testing.T) {
	h, cleanup := startHarness(t, 14322)
	defer cleanup()

	// A task created 601 seconds ago, never dispatched
	tk := task.New("aged", []string{"task_execution"}, nil)
	tk.CreatedAt = time.Now().Add(-601 * time.Second)
	before, err := h.sched.Schedule(tk)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	h.snap = Snapshot{OldestTaskAge: 601 * time.Second}
	h.engine.Tick()

	a, err := h.prio.Assignment(tk.ID)
	if err != nil {
		t.Fatalf("assignment missing: %v", err)
	}
	want := before + 15
	if want > 100 {
		want = 100
	}
	if a.CurrentPriority < want-0.01 || a.CurrentPriority > want+0.01 {
		t.Errorf("expected priority %.2f after aged escalation, got %.2f", want, a.CurrentPriority)
	}

	// Queue entry priority must follow the assignment
	if e := h.sched.QueuedEntry(tk.ID); e == nil || e.Priority != a.CurrentPriority {
		t.Error("queued entry priority not updated with assignment")
	}
}

func TestSLAViolationEscalatesOldestTask(t *testing.T) {
	h, cleanup := startHarness(t, 14323)
	defer cleanup()

	older := task.New("older", []string{"task_execution"}, nil)
	older.CreatedAt = time.Now().Add(-2 * time.Minute)
	newer := task.New("newer", []string{"task_execution"}, nil)

	beforeOlder, _ := h.sched.Schedule(older)
	beforeNewer, _ := h.sched.Schedule(newer)

	h.snap = Snapshot{SLAViolation: true}
	h.engine.Tick()

	a, _ := h.prio.Assignment(older.ID)
	want := beforeOlder * 1.25
	if want > 100 {
		want = 100
	}
	if a.CurrentPriority < want-0.1 || a.CurrentPriority > want+0.1 {
		t.Errorf("expected oldest task escalated to %.2f, got %.2f", want, a.CurrentPriority)
	}

	b, _ := h.prio.Assignment(newer.ID)
	// Aging may nudge it; it must not receive the 25% escalation
	if b.CurrentPriority > beforeNewer*1.2 {
		t.Errorf("newer task should not be escalated, got %.2f", b.CurrentPriority)
	}
}

func TestQueueOverflowNotifiesOperator(t *testing.T) {
	h, cleanup := startHarness(t, 14324)
	defer cleanup()

	var alerts []*bus.Alert
	if err := h.bus.SubscribeAlerts(func(a *bus.Alert) { alerts = append(alerts, a) }); err != nil {
		t.Fatalf("subscribe alerts failed: %v", err)
	}

	h.snap = Snapshot{QueueSize: 1001}
	h.engine.Tick()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(alerts) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(alerts) == 0 {
		t.Fatal("expected operator alert for queue overflow")
	}
	if alerts[0].Severity != bus.SeverityWarning {
		t.Errorf("expected warning severity, got %s", alerts[0].Severity)
	}
}

func TestConditionsAllMustHold(t *testing.T) {
	h, cleanup := startHarness(t, 14325)
	defer cleanup()

	p := &Policy{
		ID:      "both-or-nothing",
		Enabled: true,
		Conditions: []Condition{
			{Type: CondQueueSize, Operator: OpGreaterThan, Value: 10},
			{Type: CondSystemLoad, Operator: OpGreaterThan, Value: 90},
		},
		Actions:  []Action{{Type: ActionNotifyOperator}},
		Priority: 5,
	}
	if err := h.engine.Register(p); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// Only one condition holds
	h.snap = Snapshot{QueueSize: 50, SystemLoad: 10}
	h.engine.Tick()

	for _, rec := range h.engine.History() {
		if rec.PolicyID == "both-or-nothing" {
			t.Error("policy executed with only one condition met")
		}
	}
}

func TestDisabledPolicySkipped(t *testing.T) {
	h, cleanup := startHarness(t, 14326)
	defer cleanup()

	if err := h.engine.SetEnabled("queue-overflow", false); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	h.snap = Snapshot{QueueSize: 5000}
	h.engine.Tick()

	for _, rec := range h.engine.History() {
		if rec.PolicyID == "queue-overflow" {
			t.Error("disabled policy executed")
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	h, cleanup := startHarness(t, 14327)
	defer cleanup()

	if err := h.engine.Register(&Policy{ID: "no-parts", Enabled: true}); err == nil {
		t.Error("expected validation error for policy without conditions/actions")
	}

	dup := DefaultPolicies()[0]
	if err := h.engine.Register(dup); err != ErrDuplicatePolicy {
		t.Errorf("expected ErrDuplicatePolicy, got %v", err)
	}
}

func TestRemovePolicy(t *testing.T) {
	h, cleanup := startHarness(t, 14328)
	defer cleanup()

	if err := h.engine.Remove("queue-overflow"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := h.engine.Remove("queue-overflow"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelTaskAction(t *testing.T) {
	h, cleanup := startHarness(t, 14329)
	defer cleanup()

	tk := task.New("doomed", []string{"task_execution"}, nil)
	tk.CreatedAt = time.Now().Add(-20 * time.Minute)
	if _, err := h.sched.Schedule(tk); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	p := &Policy{
		ID:      "cancel-ancient",
		Enabled: true,
		Conditions: []Condition{
			{Type: CondTaskAge, Operator: OpGreaterThan, Value: 900},
		},
		Actions:  []Action{{Type: ActionCancelTask}},
		Priority: 3,
	}
	if err := h.engine.Register(p); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	h.snap = Snapshot{OldestTaskAge: 20 * time.Minute}
	h.engine.Tick()

	if e := h.sched.QueuedEntry(tk.ID); e != nil {
		t.Error("expected ancient task cancelled by policy")
	}
}
