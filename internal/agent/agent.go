// Package agent is the in-process agent runtime. One polymorphic agent
// type serves every layer; behavior differences live in the handler
// table keyed by task name, not in per-domain structs.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/AGENTHIVE/internal/bus"
	"github.com/AGENTHIVE/internal/registry"
	"github.com/AGENTHIVE/internal/task"
)

// Lifecycle is the runtime state of an agent
type Lifecycle string

const (
	StateInitializing Lifecycle = "initializing"
	StateActive       Lifecycle = "active"
	StateBusy         Lifecycle = "busy"
	StateInactive     Lifecycle = "inactive"
	StateMaintenance  Lifecycle = "maintenance"
	StateError        Lifecycle = "error"
	StateShutdown     Lifecycle = "shutdown"
)

// Handler executes one named task. Returning an error fails the task.
type Handler func(ctx context.Context, t *task.Task) (map[string]interface{}, error)

// ErrNoHandler is returned for task names without a table entry
var ErrNoHandler = errors.New("no handler for task")

// Agent owns its mutable state and heartbeat exclusively. Structural
// links (escalation, subordinates) live in the hierarchy, not here.
type Agent struct {
	meta   *registry.AgentMetadata
	msgBus *bus.Bus

	mu          sync.RWMutex
	state       Lifecycle
	currentTask string
	handlers    map[string]Handler
	fallback    Handler
	lastBeat    time.Time
	tasksDone   uint64
	tasksFailed uint64

	cancel context.CancelFunc
}

// New creates an agent for the given metadata
func New(meta *registry.AgentMetadata, msgBus *bus.Bus) *Agent {
	return &Agent{
		meta:     meta,
		msgBus:   msgBus,
		state:    StateInitializing,
		handlers: make(map[string]Handler),
	}
}

// Metadata returns the agent's registry metadata
func (a *Agent) Metadata() *registry.AgentMetadata {
	return a.meta
}

// State returns the current lifecycle state
func (a *Agent) State() Lifecycle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Capabilities returns the advertised capability set
func (a *Agent) Capabilities() []string {
	return a.meta.Capabilities
}

// Handle registers a handler for a task name
func (a *Agent) Handle(name string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[name] = h
}

// HandleDefault registers the fallback handler for unnamed task kinds
func (a *Agent) HandleDefault(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = h
}

// Start subscribes the agent to its request and broadcast subjects and
// begins the heartbeat loop. The agent becomes Active.
func (a *Agent) Start(ctx context.Context, heartbeatInterval time.Duration) error {
	runCtx, cancel := context.WithCancel(ctx)

	if err := a.msgBus.OnRequest(a.meta.ID, func(req *bus.Request) {
		a.executeRequest(runCtx, req)
	}); err != nil {
		cancel()
		return fmt.Errorf("agent %s failed to subscribe: %w", a.meta.Name, err)
	}
	if err := a.msgBus.OnBroadcast(a.meta.ID, func(bc *bus.Broadcast) {
		log.Printf("[AGENT] %s received broadcast %s", a.meta.Name, bc.Topic)
	}); err != nil {
		cancel()
		return fmt.Errorf("agent %s failed to subscribe broadcasts: %w", a.meta.Name, err)
	}

	a.mu.Lock()
	a.state = StateActive
	a.cancel = cancel
	a.mu.Unlock()

	if heartbeatInterval > 0 {
		go a.heartbeatLoop(runCtx, heartbeatInterval)
	}
	return nil
}

// Stop transitions the agent to Shutdown and stops its loops
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.state = StateShutdown
}

// executeRequest runs the handler for one request and responds
func (a *Agent) executeRequest(ctx context.Context, req *bus.Request) {
	a.mu.Lock()
	if a.state != StateActive && a.state != StateBusy {
		state := a.state
		a.mu.Unlock()
		log.Printf("[AGENT] %s dropping request in state %s", a.meta.Name, state)
		return
	}
	a.state = StateBusy
	a.currentTask = req.Task.Name
	handler := a.handlers[req.Task.Name]
	if handler == nil {
		handler = a.fallback
	}
	a.mu.Unlock()

	start := time.Now()
	result := &task.Result{TaskID: req.Task.ID}

	if handler == nil {
		result.Success = false
		result.Error = fmt.Sprintf("%v: %s", ErrNoHandler, req.Task.Name)
	} else {
		execCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}
		output, err := handler(execCtx, req.Task)
		if err != nil {
			result.Success = false
			result.Error = err.Error()
		} else {
			result.Success = true
			result.Output = output
		}
	}

	result.Duration = time.Since(start)
	result.CompletedAt = time.Now()

	a.mu.Lock()
	a.state = StateActive
	a.currentTask = ""
	if result.Success {
		a.tasksDone++
	} else {
		a.tasksFailed++
	}
	a.mu.Unlock()

	resp := &bus.Response{
		RequestID: req.ID,
		From:      a.meta.ID,
		To:        req.From,
		Result:    result,
	}
	if err := a.msgBus.SendResponse(resp); err != nil {
		log.Printf("[AGENT] %s failed to respond to %s: %v", a.meta.Name, req.ID, err)
	}
}

// heartbeatLoop publishes liveness on the configured interval
func (a *Agent) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			a.lastBeat = time.Now()
			health := bus.AgentHealth{
				Status:      string(a.state),
				CurrentTask: a.currentTask,
			}
			a.mu.Unlock()

			if err := a.msgBus.PublishHeartbeat(a.meta.ID, health); err != nil {
				log.Printf("[AGENT] %s heartbeat failed: %v", a.meta.Name, err)
			}
		}
	}
}

// HealthCheck reports a snapshot of counters for monitoring
func (a *Agent) HealthCheck() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return map[string]interface{}{
		"state":        string(a.state),
		"current_task": a.currentTask,
		"tasks_done":   a.tasksDone,
		"tasks_failed": a.tasksFailed,
		"last_beat":    a.lastBeat,
	}
}

// SetMaintenance toggles the maintenance state
func (a *Agent) SetMaintenance(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if on {
		a.state = StateMaintenance
	} else {
		a.state = StateActive
	}
}
