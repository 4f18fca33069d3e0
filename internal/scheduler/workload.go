package scheduler

import (
	"sync"
	"time"

	"github.com/AGENTHIVE/internal/registry"
)

// defaultAgentCapacity is the concurrent-task capacity assumed for agents
// that never reported one
const defaultAgentCapacity = 10

// Workload is the scheduler's view of one agent's current load
type Workload struct {
	AgentID         registry.AgentID `json:"agent_id"`
	CurrentTasks    int              `json:"current_tasks"`
	QueuedTasks     int              `json:"queued_tasks"`
	TotalCapacity   int              `json:"total_capacity"`
	Utilization     float64          `json:"utilization"` // percent
	AvgTaskDuration time.Duration    `json:"avg_task_duration"`
	FailureCount    int              `json:"failure_count"`
	LastUpdated     time.Time        `json:"last_updated"`
}

// workloadTracker maintains per-agent workload records
type workloadTracker struct {
	mu        sync.RWMutex
	workloads map[registry.AgentID]*Workload
}

func newWorkloadTracker() *workloadTracker {
	return &workloadTracker{workloads: make(map[registry.AgentID]*Workload)}
}

func (w *workloadTracker) get(id registry.AgentID) *Workload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.getLocked(id)
}

func (w *workloadTracker) getLocked(id registry.AgentID) *Workload {
	wl, ok := w.workloads[id]
	if !ok {
		wl = &Workload{AgentID: id, TotalCapacity: defaultAgentCapacity}
		w.workloads[id] = wl
	}
	return wl
}

// taskStarted records a dispatch to the agent
func (w *workloadTracker) taskStarted(id registry.AgentID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wl := w.getLocked(id)
	wl.CurrentTasks++
	wl.refresh()
}

// taskFinished records a completion with its duration
func (w *workloadTracker) taskFinished(id registry.AgentID, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wl := w.getLocked(id)
	if wl.CurrentTasks > 0 {
		wl.CurrentTasks--
	}
	if wl.AvgTaskDuration == 0 {
		wl.AvgTaskDuration = duration
	} else {
		// Exponential moving average, same smoothing as the queue-time metric
		wl.AvgTaskDuration = (wl.AvgTaskDuration*9 + duration) / 10
	}
	wl.refresh()
}

// taskFailed records a failure (timeout or error) against the agent
func (w *workloadTracker) taskFailed(id registry.AgentID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wl := w.getLocked(id)
	if wl.CurrentTasks > 0 {
		wl.CurrentTasks--
	}
	wl.FailureCount++
	wl.refresh()
}

func (wl *Workload) refresh() {
	if wl.TotalCapacity > 0 {
		wl.Utilization = float64(wl.CurrentTasks) / float64(wl.TotalCapacity) * 100
	}
	wl.LastUpdated = time.Now()
}

// snapshot returns copies of every workload record
func (w *workloadTracker) snapshot() []*Workload {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]*Workload, 0, len(w.workloads))
	for _, wl := range w.workloads {
		clone := *wl
		result = append(result, &clone)
	}
	return result
}

// meanUtilization returns the average utilization across tracked agents
func (w *workloadTracker) meanUtilization() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.workloads) == 0 {
		return 0
	}
	var sum float64
	for _, wl := range w.workloads {
		sum += wl.Utilization
	}
	return sum / float64(len(w.workloads))
}

// availableFraction returns the fraction of tracked agents below the
// utilization threshold
func (w *workloadTracker) availableFraction(threshold float64) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.workloads) == 0 {
		return 1
	}
	available := 0
	for _, wl := range w.workloads {
		if wl.Utilization < threshold {
			available++
		}
	}
	return float64(available) / float64(len(w.workloads))
}
