package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/bus"
	"github.com/AGENTHIVE/internal/metrics"
	"github.com/AGENTHIVE/internal/priority"
	"github.com/AGENTHIVE/internal/registry"
	"github.com/AGENTHIVE/internal/task"
	"github.com/AGENTHIVE/internal/types"
)

// Scheduler errors
var (
	ErrQueueFull          = errors.New("scheduler queue is full")
	ErrNotFound           = errors.New("task not found")
	ErrCapabilityMismatch = errors.New("no suitable agent for task")
	ErrShuttingDown       = errors.New("scheduler is shutting down")
)

// retryBackoff bounds for failed-task requeueing
const (
	retryBackoffBase = 1 * time.Second
	retryBackoffCap  = 60 * time.Second
)

// completionHistorySize bounds the completion record ring
const completionHistorySize = 1000

// highPriorityFloor marks the fast-path band drained first each cycle
const highPriorityFloor = 80.0

// CompletionStatus classifies a finished task
type CompletionStatus string

const (
	CompletionCompleted CompletionStatus = "completed"
	CompletionFailed    CompletionStatus = "failed"
	CompletionCancelled CompletionStatus = "cancelled"
)

// CompletionRecord is the bounded-history record of a finished task
type CompletionRecord struct {
	TaskID      uuid.UUID        `json:"task_id"`
	Status      CompletionStatus `json:"status"`
	Agent       registry.AgentID `json:"agent,omitempty"`
	QueueTime   time.Duration    `json:"queue_time"`
	Duration    time.Duration    `json:"duration"`
	CompletedAt time.Time        `json:"completed_at"`
	Reason      string           `json:"reason,omitempty"`
}

// scheduledTask tracks one dispatched, incomplete task
type scheduledTask struct {
	entry              *Entry
	agent              registry.AgentID
	requestID          uuid.UUID
	dispatchedAt       time.Time
	expectedCompletion time.Time
}

// Metrics is a point-in-time snapshot of scheduler measurements
type Metrics struct {
	QueueDepth       int           `json:"queue_depth"`
	InFlight         int           `json:"in_flight"`
	CompletedTotal   uint64        `json:"completed_total"`
	FailedTotal      uint64        `json:"failed_total"`
	AvgQueueTime     time.Duration `json:"avg_queue_time"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	ThroughputWindow int           `json:"throughput_window"` // completions in the last hour
	MeanUtilization  float64       `json:"mean_utilization"`
}

// Scheduler owns the work queue and the dispatch loop. The queue is
// mutated only by scheduler methods; observers read snapshots.
type Scheduler struct {
	cfg      types.SchedulerConfig
	queueCap int

	engine *priority.Engine
	reg    *registry.Registry
	msgBus *bus.Bus

	queue *Queue
	loads *workloadTracker

	mu               sync.Mutex
	scheduled        map[uuid.UUID]*scheduledTask
	history          []CompletionRecord
	completedTotal   uint64
	failedTotal      uint64
	avgQueueTime     time.Duration
	avgExecutionTime time.Duration
	completionTimes  []time.Time
	stopped          bool
}

// New creates a scheduler over the given collaborators
func New(pCfg types.PriorityConfig, sCfg types.SchedulerConfig, engine *priority.Engine, reg *registry.Registry, msgBus *bus.Bus) *Scheduler {
	return &Scheduler{
		cfg:       sCfg,
		queueCap:  pCfg.MaxQueueSize,
		engine:    engine,
		reg:       reg,
		msgBus:    msgBus,
		queue:     NewQueue(),
		loads:     newWorkloadTracker(),
		scheduled: make(map[uuid.UUID]*scheduledTask),
	}
}

// Schedule computes the task's priority and enqueues it. Returns
// ErrQueueFull when the queue is at capacity.
func (s *Scheduler) Schedule(t *task.Task) (float64, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, ErrShuttingDown
	}
	s.mu.Unlock()

	if s.queue.Len() >= s.queueCap {
		metrics.TasksRejected.Inc()
		return 0, ErrQueueFull
	}

	prio := s.engine.CalculatePriority(t)

	target := t.TargetAgent
	if target == "" {
		target = t.StringParam(task.ParamTargetAgent)
	}

	s.queue.Push(&Entry{
		Task:        t,
		Priority:    prio,
		Deadline:    t.Deadline,
		TargetAgent: target,
	})

	metrics.TasksSubmitted.Inc()
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	return prio, nil
}

// Next pops the highest-priority entry, without checking its retry
// backoff gate, and records its queue
// time in the moving average. Returns nil when the queue is empty.
func (s *Scheduler) Next() *Entry {
	e := s.queue.Pop()
	if e == nil {
		return nil
	}
	s.recordQueueTime(time.Since(e.QueuedAt))
	metrics.QueueDepth.Set(float64(s.queue.Len()))
	return e
}

// Cancel removes a task from the queue or from the in-flight set and
// records a cancelled completion.
func (s *Scheduler) Cancel(id uuid.UUID, reason string) error {
	if entry := s.queue.Get(id); entry != nil {
		s.queue.Remove(id)
		metrics.QueueDepth.Set(float64(s.queue.Len()))
		s.recordCompletion(CompletionRecord{
			TaskID:      id,
			Status:      CompletionCancelled,
			QueueTime:   time.Since(entry.QueuedAt),
			CompletedAt: time.Now(),
			Reason:      reason,
		}, false)
		s.engine.Remove(id)
		return nil
	}

	s.mu.Lock()
	st, ok := s.scheduled[id]
	if ok {
		delete(s.scheduled, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	s.loads.taskFailed(st.agent)
	s.recordCompletion(CompletionRecord{
		TaskID:      id,
		Status:      CompletionCancelled,
		Agent:       st.agent,
		QueueTime:   st.dispatchedAt.Sub(st.entry.QueuedAt),
		CompletedAt: time.Now(),
		Reason:      reason,
	}, false)
	s.engine.Remove(id)
	return nil
}

// DispatchCycle drains up to the batch limit of eligible entries,
// resolving an agent for each and sending the request over the bus.
// Entries in retry backoff are skipped and requeued.
func (s *Scheduler) DispatchCycle() {
	batch := s.cfg.DispatchBatchSize
	if batch <= 0 {
		batch = 10
	}

	now := time.Now()
	var requeue []*Entry
	dispatched := 0

	for dispatched < batch {
		e := s.queue.Pop()
		if e == nil {
			break
		}
		// Below the fast-path band, stop once the batch is half used so
		// bursts of high-priority work always find dispatch capacity.
		if e.Priority < highPriorityFloor && dispatched >= batch/2 && s.queue.Len() > 0 {
			requeue = append(requeue, e)
			break
		}
		if e.NotBefore.After(now) {
			requeue = append(requeue, e)
			continue
		}

		s.recordQueueTime(now.Sub(e.QueuedAt))
		if err := s.dispatch(e); err != nil {
			if errors.Is(err, ErrCapabilityMismatch) {
				// Terminal: no capable agent registered
				s.failEntry(e, registry.AgentID{}, "capability_mismatch", err.Error())
			} else {
				log.Printf("[SCHEDULER] Dispatch of %s failed: %v", e.Task.ID, err)
				requeue = append(requeue, e)
			}
			continue
		}
		dispatched++
	}

	for _, e := range requeue {
		s.queue.Push(e)
	}
	metrics.QueueDepth.Set(float64(s.queue.Len()))
}

// dispatch resolves an agent and sends the request
func (s *Scheduler) dispatch(e *Entry) error {
	agent, err := s.resolveAgent(e)
	if err != nil {
		return err
	}

	timeout := time.Duration(s.cfg.DefaultTimeout) * time.Second
	req := &bus.Request{
		From:     s.msgBus.SystemID(),
		To:       agent.ID,
		Task:     e.Task,
		Priority: e.Priority,
		Timeout:  timeout,
	}
	if err := s.msgBus.SendRequest(req); err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	s.scheduled[e.Task.ID] = &scheduledTask{
		entry:              e,
		agent:              agent.ID,
		requestID:          req.ID,
		dispatchedAt:       now,
		expectedCompletion: now.Add(timeout),
	}
	s.mu.Unlock()

	s.loads.taskStarted(agent.ID)
	metrics.TasksDispatched.Inc()
	return nil
}

// resolveAgent picks the executing agent: the explicit target when it is
// active and capable, otherwise the least-loaded capable agent.
func (s *Scheduler) resolveAgent(e *Entry) (*registry.AgentMetadata, error) {
	if e.TargetAgent != "" {
		meta, err := s.reg.Lookup(registry.DeriveAgentID(e.TargetAgent))
		if err == nil && meta.Status == registry.StatusActive &&
			meta.HasAllCapabilities(e.Task.RequiredCapabilities) {
			return meta, nil
		}
		// Fall through to capability-based selection
	}

	candidates := s.reg.FindCapable(e.Task.RequiredCapabilities)
	if len(candidates) == 0 {
		return nil, ErrCapabilityMismatch
	}

	best := candidates[0]
	bestLoad := s.loads.get(best.ID).CurrentTasks
	for _, meta := range candidates[1:] {
		if load := s.loads.get(meta.ID).CurrentTasks; load < bestLoad {
			best = meta
			bestLoad = load
		}
	}
	return best, nil
}

// HandleResponse records a completed task from an agent response.
// Wired to bus.SubscribeResponses by the orchestrator.
func (s *Scheduler) HandleResponse(req *bus.Request, resp *bus.Response) {
	s.mu.Lock()
	st, ok := s.scheduled[req.Task.ID]
	if ok {
		delete(s.scheduled, req.Task.ID)
	}
	s.mu.Unlock()

	if !ok {
		// Cancelled or timed out before the response arrived
		return
	}

	now := time.Now()
	duration := now.Sub(st.dispatchedAt)

	if resp.Result != nil && !resp.Result.Success {
		s.loads.taskFailed(st.agent)
		s.maybeRetry(st, "execution_failed", resp.Result.Error)
		return
	}

	s.loads.taskFinished(st.agent, duration)
	s.recordExecutionTime(duration)
	s.recordCompletion(CompletionRecord{
		TaskID:      req.Task.ID,
		Status:      CompletionCompleted,
		Agent:       st.agent,
		QueueTime:   st.dispatchedAt.Sub(st.entry.QueuedAt),
		Duration:    duration,
		CompletedAt: now,
	}, true)
	s.engine.Remove(req.Task.ID)
	metrics.TasksCompleted.Inc()
}

// CheckTimeouts fails in-flight tasks past their expected completion and
// requeues them when retries remain.
func (s *Scheduler) CheckTimeouts() {
	now := time.Now()

	s.mu.Lock()
	var expired []*scheduledTask
	for id, st := range s.scheduled {
		if now.After(st.expectedCompletion) {
			expired = append(expired, st)
			delete(s.scheduled, id)
		}
	}
	s.mu.Unlock()

	for _, st := range expired {
		s.loads.taskFailed(st.agent)
		s.maybeRetry(st, "timeout", "task exceeded expected completion")
	}
}

// maybeRetry requeues a failed task with exponential backoff, or records
// a terminal failure when attempts are exhausted.
func (s *Scheduler) maybeRetry(st *scheduledTask, reason, detail string) {
	metrics.TasksFailed.WithLabelValues(reason).Inc()

	if st.entry.Attempts < s.cfg.MaxRetries {
		backoff := retryBackoffBase << uint(st.entry.Attempts)
		if backoff > retryBackoffCap {
			backoff = retryBackoffCap
		}
		st.entry.Attempts++
		st.entry.NotBefore = time.Now().Add(backoff)
		s.queue.Push(st.entry)
		log.Printf("[SCHEDULER] Task %s %s, retry %d/%d in %s",
			st.entry.Task.ID, reason, st.entry.Attempts, s.cfg.MaxRetries, backoff)
		return
	}

	s.failEntry(st.entry, st.agent, reason, detail)
}

func (s *Scheduler) failEntry(e *Entry, agent registry.AgentID, reason, detail string) {
	s.recordCompletion(CompletionRecord{
		TaskID:      e.Task.ID,
		Status:      CompletionFailed,
		Agent:       agent,
		QueueTime:   time.Since(e.QueuedAt),
		CompletedAt: time.Now(),
		Reason:      reason,
	}, false)
	s.engine.Remove(e.Task.ID)
	metrics.TasksFailed.WithLabelValues(reason).Inc()

	if err := s.msgBus.PublishAlert(bus.SeverityWarning,
		"task failed: "+detail,
		map[string]interface{}{"task_id": e.Task.ID.String(), "reason": reason}); err != nil {
		log.Printf("[SCHEDULER] Failed to publish failure alert: %v", err)
	}
}

// recordCompletion appends to the bounded history ring
func (s *Scheduler) recordCompletion(rec CompletionRecord, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)
	if len(s.history) > completionHistorySize {
		s.history = s.history[len(s.history)-completionHistorySize:]
	}
	if success {
		s.completedTotal++
		s.completionTimes = append(s.completionTimes, rec.CompletedAt)
		// Prune the throughput window as it grows
		if len(s.completionTimes) > completionHistorySize {
			s.completionTimes = s.completionTimes[len(s.completionTimes)-completionHistorySize:]
		}
	} else {
		s.failedTotal++
	}
}

func (s *Scheduler) recordQueueTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.avgQueueTime == 0 {
		s.avgQueueTime = d
	} else {
		s.avgQueueTime = (s.avgQueueTime*9 + d) / 10
	}
}

func (s *Scheduler) recordExecutionTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.avgExecutionTime == 0 {
		s.avgExecutionTime = d
	} else {
		s.avgExecutionTime = (s.avgExecutionTime*9 + d) / 10
	}
}

// Metrics returns a snapshot of the scheduler's measurements
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour)
	window := 0
	for _, ts := range s.completionTimes {
		if ts.After(cutoff) {
			window++
		}
	}

	return Metrics{
		QueueDepth:       s.queue.Len(),
		InFlight:         len(s.scheduled),
		CompletedTotal:   s.completedTotal,
		FailedTotal:      s.failedTotal,
		AvgQueueTime:     s.avgQueueTime,
		AvgExecutionTime: s.avgExecutionTime,
		ThroughputWindow: window,
		MeanUtilization:  s.loads.meanUtilization(),
	}
}

// QueueDepth returns the current queue length
func (s *Scheduler) QueueDepth() int {
	return s.queue.Len()
}

// InFlightIDs returns the ids of dispatched, incomplete tasks
func (s *Scheduler) InFlightIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(s.scheduled))
	for id := range s.scheduled {
		ids = append(ids, id)
	}
	return ids
}

// QueuedEntry returns the queued entry for id, or nil
func (s *Scheduler) QueuedEntry(id uuid.UUID) *Entry {
	return s.queue.Get(id)
}

// UpdateQueuedPriority adjusts a queued entry's priority in place
func (s *Scheduler) UpdateQueuedPriority(id uuid.UUID, prio float64) bool {
	return s.queue.UpdatePriority(id, prio)
}

// Workloads returns copies of every agent workload record
func (s *Scheduler) Workloads() []*Workload {
	return s.loads.snapshot()
}

// AvailableAgentFraction returns the fraction of agents under the given
// utilization threshold
func (s *Scheduler) AvailableAgentFraction(threshold float64) float64 {
	return s.loads.availableFraction(threshold)
}

// History returns a copy of the bounded completion history
func (s *Scheduler) History() []CompletionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]CompletionRecord, len(s.history))
	copy(result, s.history)
	return result
}

// Run executes the dispatch loop until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[SCHEDULER] Dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[SCHEDULER] Dispatch loop stopped")
			return
		case <-ticker.C:
			s.DispatchCycle()
			s.CheckTimeouts()
		}
	}
}

// Shutdown stops accepting new tasks and waits up to grace for in-flight
// work, then force-fails the remainder.
func (s *Scheduler) Shutdown(grace time.Duration) {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		remaining := len(s.scheduled)
		s.mu.Unlock()
		if remaining == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	s.mu.Lock()
	var leftovers []*scheduledTask
	for id, st := range s.scheduled {
		leftovers = append(leftovers, st)
		delete(s.scheduled, id)
	}
	s.mu.Unlock()

	for _, st := range leftovers {
		s.failEntry(st.entry, st.agent, "shutdown", "scheduler shut down before completion")
	}
	log.Printf("[SCHEDULER] Shutdown complete, %d in-flight tasks force-failed", len(leftovers))
}
