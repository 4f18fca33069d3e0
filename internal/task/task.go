package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is the scheduler-side lifecycle state of a task
type Status string

const (
	StatusQueued     Status = "queued"
	StatusDispatched Status = "dispatched"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Parameter keys with fixed meaning to the scheduler and priority engine
const (
	ParamUrgency       = "urgency"
	ParamImportance    = "importance"
	ParamBusinessValue = "business_value"
	ParamUserPriority  = "user_priority"
	ParamDeadline      = "deadline"
	ParamTargetAgent   = "target_agent"
)

// Task is an immutable unit of work submitted by a producer. The scheduler
// tracks attempts separately; the struct itself is never mutated after
// creation.
type Task struct {
	ID                   uuid.UUID              `json:"id"`
	Name                 string                 `json:"name"`
	RequiredCapabilities []string               `json:"required_capabilities"`
	PriorityHint         float64                `json:"priority_hint,omitempty"`
	Parameters           map[string]interface{} `json:"parameters,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	Deadline             *time.Time             `json:"deadline,omitempty"`
	Dependencies         []uuid.UUID            `json:"dependencies,omitempty"`
	TargetAgent          string                 `json:"target_agent,omitempty"`
}

// New creates a task with a fresh id and creation timestamp
func New(name string, capabilities []string, params map[string]interface{}) *Task {
	return &Task{
		ID:                   uuid.New(),
		Name:                 name,
		RequiredCapabilities: capabilities,
		Parameters:           params,
		CreatedAt:            time.Now(),
	}
}

// Age returns how long the task has existed
func (t *Task) Age() time.Duration {
	return time.Since(t.CreatedAt)
}

// FloatParam reads a numeric parameter, accepting float64, int and
// json-decoded values. Returns def when absent or not numeric.
func (t *Task) FloatParam(key string, def float64) float64 {
	if t.Parameters == nil {
		return def
	}
	v, ok := t.Parameters[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return def
}

// StringParam reads a string parameter, returning "" when absent
func (t *Task) StringParam(key string) string {
	if t.Parameters == nil {
		return ""
	}
	if s, ok := t.Parameters[key].(string); ok {
		return s
	}
	return ""
}

// Result is the outcome of a task execution, returned by the executing
// agent over the message bus.
type Result struct {
	TaskID      uuid.UUID              `json:"task_id"`
	Success     bool                   `json:"success"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
	Duration    time.Duration          `json:"duration"`
}
