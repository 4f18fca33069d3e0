package policy

import (
	"time"
)

// ConditionType names a system scalar a policy can test
type ConditionType string

const (
	CondQueueSize         ConditionType = "queue_size"
	CondSystemLoad        ConditionType = "system_load"
	CondSLAViolation      ConditionType = "sla_violation"
	CondTaskAge           ConditionType = "task_age"
	CondAgentAvailability ConditionType = "agent_availability"
)

// Operator compares an observed scalar against the condition value
type Operator string

const (
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
	OpEqual       Operator = "eq"
	OpAtLeast     Operator = "gte"
	OpAtMost      Operator = "lte"
)

// Condition is one predicate over live system state
type Condition struct {
	Type     ConditionType `json:"type" yaml:"type"`
	Operator Operator      `json:"operator" yaml:"operator"`
	Value    float64       `json:"value" yaml:"value"`
}

// ActionType names a reaction a policy can take
type ActionType string

const (
	ActionSetPriority      ActionType = "set_priority"
	ActionIncreasePriority ActionType = "increase_priority"
	ActionDecreasePriority ActionType = "decrease_priority"
	ActionEscalatePriority ActionType = "escalate_priority"
	ActionReassignTask     ActionType = "reassign_task"
	ActionCancelTask       ActionType = "cancel_task"
	ActionNotifyOperator   ActionType = "notify_operator"
	ActionTriggerWorkflow  ActionType = "trigger_workflow"
)

// Action is one reaction, executed in declaration order
type Action struct {
	Type    ActionType `json:"type" yaml:"type"`
	Amount  float64    `json:"amount,omitempty" yaml:"amount,omitempty"`
	Message string     `json:"message,omitempty" yaml:"message,omitempty"`
}

// Policy is a condition/action rule evaluated each scheduling tick.
// Lower Priority values run first.
type Policy struct {
	ID           string      `json:"id" yaml:"id"`
	Enabled      bool        `json:"enabled" yaml:"enabled"`
	Conditions   []Condition `json:"conditions" yaml:"conditions"`
	Actions      []Action    `json:"actions" yaml:"actions"`
	Priority     uint8       `json:"priority" yaml:"priority"`
	LastExecuted *time.Time  `json:"last_executed,omitempty" yaml:"-"`
}

// Snapshot carries the live scalars policies evaluate against
type Snapshot struct {
	QueueSize         int
	SystemLoad        float64 // mean agent utilization, percent
	SLAViolation      bool
	OldestTaskAge     time.Duration
	AgentAvailability float64 // fraction of agents below 80% utilization
}

// Execution records one policy run in the bounded history ring
type Execution struct {
	PolicyID        string    `json:"policy_id"`
	Time            time.Time `json:"time"`
	ConditionsMet   bool      `json:"conditions_met"`
	ActionsExecuted int       `json:"actions_executed"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
}

// escalationFactor is applied by the EscalatePriority action
const escalationFactor = 0.25

// DefaultPolicies returns the policies seeded at initialization
func DefaultPolicies() []*Policy {
	return []*Policy{
		{
			ID:       "sla-violation-response",
			Enabled:  true,
			Priority: 0,
			Conditions: []Condition{
				{Type: CondSLAViolation, Operator: OpEqual, Value: 1},
			},
			Actions: []Action{
				{Type: ActionEscalatePriority},
			},
		},
		{
			ID:       "escalate-aged-tasks",
			Enabled:  true,
			Priority: 1,
			Conditions: []Condition{
				{Type: CondTaskAge, Operator: OpGreaterThan, Value: 600},
			},
			Actions: []Action{
				{Type: ActionIncreasePriority, Amount: 15},
			},
		},
		{
			ID:       "queue-overflow",
			Enabled:  true,
			Priority: 2,
			Conditions: []Condition{
				{Type: CondQueueSize, Operator: OpGreaterThan, Value: 1000},
			},
			Actions: []Action{
				{Type: ActionNotifyOperator, Message: "scheduler queue above overflow threshold"},
			},
		},
	}
}
