package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AGENTHIVE/internal/registry"
	"github.com/AGENTHIVE/internal/task"
)

// Subject pattern constants for bus messaging
const (
	// SubjectAgentRequest carries task requests to a specific agent.
	// Use fmt.Sprintf(SubjectAgentRequest, agentID) to build the subject.
	SubjectAgentRequest = "agent.%s.request"

	// SubjectAgentBroadcast carries fanned-out broadcasts to a specific agent
	SubjectAgentBroadcast = "agent.%s.broadcast"

	// SubjectAgentHeartbeat is published by each agent on its interval
	SubjectAgentHeartbeat = "agent.%s.heartbeat"

	// SubjectAllHeartbeats subscribes to every agent heartbeat
	SubjectAllHeartbeats = "agent.*.heartbeat"

	// SubjectResponse carries task responses back to the dispatcher
	SubjectResponse = "hive.response"

	// SubjectAlert carries alert envelopes to all alert subscribers
	SubjectAlert = "hive.alert"

	// SubjectRegistration carries register/deregister/update envelopes
	SubjectRegistration = "hive.registration"

	// SubjectEscalation carries escalation messages up the hierarchy
	SubjectEscalation = "hive.escalation"
)

// RequestSubject returns the request subject for an agent id
func RequestSubject(id registry.AgentID) string {
	return fmt.Sprintf(SubjectAgentRequest, id)
}

// BroadcastSubject returns the broadcast subject for an agent id
func BroadcastSubject(id registry.AgentID) string {
	return fmt.Sprintf(SubjectAgentBroadcast, id)
}

// HeartbeatSubject returns the heartbeat subject for an agent id
func HeartbeatSubject(id registry.AgentID) string {
	return fmt.Sprintf(SubjectAgentHeartbeat, id)
}

// Severity classifies alert envelopes
type Severity string

const (
	SeverityEmergency Severity = "emergency"
	SeverityCritical  Severity = "critical"
	SeverityWarning   Severity = "warning"
	SeverityInfo      Severity = "info"
	SeverityDebug     Severity = "debug"
)

// BroadcastScope selects the receivers of a broadcast
type BroadcastScope struct {
	All   bool           `json:"all,omitempty"`
	Layer registry.Layer `json:"layer,omitempty"`
	Role  registry.Role  `json:"role,omitempty"`
}

// RegistrationAction distinguishes registration envelope kinds
type RegistrationAction string

const (
	ActionRegister   RegistrationAction = "register"
	ActionDeregister RegistrationAction = "deregister"
	ActionUpdate     RegistrationAction = "update"
)

// Request asks an agent to execute a task
type Request struct {
	ID       uuid.UUID        `json:"id"`
	From     registry.AgentID `json:"from"`
	To       registry.AgentID `json:"to"`
	Task     *task.Task       `json:"task"`
	Priority float64          `json:"priority"`
	Timeout  time.Duration    `json:"timeout,omitempty"`
	SentAt   time.Time        `json:"sent_at"`
}

// Response returns a task result. RequestID echoes the correlation id of
// the originating Request.
type Response struct {
	ID        uuid.UUID        `json:"id"`
	RequestID uuid.UUID        `json:"request_id"`
	From      registry.AgentID `json:"from"`
	To        registry.AgentID `json:"to"`
	Result    *task.Result     `json:"result"`
	SentAt    time.Time        `json:"sent_at"`
}

// Broadcast fans a payload out to a scope of agents
type Broadcast struct {
	ID      uuid.UUID              `json:"id"`
	From    registry.AgentID       `json:"from"`
	Topic   string                 `json:"topic"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Scope   BroadcastScope         `json:"scope"`
	SentAt  time.Time              `json:"sent_at"`
}

// Alert reports a condition needing operator or monitor attention
type Alert struct {
	ID        uuid.UUID              `json:"id"`
	From      registry.AgentID       `json:"from"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// AgentHealth is the payload of a heartbeat envelope
type AgentHealth struct {
	Status      string  `json:"status"`
	CurrentTask string  `json:"current_task,omitempty"`
	Utilization float64 `json:"utilization"`
}

// Heartbeat is published periodically by every live agent
type Heartbeat struct {
	ID        uuid.UUID        `json:"id"`
	From      registry.AgentID `json:"from"`
	Health    AgentHealth      `json:"health"`
	Timestamp time.Time        `json:"timestamp"`
}

// Registration announces agent registry changes on the bus
type Registration struct {
	ID       uuid.UUID               `json:"id"`
	From     registry.AgentID        `json:"from"`
	Action   RegistrationAction      `json:"action"`
	Metadata *registry.AgentMetadata `json:"metadata,omitempty"`
	SentAt   time.Time               `json:"sent_at"`
}

// Escalation carries an issue up the hierarchy toward CECCA
type Escalation struct {
	ID        uuid.UUID        `json:"id"`
	From      registry.AgentID `json:"from"`
	To        registry.AgentID `json:"to"`
	Reason    string           `json:"reason"`
	TaskID    *uuid.UUID       `json:"task_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
