package types

import "time"

// StatusReport is the response body of the query_status API
type StatusReport struct {
	LayerStats    map[string]int     `json:"layer_stats"`
	SLACompliance map[string]float64 `json:"sla_compliance"`
	HOOTLPhase    string             `json:"hootl_phase"`
	QueueDepth    int                `json:"queue_depth"`
	Timestamp     time.Time          `json:"timestamp"`
}

// SubmitTaskRequest is the request body for task submission
type SubmitTaskRequest struct {
	Name                 string                 `json:"name"`
	RequiredCapabilities []string               `json:"required_capabilities"`
	PriorityHint         float64                `json:"priority_hint,omitempty"`
	Parameters           map[string]interface{} `json:"parameters,omitempty"`
	Deadline             *time.Time             `json:"deadline,omitempty"`
	Dependencies         []string               `json:"dependencies,omitempty"`
	TargetAgent          string                 `json:"target_agent,omitempty"`
}

// SubmitTaskResponse returns the assigned task id
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
}

// RegisterAgentRequest is the request body for external agent registration
type RegisterAgentRequest struct {
	Name         string            `json:"name"`
	Layer        string            `json:"layer"`
	Role         string            `json:"role"`
	Capabilities []string          `json:"capabilities"`
	Version      string            `json:"version,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// RegisterAgentResponse returns the assigned agent id
type RegisterAgentResponse struct {
	AgentID string `json:"agent_id"`
}

// ErrorResponse is the uniform error body for the control API
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WSMessage is a frame pushed to websocket status subscribers
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WebSocket message type constants
const (
	WSTypeStateUpdate = "state_update"
	WSTypeAlert       = "alert"
	WSTypeViolation   = "sla_violation"
	WSTypeCycle       = "hootl_cycle"
)
