package registry

import (
	"time"

	"github.com/google/uuid"
)

// AgentID is the stable 128-bit identifier of an agent
type AgentID = uuid.UUID

// agentNamespace seeds deterministic id derivation from agent names
var agentNamespace = uuid.MustParse("7b0e8d2a-4c61-4f59-9a37-d1c2a8f0b5e4")

// DeriveAgentID returns the deterministic id for an agent name.
// The same name always yields the same id.
func DeriveAgentID(name string) AgentID {
	return uuid.NewSHA1(agentNamespace, []byte(name))
}

// Layer is the structural tier of an agent in the hierarchy
type Layer string

const (
	LayerCECCA      Layer = "cecca"
	LayerBoard      Layer = "board"
	LayerExecutive  Layer = "executive"
	LayerStackChief Layer = "stack_chief"
	LayerSpecialist Layer = "specialist"
	LayerMicro      Layer = "micro"
)

// Layers lists all layers top-down
func Layers() []Layer {
	return []Layer{LayerCECCA, LayerBoard, LayerExecutive, LayerStackChief, LayerSpecialist, LayerMicro}
}

// ParseLayer maps a string to a Layer, defaulting to Micro
func ParseLayer(s string) Layer {
	switch Layer(s) {
	case LayerCECCA, LayerBoard, LayerExecutive, LayerStackChief, LayerSpecialist, LayerMicro:
		return Layer(s)
	}
	return LayerMicro
}

// Role is the functional classification of an agent, orthogonal to layer
type Role string

const (
	RoleExecutive   Role = "executive"
	RoleBoard       Role = "board"
	RoleSpecialized Role = "specialized"
	RoleWorker      Role = "worker"
	RoleMonitor     Role = "monitor"
)

// ParseRole maps a string to a Role, defaulting to Worker
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleExecutive, RoleBoard, RoleSpecialized, RoleWorker, RoleMonitor:
		return Role(s)
	}
	return RoleWorker
}

// AgentStatus is the registration status of an agent
type AgentStatus string

const (
	StatusRegistered   AgentStatus = "registered"
	StatusActive       AgentStatus = "active"
	StatusInactive     AgentStatus = "inactive"
	StatusDeregistered AgentStatus = "deregistered"
)

// HealthStatus is the observed health of an agent
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// ResourceRequirements describes the resources an agent needs
type ResourceRequirements struct {
	CPUCores int    `json:"cpu_cores"`
	MemoryMB uint64 `json:"memory_mb"`
}

// AgentMetadata is the registry record for an agent.
// Layer and Role are immutable after registration.
type AgentMetadata struct {
	ID           AgentID              `json:"id"`
	Name         string               `json:"name"`
	Layer        Layer                `json:"layer"`
	Role         Role                 `json:"role"`
	Capabilities []string             `json:"capabilities"`
	Version      string               `json:"version"`
	Status       AgentStatus          `json:"status"`
	Health       HealthStatus         `json:"health"`
	Resources    ResourceRequirements `json:"resources"`
	Tags         map[string]string    `json:"tags,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	LastUpdated  time.Time            `json:"last_updated"`
}

// HasCapability reports whether the agent advertises the capability
func (m *AgentMetadata) HasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether the agent advertises every capability in caps
func (m *AgentMetadata) HasAllCapabilities(caps []string) bool {
	for _, c := range caps {
		if !m.HasCapability(c) {
			return false
		}
	}
	return true
}
