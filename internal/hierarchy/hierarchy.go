package hierarchy

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/AGENTHIVE/internal/registry"
)

// Hierarchy errors
var (
	ErrNoCECCA  = errors.New("hierarchy has no cecca agent")
	ErrNotFound = errors.New("agent not in hierarchy")
)

// maxEscalationHops bounds escalation-path walks; the tree is six layers
// deep so anything longer indicates a wiring defect.
const maxEscalationHops = 8

// Hierarchy owns the structural links between agents. Escalation targets
// and subordinate lists live here, outside the agent records, so removing
// an agent never dangles references held by another agent.
type Hierarchy struct {
	mu               sync.RWMutex
	registry         *registry.Registry
	escalationTarget map[registry.AgentID]registry.AgentID
	subordinates     map[registry.AgentID][]registry.AgentID
	layerMembers     map[registry.Layer][]registry.AgentID
	nextAgentNumber  int
}

// New creates an empty hierarchy over the given registry
func New(reg *registry.Registry) *Hierarchy {
	return &Hierarchy{
		registry:         reg,
		escalationTarget: make(map[registry.AgentID]registry.AgentID),
		subordinates:     make(map[registry.AgentID][]registry.AgentID),
		layerMembers:     make(map[registry.Layer][]registry.AgentID),
		nextAgentNumber:  1,
	}
}

// Populate creates the initial agent population sized from the target
// total, registers every agent, and wires the escalation tree.
func (h *Hierarchy) Populate(total int) error {
	dist := Distribution(total)

	for _, layer := range registry.Layers() {
		count := dist[layer]
		for i := 0; i < count; i++ {
			if _, err := h.CreateAgent(layer); err != nil {
				return fmt.Errorf("failed to create %s agent: %w", layer, err)
			}
		}
	}

	if err := h.wireEscalation(); err != nil {
		return err
	}

	log.Printf("[HIERARCHY] Populated %d agents across %d layers", h.registry.Count(), len(dist))
	return nil
}

// CreateAgent registers one new agent in the given layer with the layer's
// default capability set and resource profile.
func (h *Hierarchy) CreateAgent(layer registry.Layer) (*registry.AgentMetadata, error) {
	h.mu.Lock()
	number := h.nextAgentNumber
	h.nextAgentNumber++
	h.mu.Unlock()

	name := fmt.Sprintf("%s-Agent-%04d", layer, number)
	meta := &registry.AgentMetadata{
		ID:           registry.DeriveAgentID(name),
		Name:         name,
		Layer:        layer,
		Role:         LayerRole(layer),
		Capabilities: LayerCapabilities(layer),
		Version:      "1.0.0",
		Status:       registry.StatusActive,
		Health:       registry.HealthHealthy,
		Resources:    LayerResources(layer),
	}

	if err := h.registry.Register(meta); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.layerMembers[layer] = append(h.layerMembers[layer], meta.ID)
	h.mu.Unlock()

	return meta, nil
}

// Adopt records an externally registered agent in the hierarchy and wires
// its escalation target to the first agent of the parent layer.
func (h *Hierarchy) Adopt(meta *registry.AgentMetadata) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.layerMembers[meta.Layer] = append(h.layerMembers[meta.Layer], meta.ID)

	parent := parentLayer(meta.Layer)
	if parent == "" {
		return nil
	}
	parents := h.layerMembers[parent]
	if len(parents) == 0 {
		// No parent yet; escalation wired on next Populate/wireEscalation
		return nil
	}
	h.escalationTarget[meta.ID] = parents[0]
	h.subordinates[parents[0]] = append(h.subordinates[parents[0]], meta.ID)
	return nil
}

// Remove drops an agent from the hierarchy maps. Registry removal is the
// caller's responsibility.
func (h *Hierarchy) Remove(id registry.AgentID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if target, ok := h.escalationTarget[id]; ok {
		h.subordinates[target] = removeID(h.subordinates[target], id)
		delete(h.escalationTarget, id)
	}
	for _, sub := range h.subordinates[id] {
		delete(h.escalationTarget, sub)
	}
	delete(h.subordinates, id)
	for layer, members := range h.layerMembers {
		h.layerMembers[layer] = removeID(members, id)
	}
}

// EscalationTarget returns the parent-layer agent for id
func (h *Hierarchy) EscalationTarget(id registry.AgentID) (registry.AgentID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	target, ok := h.escalationTarget[id]
	return target, ok
}

// Subordinates returns the direct subordinates of id
func (h *Hierarchy) Subordinates(id registry.AgentID) []registry.AgentID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.subordinates[id]
	result := make([]registry.AgentID, len(subs))
	copy(result, subs)
	return result
}

// LayerMembers returns the agents of a layer in creation order
func (h *Hierarchy) LayerMembers(layer registry.Layer) []registry.AgentID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.layerMembers[layer]
	result := make([]registry.AgentID, len(members))
	copy(result, members)
	return result
}

// Root returns the apex agent (CECCA[0])
func (h *Hierarchy) Root() (registry.AgentID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cecca := h.layerMembers[registry.LayerCECCA]
	if len(cecca) == 0 {
		return registry.AgentID{}, ErrNoCECCA
	}
	return cecca[0], nil
}

// EscalationPath walks escalation targets from id to the root. Returns an
// error if the walk does not terminate within the hop bound, which would
// mean the escalation graph has a cycle.
func (h *Hierarchy) EscalationPath(id registry.AgentID) ([]registry.AgentID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var path []registry.AgentID
	current := id
	for hops := 0; hops < maxEscalationHops; hops++ {
		target, ok := h.escalationTarget[current]
		if !ok {
			return path, nil
		}
		path = append(path, target)
		current = target
	}
	return nil, fmt.Errorf("escalation path from %s exceeds %d hops", id, maxEscalationHops)
}

// wireEscalation points every non-CECCA agent at the first agent of its
// parent layer and records the reverse subordinate links.
func (h *Hierarchy) wireEscalation() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.layerMembers[registry.LayerCECCA]) == 0 {
		return ErrNoCECCA
	}

	layers := registry.Layers()
	for i := 1; i < len(layers); i++ {
		parents := h.layerMembers[layers[i-1]]
		if len(parents) == 0 {
			return fmt.Errorf("layer %s has no agents to escalate to", layers[i-1])
		}
		parent := parents[0]
		for _, child := range h.layerMembers[layers[i]] {
			h.escalationTarget[child] = parent
			h.subordinates[parent] = append(h.subordinates[parent], child)
		}
	}
	return nil
}

func parentLayer(layer registry.Layer) registry.Layer {
	layers := registry.Layers()
	for i := 1; i < len(layers); i++ {
		if layers[i] == layer {
			return layers[i-1]
		}
	}
	return ""
}

func removeID(ids []registry.AgentID, id registry.AgentID) []registry.AgentID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
