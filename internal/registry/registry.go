package registry

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

// Registry errors
var (
	ErrDuplicateID = errors.New("agent id already registered")
	ErrNotFound    = errors.New("agent not found")
)

// Registry is the catalog of agent metadata, indexed by id, capability,
// role and layer. All indices are updated together under one lock so they
// stay consistent with the primary map at every observable point.
type Registry struct {
	mu           sync.RWMutex
	agents       map[AgentID]*AgentMetadata
	byCapability map[string][]AgentID
	byRole       map[Role][]AgentID
	byLayer      map[Layer][]AgentID
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		agents:       make(map[AgentID]*AgentMetadata),
		byCapability: make(map[string][]AgentID),
		byRole:       make(map[Role][]AgentID),
		byLayer:      make(map[Layer][]AgentID),
	}
}

// Register inserts agent metadata. Returns ErrDuplicateID if the id exists.
// The capabilities set must be non-empty.
func (r *Registry) Register(meta *AgentMetadata) error {
	if len(meta.Capabilities) == 0 {
		return errors.New("agent capabilities must be non-empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[meta.ID]; exists {
		return ErrDuplicateID
	}

	now := time.Now()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.LastUpdated = now
	if meta.Status == "" {
		meta.Status = StatusRegistered
	}
	if meta.Health == "" {
		meta.Health = HealthUnknown
	}

	r.agents[meta.ID] = meta
	for _, cap := range meta.Capabilities {
		r.byCapability[cap] = append(r.byCapability[cap], meta.ID)
	}
	r.byRole[meta.Role] = append(r.byRole[meta.Role], meta.ID)
	r.byLayer[meta.Layer] = append(r.byLayer[meta.Layer], meta.ID)

	return nil
}

// Deregister removes an agent and all of its index entries
func (r *Registry) Deregister(id AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, exists := r.agents[id]
	if !exists {
		return ErrNotFound
	}

	delete(r.agents, id)
	for _, cap := range meta.Capabilities {
		r.byCapability[cap] = removeID(r.byCapability[cap], id)
		if len(r.byCapability[cap]) == 0 {
			delete(r.byCapability, cap)
		}
	}
	r.byRole[meta.Role] = removeID(r.byRole[meta.Role], id)
	if len(r.byRole[meta.Role]) == 0 {
		delete(r.byRole, meta.Role)
	}
	r.byLayer[meta.Layer] = removeID(r.byLayer[meta.Layer], id)
	if len(r.byLayer[meta.Layer]) == 0 {
		delete(r.byLayer, meta.Layer)
	}

	return nil
}

// Lookup returns a copy of the metadata for id
func (r *Registry) Lookup(id AgentID) (*AgentMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, exists := r.agents[id]
	if !exists {
		return nil, ErrNotFound
	}
	clone := *meta
	return &clone, nil
}

// FindByCapability returns all agents advertising the capability,
// ordered by name for stable results
func (r *Registry) FindByCapability(cap string) []*AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byCapability[cap])
}

// FindByRole returns all agents with the given role
func (r *Registry) FindByRole(role Role) []*AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byRole[role])
}

// FindByLayer returns all agents in the given layer
func (r *Registry) FindByLayer(layer Layer) []*AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byLayer[layer])
}

// FindCapable returns Active agents whose capability set covers caps
func (r *Registry) FindCapable(caps []string) []*AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*AgentMetadata
	for _, meta := range r.agents {
		if meta.Status != StatusActive {
			continue
		}
		if meta.HasAllCapabilities(caps) {
			clone := *meta
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// UpdateHealth sets the health status of an agent
func (r *Registry) UpdateHealth(id AgentID, health HealthStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, exists := r.agents[id]
	if !exists {
		return ErrNotFound
	}
	meta.Health = health
	meta.LastUpdated = time.Now()
	return nil
}

// UpdateStatus sets the registration status of an agent
func (r *Registry) UpdateStatus(id AgentID, status AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, exists := r.agents[id]
	if !exists {
		return ErrNotFound
	}
	if meta.Status != status {
		log.Printf("[REGISTRY] Agent %s status %s -> %s", meta.Name, meta.Status, status)
	}
	meta.Status = status
	meta.LastUpdated = time.Now()
	return nil
}

// Count returns the number of registered agents
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CountByStatus returns the number of agents with the given status
func (r *Registry) CountByStatus(status AgentStatus) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, meta := range r.agents {
		if meta.Status == status {
			count++
		}
	}
	return count
}

// LayerStats returns the agent count per layer
func (r *Registry) LayerStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]int)
	for layer, ids := range r.byLayer {
		stats[string(layer)] = len(ids)
	}
	return stats
}

// All returns copies of every registered agent's metadata
func (r *Registry) All() []*AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*AgentMetadata, 0, len(r.agents))
	for _, meta := range r.agents {
		clone := *meta
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// MarkStale downgrades agents whose last update is older than threshold.
// Returns the ids that were downgraded.
func (r *Registry) MarkStale(threshold time.Duration) []AgentID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []AgentID
	cutoff := time.Now().Add(-threshold)
	for id, meta := range r.agents {
		if meta.Status == StatusActive && meta.LastUpdated.Before(cutoff) {
			meta.Health = HealthUnhealthy
			stale = append(stale, id)
		}
	}
	return stale
}

// collect copies metadata for ids, ordered by name
func (r *Registry) collect(ids []AgentID) []*AgentMetadata {
	result := make([]*AgentMetadata, 0, len(ids))
	for _, id := range ids {
		if meta, ok := r.agents[id]; ok {
			clone := *meta
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func removeID(ids []AgentID, id AgentID) []AgentID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
