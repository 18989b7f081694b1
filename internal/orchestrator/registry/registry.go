// Package registry is the in-memory index of live instances by identifier
// and by port. It enforces identifier/port uniqueness (spec invariants 2
// and 3).
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/numdrassl/servermanager/internal/orchestrator/model"
)

// Registry holds two maps maintained atomically: serverId -> Instance and
// port -> serverId.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*model.Instance
	portIndex map[int]string
}

func New() *Registry {
	return &Registry{
		byID:      make(map[string]*model.Instance),
		portIndex: make(map[int]string),
	}
}

// Register adds instance to both maps, rejecting a duplicate id or port.
func (r *Registry) Register(inst *model.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[inst.ServerID]; exists {
		return fmt.Errorf("server already registered: %s", inst.ServerID)
	}
	if holder, exists := r.portIndex[inst.Port]; exists {
		return fmt.Errorf("port already in use: %d (by %s)", inst.Port, holder)
	}

	r.byID[inst.ServerID] = inst
	r.portIndex[inst.Port] = inst.ServerID
	return nil
}

// Unregister removes serverID from both maps, returning the removed
// instance or nil if it was not present.
func (r *Registry) Unregister(serverID string) *model.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID[serverID]
	if !ok {
		return nil
	}
	delete(r.byID, serverID)
	delete(r.portIndex, inst.Port)
	return inst
}

// Get returns the instance for serverID, or nil.
func (r *Registry) Get(serverID string) *model.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[serverID]
}

// GetByPort returns the instance bound to port, or nil.
func (r *Registry) GetByPort(port int) *model.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.portIndex[port]
	if !ok {
		return nil
	}
	return r.byID[id]
}

// Has reports whether serverID is registered.
func (r *Registry) Has(serverID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[serverID]
	return ok
}

// IsPortInUse reports whether port is currently registered to an instance.
func (r *Registry) IsPortInUse(port int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.portIndex[port]
	return ok
}

// All returns every registered instance.
func (r *Registry) All() []*model.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Instance, 0, len(r.byID))
	for _, inst := range r.byID {
		out = append(out, inst)
	}
	return out
}

// ByType returns every instance of the given type.
func (r *Registry) ByType(t model.InstanceType) []*model.Instance {
	return r.filter(func(i *model.Instance) bool { return i.Type == t })
}

// ByStatus returns every instance currently in the given status.
func (r *Registry) ByStatus(status model.Status) []*model.Instance {
	return r.filter(func(i *model.Instance) bool { return i.Status == status })
}

// Filter returns every instance for which predicate returns true.
func (r *Registry) Filter(predicate func(*model.Instance) bool) []*model.Instance {
	return r.filter(predicate)
}

func (r *Registry) filter(predicate func(*model.Instance) bool) []*model.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Instance
	for _, inst := range r.byID {
		if predicate(inst) {
			out = append(out, inst)
		}
	}
	return out
}

// Available returns running, non-full instances, optionally filtered by
// template name.
func (r *Registry) Available(templateName string) []*model.Instance {
	return r.filter(func(i *model.Instance) bool {
		if !i.IsAcceptingPlayers() {
			return false
		}
		if templateName == "" {
			return true
		}
		return i.Template != nil && i.Template.Name == templateName
	})
}

// FindAvailable selects the available instance with the fewest current
// players, ties broken by smallest serverId (a deterministic, documented
// rule — spec §4.5).
func (r *Registry) FindAvailable(templateName string) *model.Instance {
	candidates := r.Available(templateName)
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].PlayerCount() != candidates[j].PlayerCount() {
			return candidates[i].PlayerCount() < candidates[j].PlayerCount()
		}
		return candidates[i].ServerID < candidates[j].ServerID
	})
	return candidates[0]
}

// Stats is a snapshot of registry-wide totals.
type Stats struct {
	Total         int
	StaticCount   int
	DynamicCount  int
	RunningCount  int
	TotalPlayers  int
}

// Stats returns a Stats snapshot.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Stats
	for _, inst := range r.byID {
		s.Total++
		if inst.Type == model.Static {
			s.StaticCount++
		} else {
			s.DynamicCount++
		}
		if inst.Status == model.Running {
			s.RunningCount++
		}
		s.TotalPlayers += inst.PlayerCount()
	}
	return s
}
