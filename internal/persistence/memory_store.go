package persistence

import (
	"sync"

	"github.com/volvoxlabs/weft/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of GraphStore and
// InstanceStore backed by maps. Instances are stored and returned as
// clones, so callers never share mutable state with the engine.
type InMemoryStore struct {
	mu        sync.RWMutex
	graphs    map[string]map[string]api.WorkflowGraph // name -> version -> graph
	instances map[string]*api.WorkflowInstance
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		graphs:    make(map[string]map[string]api.WorkflowGraph),
		instances: make(map[string]*api.WorkflowInstance),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ GraphStore = (*InMemoryStore)(nil)

var _ InstanceStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveGraph(g api.WorkflowGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.graphs[g.Name]
	if versions == nil {
		versions = make(map[string]api.WorkflowGraph)
		s.graphs[g.Name] = versions
	}
	if _, exists := versions[g.Version]; exists {
		return ErrGraphExists
	}
	versions[g.Version] = g
	return nil
}

func (s *InMemoryStore) GetGraph(name, version string) (api.WorkflowGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.graphs[name][version]
	if !ok {
		return api.WorkflowGraph{}, ErrGraphNotFound
	}
	return g, nil
}

func (s *InMemoryStore) LatestGraph(name string) (api.WorkflowGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.graphs[name]
	switch len(versions) {
	case 0:
		return api.WorkflowGraph{}, ErrGraphNotFound
	case 1:
		for _, g := range versions {
			return g, nil
		}
	}
	return api.WorkflowGraph{}, ErrAmbiguousVersion
}

func (s *InMemoryStore) ListGraphVersions(name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.graphs[name]
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	return out, nil
}

func (s *InMemoryStore) SaveInstance(inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *InMemoryStore) UpdateInstance(inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return ErrInstanceNotFound
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *InMemoryStore) GetInstance(id string) (*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

func (s *InMemoryStore) ListInstances(filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowInstance
	for _, inst := range s.instances {
		if filter.Graph != "" && inst.Graph != filter.Graph {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		result = append(result, inst.Clone())
	}
	return result, nil
}

func (s *InMemoryStore) DeleteInstance(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[id]; !ok {
		return ErrInstanceNotFound
	}
	delete(s.instances, id)
	return nil
}
