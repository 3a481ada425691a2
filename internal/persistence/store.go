package persistence

import (
	"errors"

	"github.com/volvoxlabs/weft/pkg/api"
)

var (
	// ErrGraphNotFound is returned when a graph name+version is not stored.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrGraphExists is returned when saving a graph whose name+version is
	// already published. Published graphs are immutable.
	ErrGraphExists = errors.New("graph version already published")

	// ErrAmbiguousVersion is returned by LatestGraph when more than one
	// version of the graph is published and the caller did not pick one.
	ErrAmbiguousVersion = errors.New("multiple graph versions published")

	// ErrInstanceNotFound is returned when a run instance is not found.
	ErrInstanceNotFound = errors.New("instance not found")
)

// GraphStore handles storage of published workflow graphs, keyed by
// name+version.
type GraphStore interface {
	SaveGraph(g api.WorkflowGraph) error
	GetGraph(name, version string) (api.WorkflowGraph, error)
	// LatestGraph returns the graph if exactly one version is published.
	// Errors with ErrAmbiguousVersion when several are.
	LatestGraph(name string) (api.WorkflowGraph, error)
	ListGraphVersions(name string) ([]string, error)
}

// InstanceFilter is used to select run instances from the store.
// Empty string / zero status mean "no filter" for that field.
type InstanceFilter struct {
	Graph  string
	Status api.Status
}

// InstanceStore handles storage of run instances.
type InstanceStore interface {
	SaveInstance(inst *api.WorkflowInstance) error
	UpdateInstance(inst *api.WorkflowInstance) error
	GetInstance(id string) (*api.WorkflowInstance, error)
	ListInstances(filter InstanceFilter) ([]*api.WorkflowInstance, error)
	DeleteInstance(id string) error
}
