package persistence

// Persistence bundles the stores an engine needs. The zero value is not
// usable; construct with concrete stores (memory, SQLite, Redis).
type Persistence struct {
	Graphs    GraphStore
	Instances InstanceStore
	Events    EventStore
}
