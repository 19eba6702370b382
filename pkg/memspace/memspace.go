// Package memspace owns the resolver's shared-instance cache: one record per
// section name with lifecycle state tracking. No sharing-policy logic lives
// here; policy branching belongs to the instance graph builder, which
// consults this store as a pure key-value lifecycle map.
package memspace

import "sort"

// State is the lifecycle state of an instance record.
type State int

const (
	// Unresolved means no construction has happened for the section.
	Unresolved State = iota

	// Resolving means the section is being constructed on the active call
	// stack; re-entering it signals a cycle.
	Resolving

	// Resolved means a live object is cached for the section.
	Resolved

	// Evicted means a previously resolved object was dropped; the next
	// resolution rebuilds from scratch.
	Evicted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Resolving:
		return "RESOLVING"
	case Resolved:
		return "RESOLVED"
	case Evicted:
		return "EVICTED"
	default:
		return "UNRESOLVED"
	}
}

type record struct {
	state State
	value any
}

// Manager is the instance record store keyed by section name. At most one
// record per section name exists at a time.
type Manager struct {
	records map[string]*record
}

// New creates an empty manager.
func New() *Manager {
	return &Manager{records: make(map[string]*record)}
}

// State returns the record state for name; unknown names are Unresolved.
func (m *Manager) State(name string) State {
	if r, ok := m.records[name]; ok {
		return r.state
	}
	return Unresolved
}

// Get returns the cached object for name when its record is Resolved.
func (m *Manager) Get(name string) (any, bool) {
	r, ok := m.records[name]
	if !ok || r.state != Resolved {
		return nil, false
	}
	return r.value, true
}

// MarkResolving flags name as under construction.
func (m *Manager) MarkResolving(name string) {
	m.records[name] = &record{state: Resolving}
}

// Put stores a constructed object and marks its record Resolved.
func (m *Manager) Put(name string, value any) {
	m.records[name] = &record{state: Resolved, value: value}
}

// Evict drops the cached object for name, returning what was stored. The
// record transitions to Evicted, which behaves as Unresolved for lookups.
func (m *Manager) Evict(name string) (any, bool) {
	r, ok := m.records[name]
	if !ok || r.state != Resolved {
		delete(m.records, name)
		return nil, false
	}
	value := r.value
	m.records[name] = &record{state: Evicted}
	return value, true
}

// Release returns name to Unresolved, used when construction fails while the
// record is marked Resolving.
func (m *Manager) Release(name string) {
	delete(m.records, name)
}

// Clear drops every record.
func (m *Manager) Clear() {
	m.records = make(map[string]*record)
}

// Len returns the number of records in Resolved state.
func (m *Manager) Len() int {
	n := 0
	for _, r := range m.records {
		if r.state == Resolved {
			n++
		}
	}
	return n
}

// Names returns the sorted section names with Resolved records.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.records))
	for name, r := range m.records {
		if r.state == Resolved {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
