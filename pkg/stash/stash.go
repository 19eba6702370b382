// Package stash persists resolved plain-settings sections as JSON documents
// keyed by section name, so repeated runs can skip re-resolving expensive
// sections. The SQLite implementation is the durable store; MapStash backs
// tests.
package stash

import (
	"context"
	"sort"
)

// Stash is a keyed persistence store for section settings data.
type Stash interface {
	// Load returns the stored data for name; the second result is false
	// when nothing is stored.
	Load(ctx context.Context, name string) (map[string]any, bool, error)

	// Dump stores data under name, replacing any prior value.
	Dump(ctx context.Context, name string, data map[string]any) error

	// Delete removes the value stored under name, if any.
	Delete(ctx context.Context, name string) error

	// Keys returns the stored names, sorted.
	Keys(ctx context.Context) ([]string, error)

	// Exists reports whether a value is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Clear removes every stored value.
	Clear(ctx context.Context) error
}

// MapStash is an in-memory Stash.
type MapStash struct {
	data map[string]map[string]any
}

// NewMapStash creates an empty in-memory stash.
func NewMapStash() *MapStash {
	return &MapStash{data: make(map[string]map[string]any)}
}

// Load implements Stash.
func (m *MapStash) Load(_ context.Context, name string) (map[string]any, bool, error) {
	v, ok := m.data[name]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]any, len(v))
	for k, e := range v {
		out[k] = e
	}
	return out, true, nil
}

// Dump implements Stash.
func (m *MapStash) Dump(_ context.Context, name string, data map[string]any) error {
	stored := make(map[string]any, len(data))
	for k, v := range data {
		stored[k] = v
	}
	m.data[name] = stored
	return nil
}

// Delete implements Stash.
func (m *MapStash) Delete(_ context.Context, name string) error {
	delete(m.data, name)
	return nil
}

// Keys implements Stash.
func (m *MapStash) Keys(_ context.Context) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists implements Stash.
func (m *MapStash) Exists(_ context.Context, name string) (bool, error) {
	_, ok := m.data[name]
	return ok, nil
}

// Clear implements Stash.
func (m *MapStash) Clear(_ context.Context) error {
	m.data = make(map[string]map[string]any)
	return nil
}
