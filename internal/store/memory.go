package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It backs tests and single-process
// deployments; change notifications fire after the write completes, outside
// the store lock, matching the read-after-write-then-eventually-notify
// contract of the real backing store.
type Memory struct {
	mu     sync.RWMutex
	scopes map[Scope]map[string]string

	subMu  sync.Mutex
	nextID int
	subs   map[Scope]map[int]ChangeFunc
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		scopes: map[Scope]map[string]string{
			ScopeSync:  {},
			ScopeLocal: {},
		},
		subs: map[Scope]map[int]ChangeFunc{
			ScopeSync:  {},
			ScopeLocal: {},
		},
	}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, scope Scope, keys []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.scopes[scope][k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, scope Scope, entries map[string]string) error {
	var changes []Change

	m.mu.Lock()
	for k, v := range entries {
		old := m.scopes[scope][k]
		if old == v {
			continue
		}
		m.scopes[scope][k] = v
		changes = append(changes, Change{Scope: scope, Key: k, OldValue: old, NewValue: v})
	}
	m.mu.Unlock()

	m.notify(scope, changes)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, scope Scope, keys []string) error {
	var changes []Change

	m.mu.Lock()
	for _, k := range keys {
		old, ok := m.scopes[scope][k]
		if !ok {
			continue
		}
		delete(m.scopes[scope], k)
		changes = append(changes, Change{Scope: scope, Key: k, OldValue: old})
	}
	m.mu.Unlock()

	m.notify(scope, changes)
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(ctx context.Context, scope Scope) error {
	var changes []Change

	m.mu.Lock()
	for k, old := range m.scopes[scope] {
		changes = append(changes, Change{Scope: scope, Key: k, OldValue: old})
	}
	m.scopes[scope] = map[string]string{}
	m.mu.Unlock()

	m.notify(scope, changes)
	return nil
}

// Subscribe implements Store.
func (m *Memory) Subscribe(scope Scope, fn ChangeFunc) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[scope][id] = fn

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs[scope], id)
	}
}

func (m *Memory) notify(scope Scope, changes []Change) {
	if len(changes) == 0 {
		return
	}

	m.subMu.Lock()
	fns := make([]ChangeFunc, 0, len(m.subs[scope]))
	for _, fn := range m.subs[scope] {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		for _, ch := range changes {
			fn(ch)
		}
	}
}
