// Package settings implements hierarchical key/value configuration with
// parent-chain override semantics.
//
// A Settings node holds its own key/value table plus an optional parent
// reference. Lookup walks self-then-parent, so a child node shadows its
// parent for any key it defines locally. Writes always land on the node
// they are called on, never on an ancestor.
//
// The parent link is data, not type hierarchy: nodes are constructed
// bottom-up (session, then block, then trial) and the link is never
// mutated afterwards, so cycles are impossible by construction.
//
// Lookups are never cached. A session-level setting changed after block
// or trial creation is visible to every descendant on the next Get.
package settings

import (
	"fmt"
)

// Settings is one node in a parent-chained configuration hierarchy.
//
// Thread-safety: Settings is NOT safe for concurrent mutation. All
// reads and writes are expected to happen on the foreground control
// goroutine; snapshots handed to background writers must be copied
// first (see Flatten).
type Settings struct {
	values map[string]any
	parent *Settings
}

// New creates an empty root node with no parent.
func New() *Settings {
	return &Settings{values: make(map[string]any)}
}

// NewChild creates an empty node whose lookups fall through to parent.
// A nil parent is equivalent to New().
func NewChild(parent *Settings) *Settings {
	return &Settings{values: make(map[string]any), parent: parent}
}

// FromMap creates a root node seeded with the given values.
// The map is copied; the caller's map is not retained.
func FromMap(m map[string]any) *Settings {
	s := New()
	for k, v := range m {
		s.values[k] = v
	}
	return s
}

// KeyNotFoundError reports a key absent from a node and its entire
// parent chain.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("settings key %q not found in node or any parent", e.Key)
}

// Parent returns the node's parent, or nil for a root node.
func (s *Settings) Parent() *Settings {
	return s.parent
}

// Set writes a value on this node. It never writes through to a parent:
// setting a key that exists on an ancestor creates a local shadow.
func (s *Settings) Set(key string, value any) {
	s.values[key] = value
}

// Get resolves key against this node, then the parent chain.
// Returns a *KeyNotFoundError if no node in the chain defines the key.
func (s *Settings) Get(key string) (any, error) {
	for node := s; node != nil; node = node.parent {
		if v, ok := node.values[key]; ok {
			return v, nil
		}
	}
	return nil, &KeyNotFoundError{Key: key}
}

// MustGet resolves key and panics if it is absent. For keys the caller
// has already declared or validated; prefer Get elsewhere.
func (s *Settings) MustGet(key string) any {
	v, err := s.Get(key)
	if err != nil {
		panic(err)
	}
	return v
}

// Has reports whether key resolves anywhere in the chain.
func (s *Settings) Has(key string) bool {
	_, err := s.Get(key)
	return err == nil
}

// HasLocal reports whether key is defined on this node itself,
// ignoring the parent chain.
func (s *Settings) HasLocal(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Delete removes a local definition of key, exposing any parent value.
// Deleting a key this node does not define is a no-op.
func (s *Settings) Delete(key string) {
	delete(s.values, key)
}

// Keys returns the keys defined locally on this node.
// Order is unspecified; callers needing determinism must sort.
func (s *Settings) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// GetString resolves key and asserts it is a string.
func (s *Settings) GetString(key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("settings key %q: expected string, got %T", key, v)
	}
	return str, nil
}

// GetInt resolves key and asserts it is an integer.
// YAML decoding produces int; JSON decoding produces float64 with an
// integral value. Both are accepted.
func (s *Settings) GetInt(key string) (int, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
		return 0, fmt.Errorf("settings key %q: %v is not an integer", key, n)
	default:
		return 0, fmt.Errorf("settings key %q: expected int, got %T", key, v)
	}
}

// GetFloat resolves key and asserts it is numeric.
func (s *Settings) GetFloat(key string) (float64, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("settings key %q: expected number, got %T", key, v)
	}
}

// GetBool resolves key and asserts it is a boolean.
func (s *Settings) GetBool(key string) (bool, error) {
	v, err := s.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("settings key %q: expected bool, got %T", key, v)
	}
	return b, nil
}

// Flatten returns a plain map of every key visible from this node with
// overrides applied: parent values first, locals shadowing them.
//
// The result is a defensive copy suitable for handing to a background
// write job; mutating it does not affect the node.
func (s *Settings) Flatten() map[string]any {
	// Walk root-first so nearer nodes overwrite farther ones.
	chain := make([]*Settings, 0, 4)
	for node := s; node != nil; node = node.parent {
		chain = append(chain, node)
	}
	out := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].values {
			out[k] = v
		}
	}
	return out
}
