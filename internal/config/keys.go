package config

import (
	"slices"
	"strings"
)

// Key addresses a value inside a raw config map, e.g. "sync.debounceMs".
type Key []string

var reservedSegments = []string{"__proto__", "prototype", "constructor"}

// ParseKey splits a dotted key. Empty and reserved segments are rejected.
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	k := Key(strings.Split(raw, "."))
	for _, seg := range k {
		switch {
		case seg == "":
			return nil, &ConfigError{Message: "config path contains empty segment"}
		case slices.Contains(reservedSegments, seg):
			return nil, &ConfigError{Message: "config path contains blocked key: " + seg}
		}
	}
	return k, nil
}

func (k Key) String() string { return strings.Join(k, ".") }

// Lookup returns the value at k.
func (k Key) Lookup(root map[string]any) (any, bool) {
	var v any = root
	for _, seg := range k {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return v, true
}

// Assign stores v at k, creating parent maps and replacing non-map parents.
func (k Key) Assign(root map[string]any, v any) {
	parent := root
	for _, seg := range k[:len(k)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			parent[seg] = child
		}
		parent = child
	}
	parent[k[len(k)-1]] = v
}

// Remove deletes the value at k and reports whether it existed.
func (k Key) Remove(root map[string]any) bool {
	parent := root
	for _, seg := range k[:len(k)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			return false
		}
		parent = child
	}
	last := k[len(k)-1]
	_, ok := parent[last]
	delete(parent, last)
	return ok
}
