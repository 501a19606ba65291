// Package upsert applies path edits to JSON-like trees without mutating them.
// Every container on the edited path is shallow-copied; everything else is
// shared with the original tree, so callers can detect changes by identity.
package upsert

import (
	"fmt"
	"strconv"

	"github.com/example/fieldstore/internal/models"
)

// Set returns a copy of root with value stored at path.
func Set(root any, path []string, value any) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty upsert path", models.ErrValidation)
	}
	return set(root, path, value), nil
}

// SetMap is Set for trees whose root is an object.
func SetMap(root map[string]any, path []string, value any) (map[string]any, error) {
	var node any
	if root != nil {
		node = root
	}
	out, err := Set(node, path, value)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: path %v turns the root into %T", models.ErrValidation, path, out)
	}
	return m, nil
}

func set(node any, path []string, value any) any {
	key := path[0]
	rest := path[1:]

	switch n := node.(type) {
	case []any:
		if idx, ok := index(key); ok {
			size := len(n)
			if idx >= size {
				size = idx + 1
			}
			cp := make([]any, size)
			copy(cp, n)
			cp[idx] = child(n, idx, rest, value)
			return cp
		}
		// Non-index key on an array: promote the array to an object so the
		// key is kept.
		cp := make(map[string]any, len(n)+1)
		for i, v := range n {
			cp[strconv.Itoa(i)] = v
		}
		cp[key] = descend(cp[key], rest, value)
		return cp
	case map[string]any:
		cp := make(map[string]any, len(n)+1)
		for k, v := range n {
			cp[k] = v
		}
		cp[key] = descend(n[key], rest, value)
		return cp
	default:
		// Missing or scalar node: synthesise a container from the key shape.
		if idx, ok := index(key); ok {
			cp := make([]any, idx+1)
			cp[idx] = descend(nil, rest, value)
			return cp
		}
		return map[string]any{key: descend(nil, rest, value)}
	}
}

func child(arr []any, idx int, rest []string, value any) any {
	var existing any
	if idx < len(arr) {
		existing = arr[idx]
	}
	return descend(existing, rest, value)
}

func descend(existing any, rest []string, value any) any {
	if len(rest) == 0 {
		return value
	}
	return set(existing, rest, value)
}

// Delete returns a copy of root with the value at path removed. Removing a
// missing path returns root unchanged.
func Delete(root any, path []string) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty delete path", models.ErrValidation)
	}
	out, _ := del(root, path)
	return out, nil
}

// DeleteMap is Delete for trees whose root is an object.
func DeleteMap(root map[string]any, path []string) (map[string]any, error) {
	if root == nil {
		return nil, nil
	}
	out, err := Delete(root, path)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func del(node any, path []string) (any, bool) {
	key := path[0]
	rest := path[1:]

	switch n := node.(type) {
	case map[string]any:
		existing, ok := n[key]
		if !ok {
			return node, false
		}
		var replacement any
		if len(rest) > 0 {
			var changed bool
			replacement, changed = del(existing, rest)
			if !changed {
				return node, false
			}
		}
		cp := make(map[string]any, len(n))
		for k, v := range n {
			cp[k] = v
		}
		if len(rest) == 0 {
			delete(cp, key)
		} else {
			cp[key] = replacement
		}
		return cp, true
	case []any:
		idx, ok := index(key)
		if !ok || idx >= len(n) {
			return node, false
		}
		var replacement any
		if len(rest) > 0 {
			var changed bool
			replacement, changed = del(n[idx], rest)
			if !changed {
				return node, false
			}
		}
		cp := make([]any, len(n))
		copy(cp, n)
		cp[idx] = replacement
		return cp, true
	default:
		return node, false
	}
}

// Get reads the value at path, reporting whether it exists.
func Get(root any, path []string) (any, bool) {
	node := root
	for _, key := range path {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[key]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			idx, ok := index(key)
			if !ok || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// maxIndex bounds array growth; larger numeric segments are object keys.
const maxIndex = 1 << 16

// index parses a non-negative array index segment.
func index(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return 0, false
		}
	}
	if len(key) > 1 && key[0] == '0' {
		return 0, false
	}
	idx, err := strconv.Atoi(key)
	if err != nil || idx > maxIndex {
		return 0, false
	}
	return idx, true
}
