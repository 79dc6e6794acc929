// Package datatree holds the value model shared by the data merger, the
// toc builder and the template expander.
//
// A Tree is a map[string]interface{} whose values are scalars, nested trees
// or []interface{} sequences. Parsers for every supported data format
// normalize their output into this shape, so merge rules and templates only
// ever see three container types. Trees are treated as immutable: Merge
// builds new maps and never writes into its inputs.
package datatree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tree is a parsed structured data document.
type Tree = map[string]interface{}

// Kind is the tagged-union view of a value used by the merge rules.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindSequence
	KindObject
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// KindOf classifies a normalized value.
func KindOf(v interface{}) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case map[string]interface{}:
		return KindObject
	case []interface{}:
		return KindSequence
	default:
		return KindScalar
	}
}

// Normalize converts decoder output into the canonical value model:
// maps with non-string keys get their keys formatted with %v, typed slices
// and maps become []interface{} and map[string]interface{}.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = Normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	default:
		return v
	}
}

// Lookup resolves a dotted path such as "source.entities" against root.
// Sequence elements can be addressed by index ("entities.0.id").
func Lookup(root interface{}, path string) (interface{}, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return root, true
	}

	current := root
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// Keys returns the keys of t in lexical order.
func Keys(t Tree) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty reports whether a sequence or object has no elements. Scalars and
// null are never empty in this sense.
func IsEmpty(v interface{}) bool {
	switch t := v.(type) {
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}
