package renderer

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// BuiltinFuncs returns a fresh map of the helpers every Environment starts
// with. unique and pluck are what toc templates use to build groupings.
func BuiltinFuncs() Funcs {
	return Funcs{
		// Sequences
		"unique":  unique,
		"pluck":   pluck,
		"groupBy": groupBy,
		"sortBy":  sortBy,
		"where":   where,
		"join":    join,

		// Values
		"default": defaultValue,
		"title":   title,
		"indent":  indent,

		// Encoding
		"toYaml": toYAML,
		"toJson": toJSON,
	}
}

// toList converts any slice or array to []interface{}; nil and non-slices
// become an empty list.
func toList(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	if v == nil {
		return []interface{}{}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []interface{}{}
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// field reads key from a map element.
func field(item interface{}, key string) (interface{}, bool) {
	switch m := item.(type) {
	case map[string]interface{}:
		v, ok := m[key]
		return v, ok
	case map[interface{}]interface{}:
		v, ok := m[key]
		return v, ok
	default:
		return nil, false
	}
}

// unique removes duplicates, keeping the first occurrence of each value.
func unique(list interface{}) []interface{} {
	items := toList(list)
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		seen := false
		for _, kept := range out {
			if reflect.DeepEqual(kept, item) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, item)
		}
	}
	return out
}

// pluck projects a list of objects to the values of one field. Elements
// without the field are skipped.
func pluck(list interface{}, key string) []interface{} {
	items := toList(list)
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		if v, ok := field(item, key); ok {
			out = append(out, v)
		}
	}
	return out
}

// groupBy groups a list of objects by the value of key, in order of first
// appearance. Each group is {"key": value, "items": [...]}.
func groupBy(list interface{}, key string) []interface{} {
	var groups []map[string]interface{}
	for _, item := range toList(list) {
		value, ok := field(item, key)
		if !ok {
			continue
		}

		var group map[string]interface{}
		for _, g := range groups {
			if reflect.DeepEqual(g["key"], value) {
				group = g
				break
			}
		}
		if group == nil {
			group = map[string]interface{}{"key": value, "items": []interface{}{}}
			groups = append(groups, group)
		}
		group["items"] = append(group["items"].([]interface{}), item)
	}

	out := make([]interface{}, len(groups))
	for i, g := range groups {
		out[i] = g
	}
	return out
}

// sortBy returns a copy of list stably sorted by the string form of key.
func sortBy(list interface{}, key string) []interface{} {
	items := toList(list)
	out := make([]interface{}, len(items))
	copy(out, items)

	sort.SliceStable(out, func(i, j int) bool {
		a, _ := field(out[i], key)
		b, _ := field(out[j], key)
		return fmt.Sprint(a) < fmt.Sprint(b)
	})
	return out
}

// where keeps the objects whose key equals value.
func where(list interface{}, key string, value interface{}) []interface{} {
	items := toList(list)
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		if v, ok := field(item, key); ok && fmt.Sprint(v) == fmt.Sprint(value) {
			out = append(out, item)
		}
	}
	return out
}

func join(list interface{}, sep string) string {
	items := toList(list)
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprint(item)
	}
	return strings.Join(parts, sep)
}

// defaultValue returns value unless it is nil, empty or zero, in which case
// it returns def. The argument order suits pipelines: {{ .x | default "n/a" }}.
func defaultValue(def, value interface{}) interface{} {
	if value == nil {
		return def
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		if rv.Len() == 0 {
			return def
		}
	default:
		if rv.IsZero() {
			return def
		}
	}
	return value
}

func title(v interface{}) string {
	return cases.Title(language.Und).String(fmt.Sprint(v))
}

// indent prefixes every non-empty line of s with n spaces.
func indent(n int, s string) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

func toYAML(v interface{}) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func toJSON(v interface{}) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
