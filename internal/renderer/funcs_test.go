package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnique(t *testing.T) {
	assert.Equal(t, []interface{}{"b", "a", "c"}, unique([]interface{}{"b", "a", "b", "c", "a"}))
	assert.Equal(t, []interface{}{1, 2}, unique([]int{1, 2, 1}))
	assert.Equal(t, []interface{}{}, unique(nil))
	assert.Equal(t, []interface{}{}, unique("not a list"))

	objects := []interface{}{
		map[string]interface{}{"id": 1},
		map[string]interface{}{"id": 1},
	}
	assert.Len(t, unique(objects), 1)
}

func TestPluck(t *testing.T) {
	entities := []interface{}{
		map[string]interface{}{"id": "user", "category": "auth"},
		map[string]interface{}{"id": "note"},
		"scalar",
		map[string]interface{}{"id": "role", "category": "auth"},
	}

	assert.Equal(t, []interface{}{"auth", "auth"}, pluck(entities, "category"))
	assert.Equal(t, []interface{}{"user", "note", "role"}, pluck(entities, "id"))
}

func TestGroupBy(t *testing.T) {
	entities := []interface{}{
		map[string]interface{}{"id": "user", "category": "user-management"},
		map[string]interface{}{"id": "order", "category": "order-management"},
		map[string]interface{}{"id": "role", "category": "user-management"},
	}

	groups := groupBy(entities, "category")
	require.Len(t, groups, 2)

	first := groups[0].(map[string]interface{})
	assert.Equal(t, "user-management", first["key"])
	assert.Len(t, first["items"], 2)

	second := groups[1].(map[string]interface{})
	assert.Equal(t, "order-management", second["key"])
	assert.Len(t, second["items"], 1)
}

func TestSortByAndWhere(t *testing.T) {
	entities := []interface{}{
		map[string]interface{}{"id": "c", "rank": 2},
		map[string]interface{}{"id": "a", "rank": 1},
		map[string]interface{}{"id": "b", "rank": 2},
	}

	sorted := sortBy(entities, "id")
	assert.Equal(t, []interface{}{"a", "b", "c"}, pluck(sorted, "id"))
	assert.Equal(t, []interface{}{"c", "a", "b"}, pluck(entities, "id"))

	assert.Equal(t, []interface{}{"c", "b"}, pluck(where(entities, "rank", 2), "id"))
	assert.Equal(t, []interface{}{"c", "b"}, pluck(where(entities, "rank", "2"), "id"))
}

func TestDefaultValue(t *testing.T) {
	assert.Equal(t, "n/a", defaultValue("n/a", nil))
	assert.Equal(t, "n/a", defaultValue("n/a", ""))
	assert.Equal(t, "n/a", defaultValue("n/a", []interface{}{}))
	assert.Equal(t, "n/a", defaultValue("n/a", 0))
	assert.Equal(t, "set", defaultValue("n/a", "set"))
	assert.Equal(t, true, defaultValue(false, true))
}

func TestStringHelpers(t *testing.T) {
	assert.Equal(t, "User Management", title("user management"))
	assert.Equal(t, "a, b", join([]interface{}{"a", "b"}, ", "))
	assert.Equal(t, "  a\n\n  b", indent(2, "a\n\nb"))
}

func TestEncodingHelpers(t *testing.T) {
	y, err := toYAML(map[string]interface{}{"id": "user"})
	require.NoError(t, err)
	assert.Equal(t, "id: user", y)

	j, err := toJSON([]interface{}{"a", 1})
	require.NoError(t, err)
	assert.Equal(t, `["a",1]`, j)
}
