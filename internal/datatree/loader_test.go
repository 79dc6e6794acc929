package datatree

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	generrors "github.com/stdg/reqs-builder/internal/errors"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestMergeDirectoryMissing(t *testing.T) {
	_, err := MergeDirectory(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, generrors.ErrDirectoryNotFound)
}

func TestMergeDirectoryNotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"file.yaml": "a: 1\n"})

	_, err := MergeDirectory(filepath.Join(dir, "file.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, generrors.ErrNotADirectory)
}

func TestMergeDirectoryEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"README.md": "# not data\n"})

	tree, err := MergeDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, Tree{}, tree)
}

func TestMergeDirectoryLexicalOrderDecidesScalarWinner(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"10-overrides.yaml": "env: production\n",
		"00-defaults.yaml":  "env: development\nport: 8080\n",
	})

	tree, err := MergeDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, "production", tree["env"])
	assert.Equal(t, 8080, tree["port"])

	// Renaming changes the sort order and therefore the winner.
	require.NoError(t, os.Rename(filepath.Join(dir, "00-defaults.yaml"), filepath.Join(dir, "20-defaults.yaml")))

	tree, err = MergeDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, "development", tree["env"])
}

func TestMergeDirectoryIgnoresCreationOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	for _, name := range []string{"a.yaml", "b.yaml", "c.yaml"} {
		writeFiles(t, first, map[string]string{name: "winner: " + name + "\n"})
	}
	for _, name := range []string{"c.yaml", "a.yaml", "b.yaml"} {
		writeFiles(t, second, map[string]string{name: "winner: " + name + "\n"})
	}

	one, err := MergeDirectory(first)
	require.NoError(t, err)
	two, err := MergeDirectory(second)
	require.NoError(t, err)

	assert.Equal(t, one, two)
	assert.Equal(t, "c.yaml", one["winner"])
}

func TestMergeDirectoryArrayConflict(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.yaml": "arr: [1, 2]\n",
		"b.yaml": "arr: [3]\n",
	})

	_, err := MergeDirectory(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, generrors.ErrArrayMergeConflict)

	var ge *generrors.GenError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "arr", ge.KeyPath)
	assert.Equal(t, filepath.Join(dir, "b.yaml"), ge.Path)
}

func TestMergeDirectoryEmptyArrayThenValues(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.yaml": "arr: []\n",
		"b.yaml": "arr: [1, 2]\n",
	})

	tree, err := MergeDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1, 2}, tree["arr"])
}

func TestMergeDirectoryRejectsNonObjects(t *testing.T) {
	tests := map[string]string{
		"scalar.yaml": "just a string\n",
		"list.yaml":   "- 1\n- 2\n",
		"null.yaml":   "",
		"list.json":   "[1, 2]",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{name: content})

			_, err := MergeDirectory(dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, generrors.ErrInvalidDataFile)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestMergeDirectoryMalformedFile(t *testing.T) {
	for name, content := range map[string]string{
		"broken.yaml":   "a: [unclosed\n",
		"trailing.json": `{"a": 1} junk`,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{name: content})

			_, err := MergeDirectory(dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, generrors.ErrInvalidDataFile)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestMergeDirectoryMixedFormats(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"00-project.toml": "[project]\nname = \"shop\"\n",
		"10-meta.json":    `{"project": {"version": "1.0"}, "tags": ["a"]}`,
		"20-owner.yml":    "project:\n  owner: alice\n",
		"notes.txt":       "ignored",
	})

	tree, err := MergeDirectory(dir)
	require.NoError(t, err)

	project, ok := tree["project"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "shop", project["name"])
	assert.Equal(t, "1.0", project["version"])
	assert.Equal(t, "alice", project["owner"])
	assert.Equal(t, []interface{}{"a"}, tree["tags"])
}

func TestMergeDirectorySkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.yaml":        "top: 1\n",
		"nested/b.yaml": "nested: 1\n",
	})

	tree, err := MergeDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, Tree{"top": 1}, tree)
}

func TestEntitiesAndRolesScenario(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"entities.yaml": "entities:\n  - id: user\n    name: User\n    category: user-management\n",
		"roles.yaml":    "roles:\n  - id: admin\n",
	})

	tree, err := MergeDirectory(dir)
	require.NoError(t, err)
	require.Len(t, tree["entities"], 1)
	require.Len(t, tree["roles"], 1)

	// A second non-empty definition of the shared key is a conflict.
	writeFiles(t, dir, map[string]string{
		"roles.yaml": "entities:\n  - id: role\n",
	})
	_, err = MergeDirectory(dir)
	assert.ErrorIs(t, err, generrors.ErrArrayMergeConflict)
}
