package toc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stdg/reqs-builder/internal/datatree"
	generrors "github.com/stdg/reqs-builder/internal/errors"
	"github.com/stdg/reqs-builder/internal/renderer"
)

var sampleSource = datatree.Tree{
	"entities": []interface{}{
		map[string]interface{}{"id": "user", "name": "User", "category": "user-management"},
		map[string]interface{}{"id": "role", "name": "Role", "category": "user-management"},
		map[string]interface{}{"id": "order", "name": "Order", "category": "order-management"},
	},
}

const erdsTemplate = `erds:
{% for category in unique(pluck(source.entities, "category")) %}
  - category: {{ category }}
    entities:
{% for e in source.entities %}{% if e.category == category %}
      - {{ e.id }}
{% endif %}{% endfor %}
{% endfor %}
`

const entitiesTemplate = `entities:
{{- range .source.entities }}
  - id: {{ .id }}
    title: {{ title .name }}
{{- end }}
`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func newBuilder() *Builder {
	return NewBuilder(renderer.DefaultEnvironment(), nil)
}

func validDir(t *testing.T) string {
	dir := filepath.Join(t.TempDir(), "toc")
	writeFiles(t, dir, map[string]string{
		"erds.yaml.njk":      erdsTemplate,
		"entities.yaml.tmpl": entitiesTemplate,
		"README.md":          "# not a toc template",
		"plain.yaml":         "ignored: true\n",
		"notes.md.njk":       "not data",
	})
	return dir
}

func TestBuildRendersAndMerges(t *testing.T) {
	result, err := newBuilder().Build(context.Background(), validDir(t), sampleSource, "")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"erds", "entities"}, datatree.Keys(result))

	erds, ok := result["erds"].([]interface{})
	require.True(t, ok)
	require.Len(t, erds, 2)

	first := erds[0].(map[string]interface{})
	assert.Equal(t, "user-management", first["category"])
	assert.Equal(t, []interface{}{"user", "role"}, first["entities"])

	entities, ok := result["entities"].([]interface{})
	require.True(t, ok)
	assert.Len(t, entities, 3)
	assert.Equal(t, "User", entities[0].(map[string]interface{})["title"])
}

func TestBuildGroupsMatchDistinctCategories(t *testing.T) {
	source := datatree.Tree{
		"entities": []interface{}{
			map[string]interface{}{"id": "a", "category": "x"},
			map[string]interface{}{"id": "b", "category": "y"},
			map[string]interface{}{"id": "c", "category": "x"},
		},
	}
	dir := filepath.Join(t.TempDir(), "toc")
	writeFiles(t, dir, map[string]string{
		"groups.yaml.tmpl": `groups:
{{- range groupBy .source.entities "category" }}
  - name: {{ .key }}
    size: {{ len .items }}
{{- end }}
`,
	})

	result, err := newBuilder().Build(context.Background(), dir, source, "")
	require.NoError(t, err)

	groups := result["groups"].([]interface{})
	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].(map[string]interface{})["size"])
	assert.Equal(t, 1, groups[1].(map[string]interface{})["size"])
}

func TestBuildMissingDirectory(t *testing.T) {
	result, err := newBuilder().Build(context.Background(), "/non/existent/dir", sampleSource, "")
	require.NoError(t, err)
	assert.Equal(t, datatree.Tree{}, result)
}

func TestBuildEmptyDirectory(t *testing.T) {
	result, err := newBuilder().Build(context.Background(), t.TempDir(), sampleSource, "")
	require.NoError(t, err)
	assert.Equal(t, datatree.Tree{}, result)
}

func TestBuildNotADirectory(t *testing.T) {
	dir := validDir(t)
	_, err := newBuilder().Build(context.Background(), filepath.Join(dir, "erds.yaml.njk"), sampleSource, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, generrors.ErrNotADirectory)
}

func TestBuildNonObjectOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "toc")
	writeFiles(t, dir, map[string]string{
		"list.yaml.njk": "{% for e in source.entities %}\n- {{ e.id }}\n{% endfor %}\n",
	})

	_, err := newBuilder().Build(context.Background(), dir, sampleSource, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, generrors.ErrInvalidTocFile)

	var ge *generrors.GenError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, filepath.Join(dir, "list.yaml.njk"), ge.Path)
}

func TestBuildUnparsableOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "toc")
	writeFiles(t, dir, map[string]string{
		"broken.yaml.tmpl": "key: [unclosed\n",
	})

	_, err := newBuilder().Build(context.Background(), dir, sampleSource, "")
	assert.ErrorIs(t, err, generrors.ErrInvalidTocFile)
}

func TestBuildArrayConflictBetweenTemplates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "toc")
	writeFiles(t, dir, map[string]string{
		"a.yaml.tmpl": "items: [1]\n",
		"b.yaml.tmpl": "items: [2]\n",
	})

	_, err := newBuilder().Build(context.Background(), dir, sampleSource, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, generrors.ErrArrayMergeConflict)
	assert.Contains(t, err.Error(), "b.yaml.tmpl")
}

func TestBuildTemplatesSeeOnlySource(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "toc")
	writeFiles(t, dir, map[string]string{
		"a.yaml.tmpl": "first: 1\n",
		"b.yaml.tmpl": "second: {{ .toc.first }}\n",
	})

	_, err := newBuilder().Build(context.Background(), dir, sampleSource, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, generrors.ErrTemplateRenderError)
}

func TestBuildWritesDebugOutput(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "output", "tocs")

	_, err := newBuilder().Build(context.Background(), validDir(t), sampleSource, outDir)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(outDir, "entities.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "id: user")

	assert.FileExists(t, filepath.Join(outDir, "erds.yaml"))
	assert.NoFileExists(t, filepath.Join(outDir, "notes.md"))
}

func TestBuildIsDeterministic(t *testing.T) {
	dir := validDir(t)
	first, err := newBuilder().Build(context.Background(), dir, sampleSource, "")
	require.NoError(t, err)
	second, err := newBuilder().Build(context.Background(), dir, sampleSource, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
