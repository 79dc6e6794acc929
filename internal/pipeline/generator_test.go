package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	generrors "github.com/stdg/reqs-builder/internal/errors"
	"github.com/stdg/reqs-builder/internal/logging"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

// project lays out a source/toc/templates tree under a temp dir.
func project(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"source/entities.yaml": `entities:
  - id: user
    name: User
    category: user-management
  - id: role
    name: Role
    category: user-management
  - id: order
    name: Order
    category: order-management
`,
		"source/roles.yaml": "roles:\n  - admin\n  - viewer\n",
		"toc/erds.yaml.njk": `erds:
{% for c in unique(pluck(source.entities, "category")) %}
  - category: {{ c }}
{% endfor %}
`,
		"templates/index.md.tmpl": `# Model
{{ range .toc.erds }}## {{ .category }}
{{ end }}Roles: {{ join .source.roles ", " }}
`,
		"templates/entity.njk": `---
pagination:
  data: source.entities
  alias: entity
permalink: "entities/{{ entity.id }}"
---
# {{ entity.name }}
`,
	})

	return Config{
		SourceDir:    filepath.Join(root, "source"),
		TocDir:       filepath.Join(root, "toc"),
		TemplateDir:  filepath.Join(root, "templates"),
		DocOutputDir: filepath.Join(root, "output", "docs"),
		TocOutputDir: filepath.Join(root, "output", "tocs"),
		Workers:      2,
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	cfg := project(t)

	result, err := NewGenerator(cfg, nil, nil).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.SourceKeys)
	assert.Equal(t, 1, result.TocKeys)
	assert.Equal(t, 2, result.Templates)
	assert.Equal(t, 4, result.Documents)

	index, err := os.ReadFile(filepath.Join(cfg.DocOutputDir, "index.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Model\n## user-management\n## order-management\nRoles: admin, viewer\n", string(index))

	for _, id := range []string{"user", "role", "order"} {
		assert.FileExists(t, filepath.Join(cfg.DocOutputDir, "entities", id+".md"))
	}
	assert.FileExists(t, filepath.Join(cfg.TocOutputDir, "erds.yaml"))
}

func TestGenerateIsIdempotent(t *testing.T) {
	cfg := project(t)
	gen := NewGenerator(cfg, nil, nil)

	_, err := gen.Generate(context.Background())
	require.NoError(t, err)
	first := snapshot(t, cfg.DocOutputDir)

	_, err = gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, snapshot(t, cfg.DocOutputDir))
}

func TestGenerateWithoutTocDir(t *testing.T) {
	cfg := project(t)
	require.NoError(t, os.RemoveAll(cfg.TocDir))
	require.NoError(t, os.Remove(filepath.Join(cfg.TemplateDir, "index.md.tmpl")))

	result, err := NewGenerator(cfg, nil, nil).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TocKeys)
	assert.Equal(t, 3, result.Documents)
}

func TestGenerateStageFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg Config)
		want   error
		stage  string
	}{
		{
			name:   "missing source",
			mutate: func(t *testing.T, cfg Config) { require.NoError(t, os.RemoveAll(cfg.SourceDir)) },
			want:   generrors.ErrDirectoryNotFound,
			stage:  "merge source data",
		},
		{
			name: "array conflict",
			mutate: func(t *testing.T, cfg Config) {
				writeFiles(t, cfg.SourceDir, map[string]string{"zz.yaml": "roles: [owner]\n"})
			},
			want:  generrors.ErrArrayMergeConflict,
			stage: "merge source data",
		},
		{
			name: "toc not an object",
			mutate: func(t *testing.T, cfg Config) {
				writeFiles(t, cfg.TocDir, map[string]string{"list.yaml.tmpl": "- a\n- b\n"})
			},
			want:  generrors.ErrInvalidTocFile,
			stage: "build toc",
		},
		{
			name: "template error",
			mutate: func(t *testing.T, cfg Config) {
				writeFiles(t, cfg.TemplateDir, map[string]string{"bad.md.tmpl": "{{ .source.missing.key }}"})
			},
			want:  generrors.ErrTemplateRenderError,
			stage: "expand templates",
		},
		{
			name:   "missing templates",
			mutate: func(t *testing.T, cfg Config) { require.NoError(t, os.RemoveAll(cfg.TemplateDir)) },
			want:   generrors.ErrDirectoryNotFound,
			stage:  "expand templates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := project(t)
			tt.mutate(t, cfg)

			_, err := NewGenerator(cfg, nil, nil).Generate(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.stage)
		})
	}
}

func TestGenerateFailureLeavesPreviousOutput(t *testing.T) {
	cfg := project(t)
	gen := NewGenerator(cfg, nil, nil)
	_, err := gen.Generate(context.Background())
	require.NoError(t, err)

	writeFiles(t, cfg.SourceDir, map[string]string{"zz.yaml": "roles: [owner]\n"})
	_, err = gen.Generate(context.Background())
	require.Error(t, err)

	assert.FileExists(t, filepath.Join(cfg.DocOutputDir, "index.md"))
}

func TestFailedRunIsLoggedOnce(t *testing.T) {
	cfg := project(t)
	writeFiles(t, cfg.SourceDir, map[string]string{"zz.yaml": "roles: [owner]\n"})

	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelDebug, Format: "json", Output: &buf})
	rec := newRecorder()
	q := NewQueue(NewGenerator(cfg, nil, logger), logger,
		WithErrorHandler(generrors.NewErrorHandler(logger, nil)),
		WithResultHook(rec.hook),
	)

	require.NoError(t, q.Request())
	waitRun(t, rec.done)
	q.Close()

	var reported int
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"level":"WARN"`) || strings.Contains(line, `"level":"ERROR"`) {
			reported++
			assert.Contains(t, line, "roles")
		}
	}
	assert.Equal(t, 1, reported, buf.String())
	assert.Contains(t, buf.String(), "Operation aborted")
}

func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		files[rel] = string(content)
		return nil
	})
	require.NoError(t, err)
	return files
}
