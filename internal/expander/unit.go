package expander

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stdg/reqs-builder/internal/datatree"
	"github.com/stdg/reqs-builder/internal/renderer"
)

const frontMatterDelimiter = "---"

// Pagination asks for one output document per element (or chunk of Size
// elements) of the sequence found at the dotted path Data.
type Pagination struct {
	Data  string `yaml:"data"`
	Alias string `yaml:"alias"`
	Size  int    `yaml:"size"`
}

// FrontMatter is the optional YAML header of a document template.
type FrontMatter struct {
	Permalink  string                 `yaml:"permalink"`
	Pagination *Pagination            `yaml:"pagination"`
	Data       map[string]interface{} `yaml:",inline"`
}

// Unit is one discovered document template.
type Unit struct {
	Path        string // absolute or caller-relative path of the template file
	RelPath     string // slash-separated path below the template directory
	Dialect     renderer.Dialect
	Identity    string // default output path, slash-separated
	FrontMatter FrontMatter
	Body        string
}

// splitFrontMatter separates a leading "---" delimited YAML block from the
// template body. Content without a header is returned unchanged.
func splitFrontMatter(content []byte) (FrontMatter, string, error) {
	var fm FrontMatter

	first, rest, ok := cutLine(content)
	if !ok || string(bytes.TrimRight(first, " \t\r")) != frontMatterDelimiter {
		return fm, string(content), nil
	}

	var header bytes.Buffer
	for {
		line, remaining, found := cutLine(rest)
		if string(bytes.TrimRight(line, " \t\r")) == frontMatterDelimiter {
			rest = remaining
			break
		}
		if !found {
			return fm, "", fmt.Errorf("front matter is not terminated by %q", frontMatterDelimiter)
		}
		header.Write(line)
		header.WriteByte('\n')
		rest = remaining
	}

	if err := yaml.Unmarshal(header.Bytes(), &fm); err != nil {
		return fm, "", fmt.Errorf("parse front matter: %w", err)
	}
	if fm.Data != nil {
		fm.Data, _ = datatree.Normalize(fm.Data).(map[string]interface{})
	}
	if p := fm.Pagination; p != nil {
		if p.Data == "" {
			return fm, "", fmt.Errorf("pagination requires a data path")
		}
		if p.Alias == "" {
			p.Alias = "item"
		}
		if p.Size <= 0 {
			p.Size = 1
		}
	}

	return fm, string(rest), nil
}

// cutLine splits b at the first newline. found reports whether a newline
// was present; without one the whole input is the line.
func cutLine(b []byte) (line, rest []byte, found bool) {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i], b[i+1:], true
	}
	return b, nil, false
}
