package expander

import (
	"fmt"
	"path"
	"strings"

	"github.com/stdg/reqs-builder/internal/datatree"
	generrors "github.com/stdg/reqs-builder/internal/errors"
)

type page struct {
	number int
	total  int
	value  interface{} // element when size is 1, else the chunk
	items  []interface{}
}

// paginate splits the sequence a unit paginates over into pages. A unit
// without pagination yields a single nil page. The data path is looked up
// in the render data first and then in the front matter.
func paginate(unit Unit, data map[string]interface{}) ([]*page, error) {
	p := unit.FrontMatter.Pagination
	if p == nil {
		return []*page{nil}, nil
	}

	value, ok := datatree.Lookup(data, p.Data)
	if !ok && unit.FrontMatter.Data != nil {
		value, ok = datatree.Lookup(unit.FrontMatter.Data, p.Data)
	}
	if !ok {
		return nil, generrors.NewTemplateRenderError(unit.Path,
			fmt.Errorf("pagination data %q not found", p.Data))
	}

	var elements []interface{}
	switch v := value.(type) {
	case nil:
	case []interface{}:
		elements = v
	case map[string]interface{}:
		// Objects paginate over their keys, sorted.
		for _, k := range datatree.Keys(v) {
			elements = append(elements, k)
		}
	default:
		return nil, generrors.NewTemplateRenderError(unit.Path,
			fmt.Errorf("pagination data %q is a %s, not a sequence", p.Data, datatree.KindOf(v)))
	}

	total := (len(elements) + p.Size - 1) / p.Size
	pages := make([]*page, 0, total)
	for start := 0; start < len(elements); start += p.Size {
		end := start + p.Size
		if end > len(elements) {
			end = len(elements)
		}
		chunk := elements[start:end]

		pg := &page{number: len(pages), total: total, items: chunk}
		if p.Size == 1 {
			pg.value = chunk[0]
		} else {
			pg.value = chunk
		}
		pages = append(pages, pg)
	}
	return pages, nil
}

// defaultIdentity numbers the output of every page after the first so
// paginated templates without a permalink do not overwrite themselves.
func defaultIdentity(identity string, pg *page) string {
	if pg == nil || pg.number == 0 {
		return identity
	}
	ext := path.Ext(identity)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(identity, ext), pg.number+1, ext)
}
