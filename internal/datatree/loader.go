package datatree

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	generrors "github.com/stdg/reqs-builder/internal/errors"
)

// CheckDir verifies that path exists and is a directory.
func CheckDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return generrors.NewDirectoryNotFound(path)
		}
		return generrors.WrapIO(err, path, "stat failed")
	}
	if !info.IsDir() {
		return generrors.NewNotADirectory(path)
	}
	return nil
}

// ListFiles returns the regular files directly inside dir, as full paths,
// in lexical order of their names. This order is the merge order.
func ListFiles(dir string, keep func(name string) bool) ([]string, error) {
	// os.ReadDir sorts entries by filename.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, generrors.WrapIO(err, dir, "read directory failed")
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if keep != nil && !keep(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// LoadFile reads and parses one data file. The top-level value must be an
// object.
func LoadFile(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, generrors.WrapIO(err, path, "read failed")
	}

	v, err := Decode(path, data)
	if err != nil {
		return nil, generrors.Wrap(err, generrors.KindInvalidDataFile, "parse failed").WithPath(path)
	}

	tree, ok := v.(map[string]interface{})
	if !ok {
		return nil, generrors.NewInvalidDataFile(path, KindOf(v).String())
	}
	return tree, nil
}

// MergeDirectory loads every data file directly inside dir in lexical order
// and deep-merges them left to right. A directory without data files yields
// an empty tree.
func MergeDirectory(dir string) (Tree, error) {
	if err := CheckDir(dir); err != nil {
		return nil, err
	}

	files, err := ListFiles(dir, IsDataFile)
	if err != nil {
		return nil, err
	}

	acc := Tree{}
	for _, file := range files {
		tree, err := LoadFile(file)
		if err != nil {
			return nil, err
		}

		if acc, err = Merge(acc, tree); err != nil {
			return nil, generrors.InFile(err, file)
		}
	}
	return acc, nil
}
