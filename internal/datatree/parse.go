package datatree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Decoder parses the raw bytes of one data document.
type Decoder func(data []byte) (interface{}, error)

// formats maps a lower-case file extension to its decoder.
var formats = map[string]Decoder{
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".json": decodeJSON,
	".toml": decodeTOML,
}

// Extensions returns the recognized data file extensions, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsDataExtension reports whether ext (with leading dot) is a data format.
func IsDataExtension(ext string) bool {
	_, ok := formats[strings.ToLower(ext)]
	return ok
}

// IsDataFile reports whether name has a recognized data file extension.
func IsDataFile(name string) bool {
	return IsDataExtension(filepath.Ext(name))
}

// Decode parses data using the format selected by the extension of name and
// normalizes the result. The top-level value may be of any kind; callers
// decide whether a non-object is acceptable.
func Decode(name string, data []byte) (interface{}, error) {
	ext := strings.ToLower(filepath.Ext(name))
	decode, ok := formats[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported data format %q", ext)
	}

	v, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(name), err)
	}
	return Normalize(v), nil
}

func decodeYAML(data []byte) (interface{}, error) {
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeJSON(data []byte) (interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after the top-level JSON value at offset %d", dec.InputOffset())
	}
	return v, nil
}

func decodeTOML(data []byte) (interface{}, error) {
	var v map[string]interface{}
	if err := toml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]interface{}{}
	}
	return v, nil
}
