package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultFileMode fs.FileMode = 0o644

// Rule is the persisted unit other commands read: candidates are tried in
// order.
type Rule struct {
	Candidates []string `json:"candidates" yaml:"candidates" jsonschema:"minItems=1,uniqueItems=true"`
}

// ModelGroup is one entry under the document's "models" object.
type ModelGroup struct {
	Rules []Rule `json:"rules" yaml:"rules" jsonschema:"minItems=1"`
}

// PersistError reports a failure to write the configuration document.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("config: writing %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Document is a configuration file held as a generic tree so that keys this
// program does not know about survive a rewrite.
type Document struct {
	path    string
	yaml    bool
	root    map[string]any
	mode    fs.FileMode
	exists  bool
	touched []string
}

// LoadDocument reads path. A missing file yields an empty document that
// Save will create.
func LoadDocument(path string) (*Document, error) {
	doc := &Document{
		path: path,
		yaml: isYAML(path),
		root: map[string]any{},
		mode: defaultFileMode,
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config: %s is a directory", path)
	}
	doc.exists = true
	doc.mode = info.Mode().Perm()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	root, err := decodeRoot(data, doc.yaml)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	doc.root = root
	return doc, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decodeRoot(data []byte, asYAML bool) (map[string]any, error) {
	var root map[string]any
	if asYAML {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("error parsing YAML config: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&root); err != nil {
			return nil, fmt.Errorf("error parsing JSON config: %w", err)
		}
	}
	if root == nil {
		root = map[string]any{}
	}
	return root, nil
}

// Path returns the file the document was loaded from.
func (d *Document) Path() string { return d.path }

// Exists reports whether the file was present when loaded.
func (d *Document) Exists() bool { return d.exists }

// Root returns a copy of the document tree.
func (d *Document) Root() map[string]any {
	return cloneMap(d.root)
}

// Rule returns the candidates of the first rule in group, if any.
func (d *Document) Rule(group string) ([]string, bool) {
	models, ok := d.root["models"].(map[string]any)
	if !ok {
		return nil, false
	}
	g, ok := models[group].(map[string]any)
	if !ok {
		return nil, false
	}
	rules, ok := g["rules"].([]any)
	if !ok || len(rules) == 0 {
		return nil, false
	}
	first, ok := rules[0].(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := first["candidates"].([]any)
	if !ok {
		return nil, false
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, true
}

// SetRule merges rule into group.
func (d *Document) SetRule(group string, rule Rule) error {
	root, err := MergeRule(d.root, group, rule)
	if err != nil {
		return err
	}
	d.root = root
	for _, g := range d.touched {
		if g == group {
			return nil
		}
	}
	d.touched = append(d.touched, group)
	return nil
}

// MergeRule returns a copy of root with models.<group>.rules[0].candidates
// replaced by rule. Every other key, including other fields of the first
// rule and any later rules, is carried over unchanged. root is not modified.
func MergeRule(root map[string]any, group string, rule Rule) (map[string]any, error) {
	if strings.TrimSpace(group) == "" {
		return nil, errors.New("config: group name is required")
	}
	out := cloneMap(root)
	if out == nil {
		out = map[string]any{}
	}

	models, err := childObject(out, "models", "models")
	if err != nil {
		return nil, err
	}
	g, err := childObject(models, group, "models."+group)
	if err != nil {
		return nil, err
	}

	candidates := make([]any, len(rule.Candidates))
	for i, id := range rule.Candidates {
		candidates[i] = id
	}

	var rules []any
	switch v := g["rules"].(type) {
	case nil:
	case []any:
		rules = v
	default:
		return nil, fmt.Errorf("config: models.%s.rules must be an array, got %T", group, v)
	}

	if len(rules) == 0 {
		g["rules"] = []any{map[string]any{"candidates": candidates}}
		return out, nil
	}
	first, ok := rules[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config: models.%s.rules[0] must be an object, got %T", group, rules[0])
	}
	first["candidates"] = candidates
	g["rules"] = rules
	return out, nil
}

func childObject(parent map[string]any, key, where string) (map[string]any, error) {
	switch v := parent[key].(type) {
	case nil:
		child := map[string]any{}
		parent[key] = child
		return child, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("config: %s must be an object, got %T", where, v)
	}
}

// Save validates every group changed through SetRule and atomically
// replaces the file.
func (d *Document) Save() error {
	for _, group := range d.touched {
		if err := d.validateGroup(group); err != nil {
			return &PersistError{Path: d.path, Err: err}
		}
	}

	data, err := d.encode()
	if err != nil {
		return &PersistError{Path: d.path, Err: err}
	}
	if err := writeFileAtomic(d.path, data, d.mode); err != nil {
		return &PersistError{Path: d.path, Err: err}
	}
	d.exists = true
	return nil
}

func (d *Document) validateGroup(group string) error {
	models, _ := d.root["models"].(map[string]any)
	return ValidateGroup(models[group])
}

// encode re-emits the whole document. Object keys come out sorted, so the
// original key order is not kept but repeated saves are byte-identical.
func (d *Document) encode() ([]byte, error) {
	if d.yaml {
		data, err := yaml.Marshal(d.root)
		if err != nil {
			return nil, fmt.Errorf("marshaling config: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(d.root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return append(data, '\n'), nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers see either the old or the new document.
func writeFileAtomic(path string, data []byte, mode fs.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// WriteRule loads path, merges rule into group and saves it.
func WriteRule(path, group string, rule Rule) error {
	doc, err := LoadDocument(path)
	if err != nil {
		return err
	}
	if err := doc.SetRule(group, rule); err != nil {
		return err
	}
	return doc.Save()
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
