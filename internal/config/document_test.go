package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestLoadDocument_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.False(t, doc.Exists())
	assert.Empty(t, doc.Root())

	_, ok := doc.Rule("free")
	assert.False(t, ok)
}

func TestLoadDocument_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadDocument(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestMergeRule_CreatesStructure(t *testing.T) {
	out, err := MergeRule(nil, "free", Rule{Candidates: []string{"a:free", "b:free"}})
	require.NoError(t, err)

	want := map[string]any{
		"models": map[string]any{
			"free": map[string]any{
				"rules": []any{
					map[string]any{"candidates": []any{"a:free", "b:free"}},
				},
			},
		},
	}
	assert.Equal(t, want, out)
}

func TestMergeRule_PreservesEverythingElse(t *testing.T) {
	root := map[string]any{
		"model": "auto",
		"models": map[string]any{
			"paid": map[string]any{
				"rules": []any{map[string]any{"candidates": []any{"openai/gpt-5"}}},
			},
			"free": map[string]any{
				"note": "managed by refresh-free",
				"rules": []any{
					map[string]any{"candidates": []any{"old:free"}, "when": "short"},
					map[string]any{"candidates": []any{"fallback:free"}},
				},
			},
		},
	}

	out, err := MergeRule(root, "free", Rule{Candidates: []string{"new:free"}})
	require.NoError(t, err)

	assert.Equal(t, "auto", out["model"])
	models := out["models"].(map[string]any)
	assert.Equal(t, root["models"].(map[string]any)["paid"], models["paid"])

	free := models["free"].(map[string]any)
	assert.Equal(t, "managed by refresh-free", free["note"])
	rules := free["rules"].([]any)
	require.Len(t, rules, 2)
	assert.Equal(t, map[string]any{"candidates": []any{"new:free"}, "when": "short"}, rules[0])
	assert.Equal(t, map[string]any{"candidates": []any{"fallback:free"}}, rules[1])

	// the input is untouched
	orig := root["models"].(map[string]any)["free"].(map[string]any)["rules"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{"old:free"}, orig["candidates"])
}

func TestMergeRule_ShapeErrors(t *testing.T) {
	tests := map[string]map[string]any{
		"models not object": {"models": []any{}},
		"group not object":  {"models": map[string]any{"free": "x"}},
		"rules not array":   {"models": map[string]any{"free": map[string]any{"rules": "x"}}},
		"rule not object":   {"models": map[string]any{"free": map[string]any{"rules": []any{"x"}}}},
	}
	for name, root := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := MergeRule(root, "free", Rule{Candidates: []string{"a:free"}})
			assert.Error(t, err)
		})
	}

	_, err := MergeRule(nil, " ", Rule{Candidates: []string{"a:free"}})
	assert.Error(t, err)
}

func TestWriteRule_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".summarize", "config.json")

	require.NoError(t, WriteRule(path, "free", Rule{Candidates: []string{"a:free", "b:free"}}))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.True(t, doc.Exists())
	ids, ok := doc.Rule("free")
	require.True(t, ok)
	assert.Equal(t, []string{"a:free", "b:free"}, ids)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestSave_PreservesForeignKeysAndMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	original := `{
  "language": "en",
  "limits": {"maxTokens": 12345678901234567890},
  "models": {
    "paid": {"rules": [{"candidates": ["openai/gpt-5"]}]},
    "free": {"rules": [{"candidates": ["old:free"]}]}
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	require.NoError(t, WriteRule(path, "free", Rule{Candidates: []string{"x:free"}}))

	got := readJSON(t, path)
	assert.Equal(t, "en", got["language"])
	models := got["models"].(map[string]any)
	assert.Equal(t, []any{map[string]any{"candidates": []any{"openai/gpt-5"}}}, models["paid"].(map[string]any)["rules"])
	assert.Equal(t, []any{map[string]any{"candidates": []any{"x:free"}}}, models["free"].(map[string]any)["rules"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "12345678901234567890", "large numbers must survive the rewrite")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSave_WritesKeysInStableOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	original := `{"zeta": 1, "models": {"free": {"rules": [{"candidates": ["old:free"]}]}}, "alpha": true}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	require.NoError(t, WriteRule(path, "free", Rule{Candidates: []string{"x:free"}}))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(first)
	alpha, models, zeta := strings.Index(text, `"alpha"`), strings.Index(text, `"models"`), strings.Index(text, `"zeta"`)
	require.True(t, alpha >= 0 && models >= 0 && zeta >= 0, text)
	assert.Less(t, alpha, models)
	assert.Less(t, models, zeta)

	require.NoError(t, WriteRule(path, "free", Rule{Candidates: []string{"x:free"}}))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	for i := 0; i < 3; i++ {
		require.NoError(t, WriteRule(path, "free", Rule{Candidates: []string{"a:free"}}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.json", entries[0].Name())
}

func TestSave_SchemaRejectsEmptyCandidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"models":{"free":{"rules":[{"candidates":["keep:free"]}]}}}`), 0o644))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	require.NoError(t, doc.SetRule("free", Rule{Candidates: nil}))

	err = doc.Save()
	require.Error(t, err)
	var perr *PersistError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, path, perr.Path)

	after := readJSON(t, path)
	free := after["models"].(map[string]any)["free"].(map[string]any)
	assert.Equal(t, []any{map[string]any{"candidates": []any{"keep:free"}}}, free["rules"])
}

func TestSave_SchemaRejectsDuplicates(t *testing.T) {
	doc, err := LoadDocument(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.NoError(t, doc.SetRule("free", Rule{Candidates: []string{"a:free", "a:free"}}))
	assert.Error(t, doc.Save())
}

func TestSave_UnwritableDirectoryIsPersistError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	err := WriteRule(filepath.Join(dir, "config.json"), "free", Rule{Candidates: []string{"a:free"}})
	var perr *PersistError
	require.True(t, errors.As(err, &perr), "got %v", err)
}

func TestDocument_YAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	original := "language: en\nmodels:\n  paid:\n    rules:\n      - candidates: [openai/gpt-5]\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	require.NoError(t, WriteRule(path, "free", Rule{Candidates: []string{"a:free", "b:free"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(strings.TrimSpace(string(data)), "{"), "expected YAML output")

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "en", got["language"])

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	ids, ok := doc.Rule("free")
	require.True(t, ok)
	assert.Equal(t, []string{"a:free", "b:free"}, ids)
	paid, ok := doc.Rule("paid")
	require.True(t, ok)
	assert.Equal(t, []string{"openai/gpt-5"}, paid)
}

func TestGroupSchema(t *testing.T) {
	data, err := groupSchemaJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"candidates"`)
	assert.Contains(t, string(data), `"minItems"`)

	assert.NoError(t, ValidateGroup(map[string]any{
		"rules": []any{map[string]any{"candidates": []any{"a:free"}, "extra": true}},
	}))
	assert.Error(t, ValidateGroup(map[string]any{"rules": []any{}}))
	assert.Error(t, ValidateGroup(nil))
}
