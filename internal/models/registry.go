package models

import "strings"

// FreeSuffix marks a model id as free-tier in the OpenRouter catalog.
const FreeSuffix = ":free"

// CatalogEntry is one model from the provider catalog.
type CatalogEntry struct {
	ID            string
	DisplayName   string
	ContextLength int // 0 when the catalog did not report it
}

// Candidate is a catalog entry eligible for probing.
type Candidate struct {
	ModelID string
}

// Registry holds a catalog snapshot and answers free-tier queries against it.
type Registry struct {
	free []CatalogEntry
}

// NewRegistry creates a registry, keeping only entries whose id carries the free
// marker. Duplicate ids keep their first occurrence.
func NewRegistry(entries []CatalogEntry) *Registry {
	seen := make(map[string]struct{}, len(entries))
	var free []CatalogEntry
	for _, e := range entries {
		if !IsFree(e.ID) {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		free = append(free, e)
	}
	return &Registry{free: free}
}

// IsFree reports whether id carries the free-tier marker.
func IsFree(id string) bool {
	return strings.HasSuffix(strings.TrimSpace(id), FreeSuffix)
}

// Free returns all free-tagged entries in catalog order.
func (r *Registry) Free() []CatalogEntry {
	return r.free
}

// Candidates returns the free entries whose parameter count is unknown or at
// least minParams (in billions). A minParams of zero or less matches every
// free entry.
func (r *Registry) Candidates(minParams float64) []Candidate {
	var out []Candidate
	for _, e := range r.free {
		if minParams > 0 {
			if size, ok := ParamCount(e); ok && size < minParams {
				continue
			}
		}
		out = append(out, Candidate{ModelID: e.ID})
	}
	return out
}

// FilterCandidates narrows entries to probe candidates, preserving catalog order.
func FilterCandidates(entries []CatalogEntry, minParams float64) []Candidate {
	return NewRegistry(entries).Candidates(minParams)
}

// IDs returns the model ids of candidates in order.
func IDs(candidates []Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ModelID
	}
	return ids
}
