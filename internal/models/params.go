package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	sizeTokenRe = regexp.MustCompile(`(?i)^(?:(\d+)x)?(\d+(?:\.\d+)?)([bmt])$`)
	minParamsRe = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([bmt]?)$`)
)

// ParseMinParams parses a size threshold such as "0", "0b", "27b", "1.5b" or
// "500m" into billions of parameters. A bare number is read as billions.
func ParseMinParams(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	m := minParamsRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("models: invalid min-params %q (want e.g. 0b, 27b, 500m)", s)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("models: invalid min-params %q: %w", s, err)
	}
	return scale(v, m[2]), nil
}

// ParamCount infers a model's parameter count in billions from its id, falling
// back to its display name. The second return is false when no size token is
// found. Mixture tokens like "8x7b" multiply out.
func ParamCount(e CatalogEntry) (float64, bool) {
	if v, ok := largestSize(modelSlug(e.ID)); ok {
		return v, true
	}
	return largestSize(e.DisplayName)
}

// FormatParams renders a billions value the way ParseMinParams accepts it.
func FormatParams(billions float64) string {
	if billions > 0 && billions < 1 {
		return strconv.FormatFloat(billions*1000, 'f', -1, 64) + "m"
	}
	return strconv.FormatFloat(billions, 'f', -1, 64) + "b"
}

// modelSlug strips the provider prefix and any ":tag" suffix from an id.
func modelSlug(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[:i]
	}
	return id
}

func largestSize(s string) (float64, bool) {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	var best float64
	found := false
	for _, tok := range tokens {
		m := sizeTokenRe.FindStringSubmatch(tok)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if m[1] != "" {
			experts, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			v *= float64(experts)
		}
		v = scale(v, m[3])
		if !found || v > best {
			best = v
			found = true
		}
	}
	return best, found
}

func scale(v float64, unit string) float64 {
	switch strings.ToLower(unit) {
	case "m":
		return v / 1000
	case "t":
		return v * 1000
	default:
		return v
	}
}
