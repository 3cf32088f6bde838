package config

import "fmt"

// ShrinkPolicy decides what happens when a pass validates fewer models than
// the rule already on disk.
type ShrinkPolicy string

const (
	ShrinkOverwrite ShrinkPolicy = "overwrite"
	ShrinkKeep      ShrinkPolicy = "keep"
)

// ParseShrinkPolicy accepts "overwrite" or "keep".
func ParseShrinkPolicy(s string) (ShrinkPolicy, error) {
	switch p := ShrinkPolicy(s); p {
	case ShrinkOverwrite, ShrinkKeep:
		return p, nil
	default:
		return "", fmt.Errorf("config: invalid on-shrink policy %q (want overwrite or keep)", s)
	}
}

// ShrinkDecision is the outcome of comparing a new candidate list with the
// persisted one.
type ShrinkDecision struct {
	Write   bool
	Shrunk  bool
	Dropped []string
}

// ResolveShrink decides whether next may replace previous. An empty next
// list is never written.
func ResolveShrink(previous, next []string, policy ShrinkPolicy) ShrinkDecision {
	keep := make(map[string]struct{}, len(next))
	for _, id := range next {
		keep[id] = struct{}{}
	}
	var dropped []string
	for _, id := range previous {
		if _, ok := keep[id]; !ok {
			dropped = append(dropped, id)
		}
	}

	d := ShrinkDecision{
		Shrunk:  len(next) < len(previous),
		Dropped: dropped,
	}
	switch {
	case len(next) == 0:
		d.Write = false
	case d.Shrunk && policy == ShrinkKeep:
		d.Write = false
	default:
		d.Write = true
	}
	return d
}
