package refresh

import (
	"context"
	"strings"
	"time"
)

// DefaultProbePrompt asks for the shortest possible reply.
const DefaultProbePrompt = "Reply with the single word OK."

// Prober turns a Generator call into a ProbeOutcome.
type Prober struct {
	gen         Generator
	rateLimited func(error) bool
	prompt      string
	timeout     time.Duration
}

// NewProber creates a Prober. rateLimited decides which errors are quota
// exhaustion; a nil classifier treats every error as a plain failure.
func NewProber(gen Generator, rateLimited func(error) bool) *Prober {
	return &Prober{
		gen:         gen,
		rateLimited: rateLimited,
		prompt:      DefaultProbePrompt,
	}
}

// SetTimeout bounds each probe call. Zero disables the bound.
func (p *Prober) SetTimeout(d time.Duration) {
	p.timeout = d
}

// SetPrompt overrides the probe prompt.
func (p *Prober) SetPrompt(prompt string) {
	if strings.TrimSpace(prompt) != "" {
		p.prompt = prompt
	}
}

// Probe makes exactly one generation call.
func (p *Prober) Probe(ctx context.Context, modelID string) ProbeOutcome {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	_, err := p.gen.Generate(ctx, modelID, p.prompt)
	if err == nil {
		return Success()
	}
	if p.rateLimited != nil && p.rateLimited(err) {
		return RateLimited(err.Error())
	}
	return Failed(err.Error())
}
