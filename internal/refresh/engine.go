package refresh

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lorenzotomasdiez/summarize/internal/models"
)

// DefaultCooldown is the provider's stated reset window for free-tier quotas.
const DefaultCooldown = 60 * time.Second

// Engine orchestrates a validation pass over a candidate list.
type Engine struct {
	prober      ModelProber
	runs        int
	maxAttempts int
	cooldown    backoff.BackOff
	sleep       SleepFunc
	logger      *slog.Logger
	OnRound     func(round, total int)
	OnProbe     func(ProbeEvent)
}

// NewEngine creates an engine that runs runs+1 rounds.
func NewEngine(prober ModelProber, runs int) *Engine {
	return &Engine{
		prober:      prober,
		runs:        runs,
		maxAttempts: DefaultMaxAttempts,
		cooldown:    backoff.NewConstantBackOff(DefaultCooldown),
		sleep:       SleepWithContext,
		logger:      slog.New(slog.DiscardHandler),
	}
}

// SetCooldown replaces the cooldown policy. A policy that returns
// backoff.Stop rejects the candidate for the round instead of retrying.
func (e *Engine) SetCooldown(b backoff.BackOff) {
	if b != nil {
		e.cooldown = b
	}
}

// SetSleep replaces the sleeper (tests use a fake clock).
func (e *Engine) SetSleep(fn SleepFunc) {
	if fn != nil {
		e.sleep = fn
	}
}

func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetMaxAttempts sets the probe budget per candidate per round.
func (e *Engine) SetMaxAttempts(n int) {
	if n > 0 {
		e.maxAttempts = n
	}
}

// Rounds is the total number of probe rounds a pass executes.
func (e *Engine) Rounds() int {
	return e.runs + 1
}

// Run probes every candidate once per round, in order, and returns the
// validated candidates sorted by success count. Probe failures never abort
// the pass; only context cancellation does.
func (e *Engine) Run(ctx context.Context, candidates []models.Candidate) (*Result, error) {
	if e.runs < 0 {
		return nil, fmt.Errorf("refresh: runs must be >= 0, got %d", e.runs)
	}
	if e.prober == nil {
		return nil, errors.New("refresh: no prober configured")
	}

	state := make([]ValidatedCandidate, len(candidates))
	for i, c := range candidates {
		state[i] = ValidatedCandidate{ModelID: c.ModelID}
	}
	if len(state) == 0 {
		return &Result{}, nil
	}

	total := e.Rounds()
	for round := 1; round <= total; round++ {
		if e.OnRound != nil {
			e.OnRound(round, total)
		}
		for i := range state {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("refresh: %w", err)
			}
			if err := e.runCandidate(ctx, round, &state[i]); err != nil {
				return nil, err
			}
		}
	}

	result := &Result{Rounds: total}
	for _, c := range state {
		if c.SuccessCount > 0 {
			result.Validated = append(result.Validated, c)
		} else {
			result.Rejected = append(result.Rejected, c)
		}
	}
	slices.SortStableFunc(result.Validated, func(a, b ValidatedCandidate) int {
		return cmp.Compare(b.SuccessCount, a.SuccessCount)
	})
	return result, nil
}

// runCandidate drives one candidate through the retry state machine for a
// single round. It returns an error only when ctx is done.
func (e *Engine) runCandidate(ctx context.Context, round int, c *ValidatedCandidate) error {
	c.Attempts++
	e.cooldown.Reset()

	action, st := Start()
	for {
		switch action {
		case ActionProbe:
			outcome := e.prober.Probe(ctx, c.ModelID)
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			c.Probes++
			if outcome.Kind != OutcomeSuccess {
				c.LastError = outcome.Reason
			}
			action, st = Advance(st, outcome, e.maxAttempts)
			e.logger.Debug("probe finished",
				"model", c.ModelID,
				"round", round,
				"attempt", st.Attempts,
				"outcome", outcome.Kind.String(),
				"reason", outcome.Reason)
			if e.OnProbe != nil {
				e.OnProbe(ProbeEvent{Round: round, ModelID: c.ModelID, Attempt: st.Attempts, Outcome: outcome})
			}
		case ActionWait:
			d := e.cooldown.NextBackOff()
			if d == backoff.Stop {
				return nil
			}
			e.logger.Debug("rate limit hit; sleeping",
				"model", c.ModelID,
				"round", round,
				"cooldown", d)
			if err := e.sleep(ctx, d); err != nil {
				return fmt.Errorf("refresh: cooldown: %w", err)
			}
			action, st = Resume(st)
		case ActionAccept:
			c.SuccessCount++
			return nil
		default:
			return nil
		}
	}
}
