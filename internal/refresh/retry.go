package refresh

import (
	"context"
	"time"
)

// DefaultMaxAttempts is the initial probe plus one retry after a cooldown.
const DefaultMaxAttempts = 2

// Phase is the position of one candidate's round in the retry state machine.
//
//	Idle -> Probing -> Succeeded
//	                -> Waiting -> Retrying -> Succeeded | Failed
//	                -> Failed
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProbing
	PhaseWaiting
	PhaseRetrying
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProbing:
		return "probing"
	case PhaseWaiting:
		return "waiting"
	case PhaseRetrying:
		return "retrying"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Action tells the executor what to do next.
type Action int

const (
	ActionProbe Action = iota
	ActionWait
	ActionAccept
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionProbe:
		return "probe"
	case ActionWait:
		return "wait"
	case ActionAccept:
		return "accept"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// RetryState is the state for a single candidate within a single round.
type RetryState struct {
	Phase    Phase
	Attempts int
	Last     ProbeOutcome
}

// Start begins a round for one candidate.
func Start() (Action, RetryState) {
	return ActionProbe, RetryState{Phase: PhaseProbing}
}

// Advance feeds the outcome of the probe just made into the machine.
// Calls in a non-probing phase return the state unchanged.
func Advance(s RetryState, outcome ProbeOutcome, maxAttempts int) (Action, RetryState) {
	if s.Phase != PhaseProbing && s.Phase != PhaseRetrying {
		return actionFor(s.Phase), s
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s.Attempts++
	s.Last = outcome
	switch outcome.Kind {
	case OutcomeSuccess:
		s.Phase = PhaseSucceeded
	case OutcomeRateLimited:
		if s.Attempts < maxAttempts {
			s.Phase = PhaseWaiting
		} else {
			s.Phase = PhaseFailed
		}
	default:
		s.Phase = PhaseFailed
	}
	return actionFor(s.Phase), s
}

// Resume is called once the cooldown has elapsed.
func Resume(s RetryState) (Action, RetryState) {
	if s.Phase != PhaseWaiting {
		return actionFor(s.Phase), s
	}
	s.Phase = PhaseRetrying
	return ActionProbe, s
}

func actionFor(p Phase) Action {
	switch p {
	case PhaseSucceeded:
		return ActionAccept
	case PhaseFailed:
		return ActionReject
	case PhaseWaiting:
		return ActionWait
	default:
		return ActionProbe
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepWithContext sleeps for the specified duration, respecting context cancellation.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
