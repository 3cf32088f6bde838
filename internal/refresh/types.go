package refresh

import "context"

// OutcomeKind classifies a single probe attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate-limited"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProbeOutcome is the result of one generation call against a candidate.
// Reason is set for RateLimited and Failed.
type ProbeOutcome struct {
	Kind   OutcomeKind
	Reason string
}

// Success, RateLimited and Failed build outcomes.
func Success() ProbeOutcome { return ProbeOutcome{Kind: OutcomeSuccess} }

func RateLimited(reason string) ProbeOutcome {
	return ProbeOutcome{Kind: OutcomeRateLimited, Reason: reason}
}

func Failed(reason string) ProbeOutcome {
	return ProbeOutcome{Kind: OutcomeFailed, Reason: reason}
}

// Generator calls a model by id. The error text is what the prober
// classifies, so implementations should keep the provider's message.
type Generator interface {
	Generate(ctx context.Context, modelID, prompt string) (string, error)
}

// ModelProber runs one probe against a model. Probe never returns an error;
// every failure is folded into the outcome.
type ModelProber interface {
	Probe(ctx context.Context, modelID string) ProbeOutcome
}

// ValidatedCandidate accumulates one candidate's results across rounds.
// Attempts counts rounds, Probes counts real generation calls.
type ValidatedCandidate struct {
	ModelID      string
	SuccessCount int
	Attempts     int
	Probes       int
	LastError    string
}

// ProbeEvent is reported after every generation call.
type ProbeEvent struct {
	Round   int
	ModelID string
	Attempt int
	Outcome ProbeOutcome
}

// Result holds the outcome of a validation pass.
type Result struct {
	Validated []ValidatedCandidate
	Rejected  []ValidatedCandidate
	Rounds    int
}

// ModelIDs returns the validated ids in rule order.
func (r *Result) ModelIDs() []string {
	ids := make([]string, 0, len(r.Validated))
	for _, v := range r.Validated {
		ids = append(ids, v.ModelID)
	}
	return ids
}

// Probes returns the total number of generation calls made during the pass.
func (r *Result) Probes() int {
	n := 0
	for _, v := range r.Validated {
		n += v.Probes
	}
	for _, v := range r.Rejected {
		n += v.Probes
	}
	return n
}
