package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lorenzotomasdiez/summarize/internal/config"
	"github.com/lorenzotomasdiez/summarize/internal/metrics"
	"github.com/lorenzotomasdiez/summarize/internal/models"
)

// CatalogSource lists the provider's models.
type CatalogSource interface {
	FetchCatalog(ctx context.Context) ([]models.CatalogEntry, error)
}

// Reporter receives user-facing progress.
type Reporter interface {
	Found(candidates, rounds int, minParams string)
	Refining(candidates, extraRuns int)
	Validated(result *Result, candidates int)
	Rejected(result *Result)
	Warn(format string, args ...any)
	Wrote(path string)
	DryRun(path string, ids []string)
}

// PassConfig is one refresh pass's parameters.
type PassConfig struct {
	ConfigPath  string
	Group       string
	Runs        int
	MaxAttempts int
	MinParams   float64
	OnShrink    config.ShrinkPolicy
	DryRun      bool
	Verbose     bool
}

// Pipeline wires catalog, filter, engine and config writer into a pass.
type Pipeline struct {
	Catalog  CatalogSource
	Prober   ModelProber
	Reporter Reporter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Cooldown backoff.BackOff
	Sleep    SleepFunc
	Now      func() time.Time
}

// PassSummary describes what a pass did.
type PassSummary struct {
	Candidates int
	Result     *Result
	Outcome    string
}

// Run executes one pass. Only catalog, cancellation and persistence
// failures are returned as errors; everything else ends in a warning.
func (p *Pipeline) Run(ctx context.Context, cfg PassConfig) (*PassSummary, error) {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	start := now()
	summary := &PassSummary{}
	finish := func(outcome string) {
		summary.Outcome = outcome
		validated := 0
		if summary.Result != nil {
			validated = len(summary.Result.Validated)
		}
		p.Metrics.RecordPass(outcome, summary.Candidates, validated, now().Sub(start), now())
	}

	entries, err := p.Catalog.FetchCatalog(ctx)
	if err != nil {
		finish(metrics.ResultFailed)
		return nil, fmt.Errorf("refresh: fetching catalog: %w", err)
	}
	candidates := models.FilterCandidates(entries, cfg.MinParams)
	summary.Candidates = len(candidates)
	logger.Debug("catalog filtered", "entries", len(entries), "candidates", models.IDs(candidates))

	label := models.FormatParams(cfg.MinParams)
	p.Reporter.Found(len(candidates), cfg.Runs+1, label)
	if len(candidates) == 0 {
		p.Reporter.Warn("no :free models matched min-params=%s; nothing to test", label)
		finish(metrics.ResultEmpty)
		return summary, nil
	}

	engine := NewEngine(p.Prober, cfg.Runs)
	engine.SetCooldown(p.Cooldown)
	engine.SetSleep(p.Sleep)
	engine.SetLogger(logger)
	engine.SetMaxAttempts(cfg.MaxAttempts)
	engine.OnRound = func(round, total int) {
		logger.Debug("round started", "round", round, "total", total)
		if round == 2 {
			p.Reporter.Refining(len(candidates), cfg.Runs)
		}
	}
	engine.OnProbe = func(ev ProbeEvent) {
		p.Metrics.RecordProbe(ev.Outcome.Kind.String())
	}

	result, err := engine.Run(ctx, candidates)
	if err != nil {
		finish(metrics.ResultFailed)
		return nil, err
	}
	summary.Result = result

	p.Reporter.Validated(result, len(candidates))
	if cfg.Verbose {
		p.Reporter.Rejected(result)
	}

	ids := result.ModelIDs()
	if len(ids) == 0 {
		p.Reporter.Warn("no free models validated; leaving %s unchanged", cfg.ConfigPath)
		finish(metrics.ResultEmpty)
		return summary, nil
	}

	doc, err := config.LoadDocument(cfg.ConfigPath)
	if err != nil {
		finish(metrics.ResultFailed)
		return nil, err
	}
	previous, _ := doc.Rule(cfg.Group)
	decision := config.ResolveShrink(previous, ids, cfg.OnShrink)
	if decision.Shrunk {
		if !decision.Write {
			p.Reporter.Warn("validated %d models but %s already lists %d; keeping the existing rule (on-shrink=keep)",
				len(ids), cfg.ConfigPath, len(previous))
			finish(metrics.ResultUnchanged)
			return summary, nil
		}
		p.Reporter.Warn("models.%s shrinks from %d to %d candidates; dropping %s",
			cfg.Group, len(previous), len(ids), strings.Join(decision.Dropped, ", "))
	} else if len(decision.Dropped) > 0 {
		logger.Info("replacing candidates", "dropped", decision.Dropped)
	}

	if cfg.DryRun {
		p.Reporter.DryRun(cfg.ConfigPath, ids)
		finish(metrics.ResultUnchanged)
		return summary, nil
	}

	if err := doc.SetRule(cfg.Group, config.Rule{Candidates: ids}); err != nil {
		finish(metrics.ResultFailed)
		return nil, err
	}
	if err := doc.Save(); err != nil {
		finish(metrics.ResultFailed)
		return nil, err
	}
	p.Reporter.Wrote(cfg.ConfigPath)
	finish(metrics.ResultWritten)
	return summary, nil
}
