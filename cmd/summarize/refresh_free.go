package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lorenzotomasdiez/summarize/internal/config"
	"github.com/lorenzotomasdiez/summarize/internal/metrics"
	"github.com/lorenzotomasdiez/summarize/internal/openrouter"
	"github.com/lorenzotomasdiez/summarize/internal/output"
	"github.com/lorenzotomasdiez/summarize/internal/refresh"
)

// scheduleParser accepts 5-field, 6-field (with seconds) and descriptor
// expressions such as "@hourly".
var scheduleParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

func newRefreshFreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh-free",
		Short: "Probe every :free OpenRouter model and persist the ones that respond",
		Args:  cobra.NoArgs,
		RunE:  runRefreshFree,
	}
	cmd.Flags().Int("runs", config.DefaultRuns, "Extra validation rounds after the first (>= 0)")
	cmd.Flags().String("min-params", config.DefaultMinParams, "Minimum parameter size, e.g. 27b or 500m (0 disables the filter)")
	cmd.Flags().Bool("verbose", false, "Debug logging and rejected-model reasons")
	cmd.Flags().Duration("cooldown", config.DefaultCooldown, "Wait after a rate-limited probe before retrying")
	cmd.Flags().Duration("probe-timeout", config.DefaultProbeTimeout, "Upper bound for a single probe call (0 disables)")
	cmd.Flags().String("on-shrink", string(config.ShrinkOverwrite), "When fewer models validate than are configured: overwrite or keep")
	cmd.Flags().String("group", config.DefaultGroup, "Model group to write under models.<group>")
	cmd.Flags().Bool("dry-run", false, "Run the pass but do not write the config file")
	cmd.Flags().String("metrics-file", "", "Write Prometheus textfile metrics here after each pass")
	cmd.Flags().String("schedule", "", "Cron expression; keep running and refresh on this schedule")
	return cmd
}

func runRefreshFree(cmd *cobra.Command, args []string) error {
	settings, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	schedule, _ := cmd.Flags().GetString("schedule")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cmd.ErrOrStderr(), verbose)
	reporter := output.NewReporter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	client := openrouter.NewClientWithBaseURL(settings.APIKey, settings.BaseURL)
	prober := refresh.NewProber(client.NewGenerator(), openrouter.IsRateLimited)
	prober.SetTimeout(settings.ProbeTimeout)
	m := metrics.New()

	pass := refresh.PassConfig{
		ConfigPath: settings.ConfigPath,
		Group:      settings.Group,
		Runs:       settings.Runs,
		MinParams:  settings.MinParamsBillions(),
		OnShrink:   settings.OnShrink,
		DryRun:     dryRun,
		Verbose:    verbose,
	}

	runOnce := func(ctx context.Context) error {
		runLogger := logger.With("run_id", ulid.Make().String())
		pipeline := &refresh.Pipeline{
			Catalog:  client,
			Prober:   prober,
			Reporter: reporter,
			Metrics:  m,
			Logger:   runLogger,
			Cooldown: backoff.NewConstantBackOff(settings.Cooldown),
		}
		_, err := pipeline.Run(ctx, pass)
		if metricsFile != "" {
			if werr := m.WriteTextfile(metricsFile); werr != nil {
				runLogger.Warn("writing metrics textfile failed", "path", metricsFile, "error", werr)
			}
		}
		return err
	}

	if schedule == "" {
		return runOnce(ctx)
	}
	return runScheduled(ctx, schedule, logger, reporter, runOnce)
}

// runScheduled repeats runOnce on schedule until ctx is cancelled. A pass
// still running when the next tick fires makes that tick a no-op.
func runScheduled(ctx context.Context, expr string, logger *slog.Logger, reporter *output.Reporter, runOnce func(context.Context) error) error {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid --schedule %q: %w", expr, err)
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(sched, cron.FuncJob(func() {
		if err := runOnce(ctx); err != nil && ctx.Err() == nil {
			reporter.Warn("refresh pass failed: %v", err)
		}
	}))

	logger.Info("refresh scheduled", "schedule", expr)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// resolveSettings reads the environment once, then applies explicitly set
// flags on top and validates the result.
func resolveSettings(cmd *cobra.Command) (*config.Settings, error) {
	s, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	root := cmd.Root().PersistentFlags()
	if apiKey, _ := root.GetString("api-key"); apiKey != "" {
		s.APIKey = apiKey
	}
	if path, _ := root.GetString("config"); path != "" {
		s.ConfigPath = path
	}

	if err := applyFlagOverrides(s, cmd.Flags()); err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// applyFlagOverrides copies flags the user actually set onto s, so unset
// flags never mask environment values.
func applyFlagOverrides(s *config.Settings, flags *pflag.FlagSet) error {
	if flags.Changed("runs") {
		s.Runs, _ = flags.GetInt("runs")
	}
	if flags.Changed("min-params") {
		s.MinParams, _ = flags.GetString("min-params")
	}
	if flags.Changed("cooldown") {
		s.Cooldown, _ = flags.GetDuration("cooldown")
	}
	if flags.Changed("probe-timeout") {
		s.ProbeTimeout, _ = flags.GetDuration("probe-timeout")
	}
	if flags.Changed("on-shrink") {
		v, _ := flags.GetString("on-shrink")
		policy, err := config.ParseShrinkPolicy(v)
		if err != nil {
			return err
		}
		s.OnShrink = policy
	}
	if flags.Changed("group") {
		s.Group, _ = flags.GetString("group")
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
