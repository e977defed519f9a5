package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/config"
	"github.com/abdul-hamid-achik/hitplan/packages/core/env"
	"github.com/abdul-hamid-achik/hitplan/packages/core/logging"
	"github.com/abdul-hamid-achik/hitplan/packages/core/report"
	"github.com/abdul-hamid-achik/hitplan/packages/core/runner"
	"github.com/abdul-hamid-achik/hitplan/packages/export/metrics"
	"github.com/abdul-hamid-achik/hitplan/packages/notify"
	"github.com/abdul-hamid-achik/hitplan/packages/output"
	"github.com/abdul-hamid-achik/hitplan/packages/plan"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run test plans",
	Long: `Run the test plans found in .plan.yaml, .plan.yml or .hitplan files.

Examples:
  hitplan run checkout.plan.yaml
  hitplan run ./plans/ --parallel 4
  hitplan run ./plans/ --name "login*" --bail
  hitplan run api.plan.yaml --var baseUrl=http://localhost:8080 --env-file .env
  hitplan run ./plans/ -o junit --output-file report.xml
  hitplan run ./plans/ --metrics-file metrics.prom --metrics-format prometheus
  hitplan run ./plans/ --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond

	// VarEnvPrefix marks process environment variables exposed to plans.
	VarEnvPrefix = "HITPLAN_VAR_"
)

var errUnitsFailed = errors.New("one or more units failed")

var (
	envFileFlag   string
	varFlags      []string
	nameFlag      string
	databaseFlag  string
	verboseFlag   bool
	noColorFlag   bool
	bailFlag      bool
	parallelFlag  int
	startRateFlag float64
	watchFlag     bool

	outputFlag     string
	outputFileFlag string

	metricsFileFlag   string
	metricsFormatFlag string

	notifyFlag       string
	notifyOnFlag     string
	slackWebhookFlag string
	slackChannelFlag string
	webhookURLFlag   string
)

func init() {
	// Input flags
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("HITPLAN_ENV_FILE", ""), "Path to .env file for variable interpolation (env: HITPLAN_ENV_FILE)")
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a plan variable as key=value (repeatable)")
	runCmd.Flags().StringVarP(&nameFlag, "name", "n", getEnvString("HITPLAN_NAME", ""), "Run only units matching name pattern, * as wildcard (env: HITPLAN_NAME)")
	runCmd.Flags().StringVar(&databaseFlag, "database", "", "Default database of sql steps and sources (env: HITPLAN_DATABASE)")

	// Output flags
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Also report groups and skip reasons (env: HITPLAN_VERBOSE)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output (env: HITPLAN_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("HITPLAN_OUTPUT", ""), "Output format: console, json, junit, tap (env: HITPLAN_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("HITPLAN_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITPLAN_OUTPUT_FILE)")

	// Execution flags
	runCmd.Flags().BoolVar(&bailFlag, "bail", false, "Stop on first failure (env: HITPLAN_BAIL)")
	runCmd.Flags().IntVarP(&parallelFlag, "parallel", "p", 0, "Number of plans run at once (env: HITPLAN_PARALLELISM)")
	runCmd.Flags().Float64Var(&startRateFlag, "start-rate", 0, "Maximum unit starts per second in parallel groups, 0 for unlimited (env: HITPLAN_START_RATE)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch plan files for changes and re-run")

	// Metrics flags
	runCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", getEnvString("HITPLAN_METRICS_FILE", ""), "Write run metrics to file (env: HITPLAN_METRICS_FILE)")
	runCmd.Flags().StringVar(&metricsFormatFlag, "metrics-format", getEnvString("HITPLAN_METRICS_FORMAT", "json"), "Metrics format: json, prometheus (env: HITPLAN_METRICS_FORMAT)")

	// Notification flags
	runCmd.Flags().StringVar(&notifyFlag, "notify", getEnvString("HITPLAN_NOTIFY", ""), "Notification services: slack, webhook (comma-separated) (env: HITPLAN_NOTIFY)")
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("HITPLAN_NOTIFY_ON", "failure"), "When to notify: always, failure, success, recovery (env: HITPLAN_NOTIFY_ON)")
	runCmd.Flags().StringVar(&slackWebhookFlag, "slack-webhook", getEnvString("SLACK_WEBHOOK", ""), "Slack webhook URL (env: SLACK_WEBHOOK)")
	runCmd.Flags().StringVar(&slackChannelFlag, "slack-channel", getEnvString("SLACK_CHANNEL", ""), "Slack channel override (env: SLACK_CHANNEL)")
	runCmd.Flags().StringVar(&webhookURLFlag, "webhook-url", getEnvString("HITPLAN_WEBHOOK_URL", ""), "URL receiving the JSON run summary (env: HITPLAN_WEBHOOK_URL)")
}

// newNotifyManager builds the notifiers named by --notify. It returns nil
// when notifications are off.
func newNotifyManager() (*notify.Manager, error) {
	if notifyFlag == "" {
		return nil, nil
	}
	on, err := notify.ParseNotifyOn(notifyOnFlag)
	if err != nil {
		return nil, err
	}

	var notifiers []notify.Notifier
	for _, service := range strings.Split(notifyFlag, ",") {
		switch strings.ToLower(strings.TrimSpace(service)) {
		case "slack":
			if slackWebhookFlag == "" {
				return nil, fmt.Errorf("--slack-webhook is required when using --notify slack")
			}
			var opts []notify.SlackOption
			if slackChannelFlag != "" {
				opts = append(opts, notify.WithSlackChannel(slackChannelFlag))
			}
			notifiers = append(notifiers, notify.NewSlackNotifier(slackWebhookFlag, opts...))
		case "webhook":
			if webhookURLFlag == "" {
				return nil, fmt.Errorf("--webhook-url is required when using --notify webhook")
			}
			notifiers = append(notifiers, notify.NewWebhookNotifier(webhookURLFlag))
		case "":
		default:
			return nil, fmt.Errorf("unknown notification service %q (supported: slack, webhook)", service)
		}
	}
	return notify.NewManager(on, notifiers...), nil
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// flagConfig returns the config fields set on the command line. Unchanged
// flags leave the file and HITPLAN_* values in place.
func flagConfig(cmd *cobra.Command) *config.Config {
	f := cmd.Flags()
	c := &config.Config{EnvFile: envFileFlag, Database: databaseFlag}
	if f.Changed("parallel") {
		c.Parallelism = parallelFlag
	}
	if f.Changed("start-rate") {
		c.StartRate = startRateFlag
	}
	if f.Changed("bail") {
		c.Bail = config.BoolPtr(bailFlag)
	}
	if f.Changed("verbose") {
		c.Verbose = config.BoolPtr(verboseFlag)
	}
	if f.Changed("no-color") {
		c.NoColor = config.BoolPtr(noColorFlag)
	}
	return c
}

// parseVars turns repeated key=value flags into plan variables.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", kv)
		}
		vars[k] = v
	}
	return vars, nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = cfg.Merge(flagConfig(cmd))

	vars, err := parseVars(varFlags)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	if err := checkMetricsFormat(metricsFormatFlag); err != nil {
		return withExitCode(ExitUsageError, err)
	}
	notifier, err := newNotifyManager()
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	files, err := plan.Discover(args)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	if len(files) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no plan files found (%s)", strings.Join(plan.Extensions, ", ")))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.L().Debug("running plans", zap.Strings("files", files), zap.Int("parallelism", cfg.Parallelism))
	outcome, err := runPlans(ctx, cmd, cfg, files, vars, notifier)
	if err != nil {
		return err
	}

	// If watch mode is not enabled, exit with the outcome of the run
	if !watchFlag {
		return outcome.err()
	}

	return watchPlans(ctx, cmd, args, files, func() {
		files, err := plan.Discover(args)
		if err == nil {
			_, err = runPlans(ctx, cmd, cfg, files, vars, notifier)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	})
}

// runOutcome is the result of one pass over the plan files.
type runOutcome struct {
	loadErrors int
	results    []*runner.RunResult
}

func (o *runOutcome) err() error {
	if o.loadErrors > 0 {
		return withExitCode(ExitParseError, fmt.Errorf("%d plan(s) could not be loaded", o.loadErrors))
	}
	for _, res := range o.results {
		if !res.OK() {
			return withExitCode(ExitTestFailure, errUnitsFailed)
		}
	}
	return nil
}

// runPlans loads and executes files once, writing every report. Plans are
// rebuilt on each call since unit trees are single use.
func runPlans(ctx context.Context, cmd *cobra.Command, cfg *config.Config, files []string, vars map[string]any, notifier *notify.Manager) (*runOutcome, error) {
	rep, err := newReporting(cmd, cfg, notifier != nil)
	if err != nil {
		return nil, err
	}
	defer rep.Close()

	if rep.console != nil {
		rep.console.Header(version, strings.Join(files, ", "))
	}

	loader := plan.NewLoader(plan.WithDatabase(cfg.Database))
	defer loader.Pool().Close()

	outcome := &runOutcome{}
	var plans []*plan.Plan
	for _, file := range files {
		p, err := loader.Load(file)
		if err != nil {
			rep.loadError(err)
			outcome.loadErrors++
			continue
		}
		plans = append(plans, p)
	}

	log := logging.L()
	r := runner.NewRunner(&runner.Config{
		Parallelism: cfg.Parallelism,
		StartRate:   cfg.StartRate,
		Bail:        cfg.GetBail(),
		NameFilter:  nameFlag,
	}, runner.WithLogger(log), runner.WithSink(rep.sinks))

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = runner.DefaultParallelism
	}

	results := make([]*runner.RunResult, len(plans))
	var (
		g      errgroup.Group
		bailed atomic.Bool
	)
	g.SetLimit(parallelism)
	for i, p := range plans {
		i, p := i, p
		g.Go(func() error {
			if cfg.GetBail() && bailed.Load() {
				log.Info("plan skipped after failure", zap.String("plan", p.Name))
				return nil
			}
			sc, err := planContext(cfg, p, vars)
			if err != nil {
				return withExitCode(ExitConfigError, err)
			}
			res, err := r.Run(ctx, p.Root, sc)
			if err != nil {
				return err
			}
			if !res.OK() {
				bailed.Store(true)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, res := range results {
		if res != nil {
			outcome.results = append(outcome.results, res)
		}
	}

	if err := rep.sinks.Flush(); err != nil {
		return nil, fmt.Errorf("error writing output: %w", err)
	}
	if err := rep.exportMetrics(); err != nil {
		return nil, fmt.Errorf("error writing metrics: %w", err)
	}
	if notifier != nil {
		summary := notify.Summarize(rep.collector, len(plans))
		if err := notifier.Notify(context.WithoutCancel(ctx), summary); err != nil {
			log.Warn("failed to send notification", zap.Error(err))
			fmt.Fprintf(rep.stderr, "warning: failed to send notification: %v\n", err)
		}
	}
	return outcome, nil
}

// planContext builds the variables of one plan. Later sources win: the
// HITPLAN_VAR_* environment, config variables, plan variables, the env
// file and finally --var flags.
func planContext(cfg *config.Config, p *plan.Plan, vars map[string]any) (*env.Context, error) {
	log := logging.L().With(zap.String("plan", p.Name))
	sc := env.NewContext()
	sc.SetWarnFunc(func(format string, args ...any) {
		log.Warn(fmt.Sprintf(format, args...))
	})
	sc.SetAll(env.SystemVariables(VarEnvPrefix))
	sc.SetAll(cfg.Variables)
	sc.SetAll(p.Variables)
	if cfg.EnvFile != "" {
		if err := env.ApplyDotEnv(sc, cfg.EnvFile); err != nil {
			return nil, fmt.Errorf("env file %s: %w", cfg.EnvFile, err)
		}
	}
	sc.SetAll(vars)
	return sc, nil
}

// reportExtensions names the files written for extra config reporters.
var reportExtensions = map[string]string{
	"json":  ".json",
	"junit": ".xml",
	"tap":   ".tap",
}

// reportFormats picks the format written to stdout or --output-file and the
// extra formats written under the output directory. An explicit --output
// replaces the configured reporters.
func reportFormats(flag string, reporters []string) (string, []string) {
	if flag != "" {
		return flag, nil
	}
	if len(reporters) == 0 {
		return "console", nil
	}
	var extra []string
	for _, r := range reporters[1:] {
		if _, ok := reportExtensions[strings.ToLower(r)]; ok {
			extra = append(extra, strings.ToLower(r))
		}
	}
	return reporters[0], extra
}

// reporting holds the sinks of one run and the files they write to.
type reporting struct {
	sinks    report.Multi
	console  *output.ConsoleSink
	recorder *metrics.Recorder
	exporter metrics.Exporter
	// collector feeds notifications; nil when they are off.
	collector *output.Collector
	stderr    io.Writer
	files     []*os.File
}

func newReporting(cmd *cobra.Command, cfg *config.Config, collect bool) (*reporting, error) {
	rep := &reporting{recorder: metrics.NewRecorder(), stderr: cmd.ErrOrStderr()}

	primary, extra := reportFormats(outputFlag, cfg.Reporters)
	var w io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := rep.create(outputFileFlag)
		if err != nil {
			return nil, err
		}
		w = f
	}
	sink, err := output.NewSink(primary, w, output.WithVerbose(cfg.GetVerbose()), output.WithNoColor(cfg.GetNoColor()))
	if err != nil {
		rep.Close()
		return nil, withExitCode(ExitUsageError, err)
	}
	rep.add(sink)

	for _, format := range extra {
		f, err := rep.create(filepath.Join(cfg.OutputDir, "hitplan-report"+reportExtensions[format]))
		if err != nil {
			return nil, err
		}
		sink, err := output.NewSink(format, f)
		if err != nil {
			rep.Close()
			return nil, err
		}
		rep.add(sink)
	}
	rep.sinks = append(rep.sinks, rep.recorder)
	if collect {
		rep.collector = output.NewCollector()
		rep.sinks = append(rep.sinks, rep.collector)
	}

	if metricsFileFlag != "" {
		if err := os.MkdirAll(filepath.Dir(metricsFileFlag), 0o755); err != nil {
			rep.Close()
			return nil, fmt.Errorf("cannot create metrics directory: %w", err)
		}
		rep.exporter = newExporter(metricsFormatFlag, metricsFileFlag)
	}
	return rep, nil
}

func (r *reporting) add(sink report.Sink) {
	if cs, ok := sink.(*output.ConsoleSink); ok && r.console == nil {
		r.console = cs
	}
	r.sinks = append(r.sinks, sink)
}

func (r *reporting) create(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.Close()
			return nil, fmt.Errorf("cannot create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("cannot create output file: %w", err)
	}
	r.files = append(r.files, f)
	return f, nil
}

// loadError reports a plan that could not be loaded.
func (r *reporting) loadError(err error) {
	logging.L().Error("plan not loaded", zap.Error(err))
	if r.console != nil {
		r.console.Error(err)
		return
	}
	fmt.Fprintf(r.stderr, "Error: %v\n", err)
}

func (r *reporting) exportMetrics() error {
	if r.exporter == nil {
		return nil
	}
	return r.recorder.Export(r.exporter)
}

func (r *reporting) Close() {
	for _, f := range r.files {
		_ = f.Close()
	}
	r.files = nil
}

func checkMetricsFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "json", "prometheus":
		return nil
	}
	return fmt.Errorf("unknown metrics format %q (supported: json, prometheus)", format)
}

func newExporter(format, path string) metrics.Exporter {
	if strings.ToLower(format) == "prometheus" {
		return metrics.NewPrometheusExporter(metrics.WithPrometheusFile(path))
	}
	return metrics.NewJSONExporter(metrics.WithJSONFile(path), metrics.WithJSONPretty(true))
}

// watchPlans re-runs the plans whenever a plan file under args changes.
// Runs are serialized; changes arriving during a run trigger one more run.
func watchPlans(ctx context.Context, cmd *cobra.Command, args, files []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	log := logging.L()

	// Add files and directories to watch
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				log.Warn("failed to watch directory", zap.String("dir", dir), zap.Error(err))
			}
			watchedDirs[dir] = true
		}
	}

	// Also watch the original args if they're directories
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() && !watchedDirs[path] {
					_ = watcher.Add(path)
					watchedDirs[path] = true
				}
				return nil
			})
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer
	trigger := make(chan string, 1)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) || !plan.IsPlanFile(event.Name) {
				continue
			}
			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case trigger <- name:
				default:
				}
			})

		case name := <-trigger:
			fmt.Fprintf(out, "\n\nFile changed: %s\nRe-running plans...\n\n", name)
			rerun()
			fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}
