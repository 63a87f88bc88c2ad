// Package suite orchestrates benchmark runs across targets and test cases.
// It owns sequencing only; container work, invocation, and persistence live
// behind interfaces so the orchestration logic is testable with fakes.
package suite

import (
	"context"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/docbench/docbench/pkg/bench"
	"github.com/docbench/docbench/pkg/config"
	"github.com/docbench/docbench/pkg/lifecycle"
	"github.com/docbench/docbench/pkg/monitor"
	"github.com/docbench/docbench/pkg/sysinfo"
	"github.com/docbench/docbench/pkg/versions"
)

// Mode selects the container orchestration strategy.
type Mode int

const (
	// RestartPerTest gives every (target, case) pair a fresh container.
	RestartPerTest Mode = iota

	// Persistent keeps one container up across all cases of a target.
	Persistent
)

// Options configures one suite run.
type Options struct {
	Mode Mode

	NumDocs    int
	NumRuns    int
	BatchSize  int
	QueryLinks *int

	MeasureSizes bool
	Validate     bool

	Monitor         bool
	MonitorInterval time.Duration
	MetricsDir      string

	JarPath string
	PomPath string

	TestRunID  string
	SystemInfo *sysinfo.Info
	CIInfo     *sysinfo.CIInfo

	// Progress receives one line per finished test for operator output.
	Progress func(format string, args ...any)
}

// ActivityEntry records one genuine container boundary, for the run log.
type ActivityEntry struct {
	Database  string    `json:"database"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// SamplerFactory builds a resource sampler for one test. Injected so tests
// can observe sampler lifecycles without touching gopsutil.
type SamplerFactory func(path string, interval time.Duration) monitor.Sampler

// Runner sequences a benchmark suite.
type Runner struct {
	log        logrus.FieldLogger
	lifecycle  lifecycle.Manager
	invoker    bench.Invoker
	newSampler SamplerFactory

	activity []ActivityEntry
}

// NewRunner creates a suite runner.
func NewRunner(log logrus.FieldLogger, lc lifecycle.Manager, invoker bench.Invoker, newSampler SamplerFactory) *Runner {
	return &Runner{
		log:        log.WithField("component", "suite"),
		lifecycle:  lc,
		invoker:    invoker,
		newSampler: newSampler,
	}
}

// StopAll stops every container target, used at pass boundaries.
func (r *Runner) StopAll(ctx context.Context, targets []config.Target) {
	r.lifecycle.StopAll(ctx, targets)
}

// Activity returns the container boundary log, in order of occurrence.
func (r *Runner) Activity() []ActivityEntry {
	return r.activity
}

// RunSuite executes every test case against every target and returns the
// per-target results. Each result slice has exactly one entry per case,
// failed tests included.
func (r *Runner) RunSuite(ctx context.Context, targets []config.Target, cases []config.TestCase, opts *Options) map[string][]*bench.TestResult {
	out := make(map[string][]*bench.TestResult, len(targets))

	if opts.Mode == Persistent {
		r.runPersistent(ctx, targets, cases, opts, out)
	} else {
		r.runRestartPerTest(ctx, targets, cases, opts, out)
	}

	return out
}

// runRestartPerTest loops cases outermost so each engine gets a cold start
// for every case, keeping measurements independent of prior load.
func (r *Runner) runRestartPerTest(ctx context.Context, targets []config.Target, cases []config.TestCase, opts *Options, out map[string][]*bench.TestResult) {
	for _, tc := range cases {
		for _, target := range targets {
			result := r.runIsolated(ctx, target, tc, opts)
			out[target.Key] = append(out[target.Key], result)

			r.report(opts, target, tc, result)
		}
	}
}

func (r *Runner) runIsolated(ctx context.Context, target config.Target, tc config.TestCase, opts *Options) *bench.TestResult {
	up, db := r.start(ctx, target)
	if !up {
		return &bench.TestResult{Error: startFailure(target)}
	}

	result := r.runOne(ctx, target, tc, db, opts)

	r.stop(ctx, target)

	return result
}

// runPersistent keeps each container up for all of its cases. Consecutive
// targets sharing a container reuse the running engine: start and stop
// happen only at genuine container boundaries.
func (r *Runner) runPersistent(ctx context.Context, targets []config.Target, cases []config.TestCase, opts *Options, out map[string][]*bench.TestResult) {
	var (
		current string
		up      bool
		db      *versions.Database
	)

	for _, target := range targets {
		if target.Cloud {
			cloudUp, cloudDB := r.start(ctx, target)
			if !cloudUp {
				r.fillFailed(out, target, cases)

				continue
			}

			r.runCases(ctx, target, cases, cloudDB, opts, out)

			continue
		}

		if target.Container != current {
			if current != "" {
				r.stopByContainer(ctx, targets, current)
			}

			up, db = r.start(ctx, target)
			current = target.Container

			if !up {
				current = ""
			}
		}

		if !up {
			r.fillFailed(out, target, cases)

			continue
		}

		r.runCases(ctx, target, cases, db, opts, out)
	}

	if current != "" {
		r.stopByContainer(ctx, targets, current)
	}
}

func (r *Runner) runCases(ctx context.Context, target config.Target, cases []config.TestCase, db *versions.Database, opts *Options, out map[string][]*bench.TestResult) {
	for _, tc := range cases {
		result := r.runOne(ctx, target, tc, db, opts)
		out[target.Key] = append(out[target.Key], result)

		r.report(opts, target, tc, result)
	}
}

// fillFailed records one failed result per case for a target that never
// became reachable.
func (r *Runner) fillFailed(out map[string][]*bench.TestResult, target config.Target, cases []config.TestCase) {
	msg := startFailure(target)
	for range cases {
		out[target.Key] = append(out[target.Key], &bench.TestResult{Error: msg})
	}
}

// start brings a target up. Cloud targets are only pinged, never run as
// containers.
func (r *Runner) start(ctx context.Context, target config.Target) (bool, *versions.Database) {
	if target.Cloud {
		return r.lifecycle.StartCloud(ctx, target)
	}

	up, db := r.lifecycle.Start(ctx, target)
	if up {
		r.record(target.Key, "started")
	}

	return up, db
}

func (r *Runner) stop(ctx context.Context, target config.Target) {
	if target.Cloud {
		return
	}

	if err := r.lifecycle.Stop(ctx, target); err != nil {
		r.log.WithError(err).WithField("database", target.Key).Warn("Failed to stop database")
	}

	r.record(target.Key, "stopped")
}

func (r *Runner) stopByContainer(ctx context.Context, targets []config.Target, container string) {
	for _, t := range targets {
		if !t.Cloud && t.Container == container {
			r.stop(ctx, t)

			return
		}
	}
}

// runOne executes a single test against a running target, with resource
// monitoring for container targets and latency collection for cloud ones.
func (r *Runner) runOne(ctx context.Context, target config.Target, tc config.TestCase, db *versions.Database, opts *Options) *bench.TestResult {
	benchOpts := &bench.Options{
		Flags:          target.Flags,
		Size:           tc.Size,
		Attrs:          tc.Attrs,
		NumDocs:        opts.NumDocs,
		NumRuns:        opts.NumRuns,
		BatchSize:      opts.BatchSize,
		QueryLinks:     opts.QueryLinks,
		MeasureSizes:   opts.MeasureSizes,
		Validate:       opts.Validate,
		CollectLatency: target.Cloud,
		ConnString:     target.ConnString(),
		JarPath:        opts.JarPath,
		PomPath:        opts.PomPath,
		DBType:         target.DBType,
		TestRunID:      opts.TestRunID,
		Database:       db,
		SystemInfo:     opts.SystemInfo,
		CIInfo:         opts.CIInfo,
	}

	var sampler monitor.Sampler

	if opts.Monitor && !target.Cloud && r.newSampler != nil {
		path := filepath.Join(opts.MetricsDir,
			monitor.MetricsFilename(string(target.DBType), tc.TestType(), tc.Size))

		sampler = r.newSampler(path, opts.MonitorInterval)
		if err := sampler.Start(ctx); err != nil {
			r.log.WithError(err).Warn("Failed to start resource monitor")

			sampler = nil
		}
	}

	result := r.invoker.Run(ctx, benchOpts)

	if sampler != nil {
		summary, err := sampler.Stop()
		if err != nil {
			r.log.WithError(err).Warn("Failed to collect resource metrics")
		} else if result.Document != nil {
			result.Document.ResourceMetrics = summary
		}
	}

	return result
}

func (r *Runner) record(database, event string) {
	r.activity = append(r.activity, ActivityEntry{
		Database:  database,
		Event:     event,
		Timestamp: time.Now().UTC(),
	})
}

func (r *Runner) report(opts *Options, target config.Target, tc config.TestCase, result *bench.TestResult) {
	if opts.Progress == nil {
		return
	}

	if result.Success {
		opts.Progress("  ✓ %s / %s: %dms (%.2f docs/sec)\n",
			target.Name, tc.Desc, result.TimeMS, result.Throughput)
	} else {
		opts.Progress("  ✗ %s / %s: %s\n", target.Name, tc.Desc, result.Error)
	}
}

func startFailure(target config.Target) string {
	if target.Cloud {
		return "Cloud database unreachable"
	}

	return "Database failed to start"
}

// String renders the mode for logs.
func (m Mode) String() string {
	if m == Persistent {
		return "persistent"
	}

	return "restart-per-test"
}
