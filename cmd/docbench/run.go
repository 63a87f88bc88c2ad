package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docbench/docbench/pkg/bench"
	"github.com/docbench/docbench/pkg/config"
	"github.com/docbench/docbench/pkg/docker"
	"github.com/docbench/docbench/pkg/lifecycle"
	"github.com/docbench/docbench/pkg/monitor"
	"github.com/docbench/docbench/pkg/results"
	"github.com/docbench/docbench/pkg/suite"
	"github.com/docbench/docbench/pkg/sysinfo"
	"github.com/docbench/docbench/pkg/versions"
)

const defaultJarPath = "target/insertTest-1.0-jar-with-dependencies.jar"

var (
	selMongoDB     bool
	selDocumentDB  bool
	selPostgreSQL  bool
	selYugabyteDB  bool
	selCockroachDB bool
	selAtlas       bool
	selAzure       bool

	withQueries    bool
	noIndex        bool
	fullComparison bool
	randomizeOrder bool
	persistent     bool

	batchSize       int
	numDocs         int
	numRuns         int
	queryLinks      int
	monitorInterval int

	measureSizes   bool
	monitorEnabled bool
	noMonitor      bool
	largeItems     bool
	validate       bool

	jarPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark suite",
	Long:  `Run the configured test cases against the selected databases.`,
	RunE:  runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&selMongoDB, "mongodb", false, "Benchmark MongoDB")
	runCmd.Flags().BoolVar(&selDocumentDB, "documentdb", false, "Benchmark DocumentDB")
	runCmd.Flags().BoolVar(&selPostgreSQL, "postgresql", false, "Benchmark PostgreSQL")
	runCmd.Flags().BoolVar(&selYugabyteDB, "yugabytedb", false, "Benchmark YugabyteDB")
	runCmd.Flags().BoolVar(&selCockroachDB, "cockroachdb", false, "Benchmark CockroachDB")
	runCmd.Flags().BoolVar(&selAtlas, "mongodb-atlas", false, "Benchmark MongoDB Atlas (requires config)")
	runCmd.Flags().BoolVar(&selAzure, "azure-documentdb", false, "Benchmark Azure DocumentDB (requires config)")

	runCmd.Flags().BoolVarP(&withQueries, "queries", "q", false, "Run query benchmarks after inserts")
	runCmd.Flags().BoolVar(&noIndex, "no-index", false, "Run without index creation")
	runCmd.Flags().BoolVar(&fullComparison, "full-comparison", false,
		"Run the no-index and indexed passes back to back and compare")
	runCmd.Flags().BoolVar(&randomizeOrder, "randomize-order", false,
		"Randomize which full-comparison pass runs first")
	runCmd.Flags().BoolVar(&persistent, "persistent", false,
		"Keep each database container up across all of its test cases")

	runCmd.Flags().IntVarP(&batchSize, "batch-size", "b", 500, "Insert batch size")
	runCmd.Flags().IntVarP(&numDocs, "num-docs", "n", 10000, "Documents per test")
	runCmd.Flags().IntVarP(&numRuns, "num-runs", "r", 3, "Runs per test (best time wins)")
	runCmd.Flags().IntVar(&queryLinks, "query-links", 10, "Element count of query link arrays")
	runCmd.Flags().IntVar(&monitorInterval, "monitor-interval", 5, "Resource sampling interval in seconds")

	runCmd.Flags().BoolVar(&measureSizes, "measure-sizes", false, "Measure document sizes")
	runCmd.Flags().BoolVar(&monitorEnabled, "monitor", true, "Monitor host resources during tests")
	runCmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "Disable resource monitoring")
	runCmd.Flags().BoolVar(&largeItems, "large-items", false, "Include the large payload tiers")
	runCmd.Flags().BoolVar(&validate, "validate", false, "Validate inserted documents")

	runCmd.Flags().StringVar(&jarPath, "jar", defaultJarPath, "Load generator JAR path")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	targets := selectTargets(cfg, log.Warnf)
	if len(targets) == 0 {
		return fmt.Errorf("no databases selected")
	}

	cases := testCases()

	testRunID := uuid.New().String()
	fmt.Printf("Test run ID: %s\n", testRunID)

	sysInfo := sysinfo.Collect(log)
	sysInfo.JavaVersion = versions.JavaVersion(ctx)
	ciInfo := sysinfo.CollectCI()

	dockerMgr, err := docker.NewManager(log)
	if err != nil {
		return fmt.Errorf("creating docker manager: %w", err)
	}

	if err := dockerMgr.Start(ctx); err != nil {
		return fmt.Errorf("starting docker manager: %w", err)
	}

	defer func() {
		if err := dockerMgr.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop docker manager")
		}
	}()

	lifecycleMgr := lifecycle.NewManager(log, dockerMgr)
	invoker := bench.NewInvoker(log)

	newSampler := func(path string, interval time.Duration) monitor.Sampler {
		return monitor.NewSampler(log, path, interval)
	}

	runner := suite.NewRunner(log, lifecycleMgr, invoker, newSampler)

	opts := &suite.Options{
		Mode:            suite.RestartPerTest,
		NumDocs:         numDocs,
		NumRuns:         numRuns,
		BatchSize:       batchSize,
		MeasureSizes:    measureSizes,
		Validate:        validate,
		Monitor:         monitorEnabled && !noMonitor,
		MonitorInterval: time.Duration(monitorInterval) * time.Second,
		JarPath:         jarPath,
		PomPath:         "pom.xml",
		TestRunID:       testRunID,
		SystemInfo:      sysInfo,
		CIInfo:          ciInfo,
		Progress:        func(format string, a ...any) { fmt.Printf(format, a...) },
	}

	if persistent {
		opts.Mode = suite.Persistent
	}

	if withQueries {
		links := queryLinks
		opts.QueryLinks = &links
	}

	var phases []phase

	if fullComparison {
		phases = runFullComparison(ctx, runner, targets, cases, opts)
	} else {
		runTargets := targets
		if noIndex {
			runTargets = config.WithoutIndexesAll(targets)
		}

		phases = []phase{{
			Name:    phaseName(noIndex),
			Results: runner.RunSuite(ctx, runTargets, cases, opts),
		}}
	}

	for _, p := range phases {
		printSummary(p, targets, cases)
	}

	if len(phases) == 2 {
		printComparison(phases[0], phases[1], targets, cases)
	}

	persistResults(ctx, cfg, testRunID, phases, runner.Activity(), opts)

	return ctx.Err()
}

// phase is one full pass of the suite over all targets.
type phase struct {
	Name    string
	Results map[string][]*bench.TestResult
}

func phaseName(withoutIndexes bool) string {
	if withoutIndexes {
		return "no-index"
	}

	return "indexed"
}

// runFullComparison runs the suite twice: once without indexes and without
// queries, once indexed with queries, and stops all containers between the
// passes.
func runFullComparison(ctx context.Context, runner *suite.Runner, targets []config.Target, cases []config.TestCase, opts *suite.Options) []phase {
	noIndexOpts := *opts
	noIndexOpts.QueryLinks = nil

	indexedOpts := *opts
	if indexedOpts.QueryLinks == nil {
		links := queryLinks
		indexedOpts.QueryLinks = &links
	}

	passes := []struct {
		name    string
		targets []config.Target
		opts    *suite.Options
	}{
		{"no-index", config.WithoutIndexesAll(targets), &noIndexOpts},
		{"indexed", targets, &indexedOpts},
	}

	if randomizeOrder && rand.Intn(2) == 1 {
		passes[0], passes[1] = passes[1], passes[0]
	}

	fmt.Printf("\nFull comparison: running %s pass first\n", passes[0].name)

	out := make([]phase, 0, 2)

	for i, pass := range passes {
		fmt.Printf("\n=== Pass %d: %s ===\n", i+1, pass.name)

		out = append(out, phase{
			Name:    pass.name,
			Results: runner.RunSuite(ctx, pass.targets, cases, pass.opts),
		})

		runner.StopAll(ctx, pass.targets)
	}

	// Report phases in canonical order regardless of execution order.
	if out[0].Name != "no-index" {
		out[0], out[1] = out[1], out[0]
	}

	return out
}

// selectTargets resolves the database selection flags against the built-in
// target tables and the cloud config. No selection flags means everything,
// cloud targets included when their config section is enabled.
func selectTargets(cfg *config.Config, warn func(format string, args ...any)) []config.Target {
	requested := map[config.DBType]bool{
		config.MongoDB:         selMongoDB,
		config.DocumentDB:      selDocumentDB,
		config.PostgreSQL:      selPostgreSQL,
		config.YugabyteDB:      selYugabyteDB,
		config.CockroachDB:     selCockroachDB,
		config.MongoDBCloud:    selAtlas,
		config.DocumentDBAzure: selAzure,
	}

	selected := false
	for _, v := range requested {
		selected = selected || v
	}

	enabled := requested
	if !selected {
		enabled = nil
	}

	targets := config.FilterTargets(config.ContainerTargets(), enabled)
	cloud := config.FilterTargets(cfg.EnabledCloudTargets(warn), enabled)

	// An explicitly requested cloud target whose config section is not
	// enabled would otherwise vanish without a trace.
	for _, target := range config.CloudTargets() {
		if !requested[target.DBType] {
			continue
		}

		available := false

		for _, c := range cloud {
			if c.DBType == target.DBType {
				available = true

				break
			}
		}

		if !available {
			warn("%s requested but not enabled in the benchmark config (section [%s])",
				target.Name, target.ConfigSection)
		}
	}

	return append(targets, cloud...)
}

func testCases() []config.TestCase {
	cases := config.SingleAttrTests()
	if largeItems {
		cases = append(cases, config.LargeSingleAttrTests()...)
	}

	cases = append(cases, config.MultiAttrTests()...)
	if largeItems {
		cases = append(cases, config.LargeMultiAttrTests()...)
	}

	return cases
}

// persistResults stores successful documents in MongoDB and always writes
// the local JSON backup, so results never depend on Mongo availability.
func persistResults(ctx context.Context, cfg *config.Config, testRunID string, phases []phase, activity []suite.ActivityEntry, opts *suite.Options) {
	writeBackup(testRunID, phases, activity, opts)

	if cfg.Storage.ConnectionString == "" {
		log.Info("No results storage configured, JSON backup only")

		return
	}

	storage, err := results.Connect(ctx, log,
		cfg.Storage.ConnectionString, cfg.Storage.Database, cfg.Storage.Collection)
	if err != nil {
		log.WithError(err).Warn("Results storage unavailable, JSON backup only")

		return
	}

	defer func() {
		if err := storage.Close(ctx); err != nil {
			log.WithError(err).Warn("Failed to close results storage")
		}
	}()

	stored := 0

	for _, p := range phases {
		for _, rs := range p.Results {
			for _, r := range rs {
				if r.Document == nil {
					continue
				}

				if _, err := storage.Store(ctx, r.Document); err != nil {
					log.WithError(err).Warn("Failed to store result")

					continue
				}

				stored++
			}
		}
	}

	log.WithField("stored", stored).Info("Results persisted")
}
