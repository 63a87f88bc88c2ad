// Package bench invokes the Java load generator and turns its textual
// output into structured test results. Invocation is one-shot: a failed or
// timed-out run is recorded, never retried.
package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/docbench/docbench/pkg/config"
	"github.com/docbench/docbench/pkg/results"
	"github.com/docbench/docbench/pkg/sysinfo"
	"github.com/docbench/docbench/pkg/versions"
)

// RunTimeout is the hard wall-clock limit for one load-generator run.
const RunTimeout = 900 * time.Second

// Options carries everything one load-generator invocation needs, plus the
// run metadata folded into the result document.
type Options struct {
	Flags      []string
	Size       int
	Attrs      int
	NumDocs    int
	NumRuns    int
	BatchSize  int
	QueryLinks *int

	MeasureSizes   bool
	Validate       bool
	CollectLatency bool

	ConnString string
	JarPath    string
	PomPath    string

	DBType     config.DBType
	TestRunID  string
	Database   *versions.Database
	SystemInfo *sysinfo.Info
	CIInfo     *sysinfo.CIInfo
}

// TestResult is the outcome of one load-generator invocation. Query parsing
// is an independent outcome: a missing query time never fails the result.
type TestResult struct {
	Success    bool    `json:"success"`
	TimeMS     int     `json:"time_ms"`
	Throughput float64 `json:"throughput"`

	QueryTimeMS     *int     `json:"query_time_ms,omitempty"`
	QueryThroughput *float64 `json:"query_throughput,omitempty"`
	QueriesExecuted int      `json:"queries_executed,omitempty"`
	QueryError      string   `json:"query_error,omitempty"`

	LatencyMetrics map[string]results.LatencyStats `json:"latency_metrics,omitempty"`

	Error    string            `json:"error,omitempty"`
	Document *results.Document `json:"document,omitempty"`
}

// Invoker runs one benchmark test. It exists as an interface so the
// orchestrator can be tested without Java.
type Invoker interface {
	Run(ctx context.Context, opts *Options) *TestResult
}

type invoker struct {
	log logrus.FieldLogger
}

// Ensure interface compliance.
var _ Invoker = (*invoker)(nil)

// NewInvoker creates a load-generator invoker.
func NewInvoker(log logrus.FieldLogger) Invoker {
	return &invoker{log: log.WithField("component", "bench")}
}

// buildArgs assembles the java argument vector for one invocation.
func buildArgs(opts *Options) []string {
	args := make([]string, 0, len(opts.Flags)+16)

	if opts.ConnString != "" {
		args = append(args, fmt.Sprintf("-Dconn=%s", opts.ConnString))
	}

	args = append(args, "-jar", opts.JarPath)
	args = append(args, opts.Flags...)
	args = append(args,
		"-s", strconv.Itoa(opts.Size),
		"-n", strconv.Itoa(opts.Attrs),
		"-r", strconv.Itoa(opts.NumRuns),
		"-b", strconv.Itoa(opts.BatchSize),
	)

	if opts.MeasureSizes {
		args = append(args, "-size")
	}

	if opts.Validate {
		args = append(args, "-v")
	}

	if opts.CollectLatency {
		args = append(args, "-latency")
	}

	if opts.QueryLinks != nil {
		args = append(args, "-q", strconv.Itoa(*opts.QueryLinks))
	}

	return append(args, strconv.Itoa(opts.NumDocs))
}

// Run executes the load generator and parses its output.
func (i *invoker) Run(ctx context.Context, opts *Options) *TestResult {
	log := i.log.WithFields(logrus.Fields{
		"database": opts.DBType,
		"size":     opts.Size,
		"attrs":    opts.Attrs,
	})

	// java exits nonzero for a missing JAR, which would otherwise surface
	// as a parse failure; discriminate it before launching.
	if _, err := os.Stat(opts.JarPath); err != nil {
		log.WithField("jar", opts.JarPath).Error("Load generator JAR not found")

		return &TestResult{Error: fmt.Sprintf("JAR file not found: %s", opts.JarPath)}
	}

	args := buildArgs(opts)

	runCtx, cancel := context.WithTimeout(ctx, RunTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "java", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithField("args", strings.Join(args, " ")).Debug("Invoking load generator")

	runErr := cmd.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.Error("Load generator timed out")

		return &TestResult{Error: "Timeout"}
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		// Launch failure, before the tool ever produced output.
		return &TestResult{Error: runErr.Error()}
	}

	output := stdout.String()

	timeMS, ok := ParseInsertTime(output, opts.NumDocs, opts.Size, opts.Attrs)
	if !ok {
		i.dumpDiagnostics(log, args, cmd, stderr.String(), output)

		return &TestResult{Error: "Could not parse output"}
	}

	result := &TestResult{
		Success:    true,
		TimeMS:     timeMS,
		Throughput: Throughput(opts.NumDocs, timeMS),
	}

	if opts.QueryLinks != nil {
		queryMS, ids, queryErr := ParseQuery(output, *opts.QueryLinks)
		result.QueryTimeMS = queryMS
		result.QueryError = queryErr

		if queryMS != nil {
			result.QueriesExecuted = ids
			tput := Throughput(ids, *queryMS)
			result.QueryThroughput = &tput
		}
	}

	if opts.CollectLatency {
		result.LatencyMetrics = ParseLatency(output)
	}

	result.Document = i.buildDocument(ctx, opts, result)

	return result
}

// dumpDiagnostics prints the context an operator needs to understand a parse
// failure: command, exit code, stderr head, and the output tail.
func (i *invoker) dumpDiagnostics(log logrus.FieldLogger, args []string, cmd *exec.Cmd, stderr, stdout string) {
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if len(stderr) > 500 {
		stderr = stderr[:500]
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}

	log.WithFields(logrus.Fields{
		"command":   "java " + strings.Join(args, " "),
		"exit_code": exitCode,
		"stderr":    stderr,
	}).Error("Could not parse load generator output")

	for _, line := range lines {
		log.WithField("stdout", line).Error("Output tail")
	}
}

// buildDocument assembles the durable result document for a successful test.
// The timestamp is fixed here, at construction.
func (i *invoker) buildDocument(ctx context.Context, opts *Options, result *TestResult) *results.Document {
	doc := &results.Document{
		Timestamp: time.Now().UTC(),
		TestRunID: opts.TestRunID,
		Database:  results.DatabaseMeta{Type: string(opts.DBType)},
		TestConfig: results.TestConfig{
			NumDocs:       opts.NumDocs,
			NumRuns:       opts.NumRuns,
			BatchSize:     opts.BatchSize,
			TestType:      testType(opts.Attrs),
			PayloadSize:   opts.Size,
			NumAttributes: opts.Attrs,
			Indexed:       indexed(opts.Flags),
			QueryTest:     opts.QueryLinks != nil,
			QueryLinks:    opts.QueryLinks,
		},
		Results: results.Results{
			InsertTimeMS:     result.TimeMS,
			InsertThroughput: result.Throughput,
			QueryTimeMS:      result.QueryTimeMS,
			QueryThroughput:  result.QueryThroughput,
			Success:          true,
		},
		SystemInfo:     opts.SystemInfo,
		LatencyMetrics: result.LatencyMetrics,
		CIInfo:         opts.CIInfo,
	}

	if opts.Database != nil {
		doc.Database.Version = opts.Database.Version
		doc.Database.DockerImage = opts.Database.DockerImage
		doc.Database.DockerImageTag = opts.Database.DockerImageTag
		doc.Database.DockerImageID = opts.Database.DockerImageID
	}

	client := versions.CollectClient(opts.DBType, opts.PomPath)
	doc.Client = results.ClientMeta{Library: client.Library, Version: client.Version}

	if opts.SystemInfo != nil && opts.SystemInfo.JavaVersion == "" {
		opts.SystemInfo.JavaVersion = versions.JavaVersion(ctx)
	}

	return doc
}

func testType(attrs int) string {
	if attrs == 1 {
		return "single_attr"
	}

	return "multi_attr"
}

func indexed(flags []string) bool {
	for _, f := range flags {
		if f == "-i" || f == "-mv" {
			return true
		}
	}

	return false
}
