package results

import (
	"time"

	"github.com/docbench/docbench/pkg/monitor"
	"github.com/docbench/docbench/pkg/sysinfo"
)

// Document is the durable record of one benchmark execution. It is written
// to the results store once and never updated; the timestamp is set when the
// result is constructed, not when it is stored.
type Document struct {
	Timestamp       time.Time               `bson:"timestamp" json:"timestamp"`
	TestRunID       string                  `bson:"test_run_id" json:"test_run_id"`
	Database        DatabaseMeta            `bson:"database" json:"database"`
	Client          ClientMeta              `bson:"client" json:"client"`
	TestConfig      TestConfig              `bson:"test_config" json:"test_config"`
	Results         Results                 `bson:"results" json:"results"`
	SystemInfo      *sysinfo.Info           `bson:"system_info,omitempty" json:"system_info,omitempty"`
	ResourceMetrics *monitor.Summary        `bson:"resource_metrics,omitempty" json:"resource_metrics,omitempty"`
	LatencyMetrics  map[string]LatencyStats `bson:"latency_metrics,omitempty" json:"latency_metrics,omitempty"`
	CIInfo          *sysinfo.CIInfo         `bson:"ci_info,omitempty" json:"ci_info,omitempty"`
}

// DatabaseMeta identifies the engine under test.
type DatabaseMeta struct {
	Type           string `bson:"type" json:"type"`
	Version        string `bson:"version,omitempty" json:"version,omitempty"`
	DockerImage    string `bson:"docker_image,omitempty" json:"docker_image,omitempty"`
	DockerImageTag string `bson:"docker_image_tag,omitempty" json:"docker_image_tag,omitempty"`
	DockerImageID  string `bson:"docker_image_id,omitempty" json:"docker_image_id,omitempty"`
}

// ClientMeta identifies the client library the load generator used.
type ClientMeta struct {
	Library string `bson:"library,omitempty" json:"library,omitempty"`
	Version string `bson:"version,omitempty" json:"version,omitempty"`
}

// TestConfig captures the parameters of one test execution.
type TestConfig struct {
	NumDocs       int    `bson:"num_docs" json:"num_docs"`
	NumRuns       int    `bson:"num_runs" json:"num_runs"`
	BatchSize     int    `bson:"batch_size" json:"batch_size"`
	TestType      string `bson:"test_type" json:"test_type"`
	PayloadSize   int    `bson:"payload_size" json:"payload_size"`
	NumAttributes int    `bson:"num_attributes" json:"num_attributes"`
	Indexed       bool   `bson:"indexed" json:"indexed"`
	QueryTest     bool   `bson:"query_test" json:"query_test"`
	QueryLinks    *int   `bson:"query_links,omitempty" json:"query_links,omitempty"`
}

// Results holds the measured outcomes.
type Results struct {
	InsertTimeMS     int      `bson:"insert_time_ms" json:"insert_time_ms"`
	InsertThroughput float64  `bson:"insert_throughput" json:"insert_throughput"`
	QueryTimeMS      *int     `bson:"query_time_ms,omitempty" json:"query_time_ms,omitempty"`
	QueryThroughput  *float64 `bson:"query_throughput,omitempty" json:"query_throughput,omitempty"`
	Success          bool     `bson:"success" json:"success"`
	Error            string   `bson:"error,omitempty" json:"error,omitempty"`
}

// LatencyStats is the reduced per-operation latency summary parsed from the
// load generator. Samples keep only millisecond values; timestamps are
// dropped to bound document size.
type LatencyStats struct {
	MinMS       float64   `bson:"min_ms" json:"min_ms"`
	MaxMS       float64   `bson:"max_ms" json:"max_ms"`
	AvgMS       float64   `bson:"avg_ms" json:"avg_ms"`
	P50MS       float64   `bson:"p50_ms" json:"p50_ms"`
	P95MS       float64   `bson:"p95_ms" json:"p95_ms"`
	P99MS       float64   `bson:"p99_ms" json:"p99_ms"`
	SampleCount int       `bson:"sample_count" json:"sample_count"`
	Samples     []float64 `bson:"samples,omitempty" json:"samples,omitempty"`
}
