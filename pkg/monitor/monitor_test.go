package monitor

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func TestSummarize(t *testing.T) {
	samples := []Sample{
		{CPUPercent: 10, IOWaitPercent: 1, DiskIOPS: 100},
		{CPUPercent: 30, IOWaitPercent: 3, DiskIOPS: 300},
		{CPUPercent: 20, IOWaitPercent: 2, DiskIOPS: 200},
	}

	summary := Summarize(samples)

	assert.Equal(t, 3, summary.Samples)
	assert.InDelta(t, 20.0, summary.AvgCPUPercent, 0.001)
	assert.Equal(t, 30.0, summary.MaxCPUPercent)
	assert.InDelta(t, 2.0, summary.AvgIOWaitPercent, 0.001)
	assert.InDelta(t, 200.0, summary.AvgDiskIOPS, 0.001)
	assert.Equal(t, 300.0, summary.MaxDiskIOPS)
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil)

	assert.Equal(t, 0, summary.Samples)
	assert.Zero(t, summary.AvgCPUPercent)
	assert.Zero(t, summary.MaxDiskIOPS)
}

func TestSamplerWritesMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")

	s := NewSampler(testLogger(), path, time.Hour)
	require.NoError(t, s.Start(context.Background()))

	summary, err := s.Stop()
	require.NoError(t, err)

	// No ticks elapsed, but the file and summary still exist.
	assert.Equal(t, 0, summary.Samples)

	_, err = os.Stat(path)
	require.NoError(t, err)

	loaded, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, summary, loaded)
}

func TestSampler_StopWithoutStart(t *testing.T) {
	s := NewSampler(testLogger(), filepath.Join(t.TempDir(), "m.json"), time.Second)

	_, err := s.Stop()
	assert.Error(t, err)
}

func TestReadSummary_MissingFile(t *testing.T) {
	_, err := ReadSummary(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestMetricsFilename(t *testing.T) {
	name := MetricsFilename("mongodb", "single_attr", 200)
	assert.Regexp(t, regexp.MustCompile(`^resource_metrics_mongodb_single_200B_\d+\.json$`), name)

	name = MetricsFilename("postgresql", "multi_attr", 4000)
	assert.Regexp(t, regexp.MustCompile(`^resource_metrics_postgresql_multi_4000B_\d+\.json$`), name)
}
