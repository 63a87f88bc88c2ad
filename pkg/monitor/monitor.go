// Package monitor samples host CPU and disk metrics for the duration of one
// benchmark test. The orchestrator treats a sampler as an opaque
// start/stop/collect unit; samples and a summary are written to a JSON file
// on stop so the metrics survive independently of the process.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the default sampling interval.
const DefaultInterval = 5 * time.Second

// stopGrace bounds how long Stop waits for the sampling loop to exit.
const stopGrace = 10 * time.Second

// Summary is the reduced view of one monitored window, embedded into the
// result document of the test it covers.
type Summary struct {
	AvgCPUPercent    float64 `bson:"avg_cpu_percent" json:"avg_cpu_percent"`
	MaxCPUPercent    float64 `bson:"max_cpu_percent" json:"max_cpu_percent"`
	AvgIOWaitPercent float64 `bson:"avg_iowait_percent" json:"avg_iowait_percent"`
	AvgDiskIOPS      float64 `bson:"avg_disk_iops" json:"avg_disk_iops"`
	MaxDiskIOPS      float64 `bson:"max_disk_iops" json:"max_disk_iops"`
	Samples          int     `bson:"samples" json:"samples"`
}

// Sample is one sampling tick.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	IOWaitPercent float64   `json:"iowait_percent"`
	DiskIOPS      float64   `json:"disk_iops"`
}

type metricsFile struct {
	Samples []Sample `json:"samples"`
	Summary *Summary `json:"summary"`
}

// Sampler records host metrics between Start and Stop.
type Sampler interface {
	Start(ctx context.Context) error
	Stop() (*Summary, error)
}

type sampler struct {
	log      logrus.FieldLogger
	path     string
	interval time.Duration

	cancel  context.CancelFunc
	doneCh  chan struct{}
	samples []Sample

	prevTimes *cpu.TimesStat
	prevIO    uint64
	prevAt    time.Time
}

// Ensure interface compliance.
var _ Sampler = (*sampler)(nil)

// NewSampler creates a sampler writing its metrics file to path.
func NewSampler(log logrus.FieldLogger, path string, interval time.Duration) Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &sampler{
		log:      log.WithField("component", "monitor"),
		path:     path,
		interval: interval,
	}
}

// Start launches the sampling loop.
func (s *sampler) Start(ctx context.Context) error {
	// Prime the cumulative counters so the first tick yields a delta.
	if times, err := cpu.Times(false); err == nil && len(times) > 0 {
		s.prevTimes = &times[0]
	}

	s.prevIO = totalIOOps()
	s.prevAt = time.Now()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	go s.loop(loopCtx)

	s.log.WithField("interval", s.interval).Debug("Resource monitoring started")

	return nil
}

func (s *sampler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.takeSample()
		}
	}
}

func (s *sampler) takeSample() {
	sample := Sample{Timestamp: time.Now()}

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		sample.CPUPercent = pcts[0]
	}

	if times, err := cpu.Times(false); err == nil && len(times) > 0 {
		if s.prevTimes != nil {
			cur, prev := times[0], *s.prevTimes
			totalDelta := cur.Total() - prev.Total()

			if totalDelta > 0 {
				sample.IOWaitPercent = (cur.Iowait - prev.Iowait) / totalDelta * 100
			}
		}

		s.prevTimes = &times[0]
	}

	if ops := totalIOOps(); ops >= s.prevIO {
		elapsed := sample.Timestamp.Sub(s.prevAt).Seconds()
		if elapsed > 0 {
			sample.DiskIOPS = float64(ops-s.prevIO) / elapsed
		}

		s.prevIO = ops
	}

	s.prevAt = sample.Timestamp
	s.samples = append(s.samples, sample)
}

// Stop terminates the sampling loop, writes the metrics file, and returns
// the summary over the monitored window.
func (s *sampler) Stop() (*Summary, error) {
	if s.cancel == nil {
		return nil, fmt.Errorf("sampler not started")
	}

	s.cancel()

	select {
	case <-s.doneCh:
	case <-time.After(stopGrace):
		s.log.Warn("Monitor did not stop gracefully")
	}

	summary := Summarize(s.samples)

	data, err := json.MarshalIndent(metricsFile{Samples: s.samples, Summary: summary}, "", "  ")
	if err != nil {
		return summary, fmt.Errorf("marshaling metrics: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return summary, fmt.Errorf("writing metrics file: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"samples": summary.Samples,
		"file":    s.path,
	}).Debug("Resource monitoring stopped")

	return summary, nil
}

// Summarize reduces a sample series to its summary statistics.
func Summarize(samples []Sample) *Summary {
	summary := &Summary{Samples: len(samples)}
	if len(samples) == 0 {
		return summary
	}

	var cpuSum, iowaitSum, iopsSum float64

	for _, sm := range samples {
		cpuSum += sm.CPUPercent
		iowaitSum += sm.IOWaitPercent
		iopsSum += sm.DiskIOPS

		if sm.CPUPercent > summary.MaxCPUPercent {
			summary.MaxCPUPercent = sm.CPUPercent
		}

		if sm.DiskIOPS > summary.MaxDiskIOPS {
			summary.MaxDiskIOPS = sm.DiskIOPS
		}
	}

	n := float64(len(samples))
	summary.AvgCPUPercent = cpuSum / n
	summary.AvgIOWaitPercent = iowaitSum / n
	summary.AvgDiskIOPS = iopsSum / n

	return summary
}

// ReadSummary loads the summary block back from a metrics file.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metrics file: %w", err)
	}

	var file metricsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing metrics file: %w", err)
	}

	return file.Summary, nil
}

// MetricsFilename builds the per-test metrics file name.
func MetricsFilename(dbType, testType string, size int) string {
	short := "multi"
	if testType == "single_attr" {
		short = "single"
	}

	return fmt.Sprintf("resource_metrics_%s_%s_%dB_%d.json", dbType, short, size, time.Now().Unix())
}

func totalIOOps() uint64 {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0
	}

	var total uint64
	for _, c := range counters {
		total += c.ReadCount + c.WriteCount
	}

	return total
}
