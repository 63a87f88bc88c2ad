package bench

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/docbench/docbench/pkg/results"
)

// insertPatterns returns the ordered insert-time patterns for one test. The
// first match wins. Order matters: the exact-attribute form is tried before
// the looser forms so wording drift in the tool never mismatches a result
// against the wrong test parameters.
func insertPatterns(numDocs, size, attrs int) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(
			`(?:Best time|Time taken) to insert %d documents with %dB payload in %d attributes? into \w+: (\d+)ms`,
			numDocs, size, attrs)),
		regexp.MustCompile(fmt.Sprintf(
			`(?:Best time|Time taken) to insert %d documents with %dB payload in \d+ attributes? into \w+: (\d+)ms`,
			numDocs, size)),
		regexp.MustCompile(fmt.Sprintf(
			`(?:Best time|Time taken) to insert %d documents with realistic nested data \(~%dB\) into \w+: (\d+)ms`,
			numDocs, size)),
	}
}

// ParseInsertTime extracts the insert duration in milliseconds from the load
// generator's output.
func ParseInsertTime(output string, numDocs, size, attrs int) (int, bool) {
	for _, re := range insertPatterns(numDocs, size, attrs) {
		if m := re.FindStringSubmatch(output); m != nil {
			ms, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}

			return ms, true
		}
	}

	return 0, false
}

// ParseQuery extracts the query duration and the number of IDs queried.
// A missing match returns a nil time plus a descriptive error string; query
// parse failures never fail the test.
func ParseQuery(output string, links int) (*int, int, string) {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(
			`Best query time for (\d+) ID's with %d element link arrays.*?: (\d+)ms`, links)),
		regexp.MustCompile(fmt.Sprintf(
			`Total time taken to query related documents for (\d+) ID's with %d element link arrays.*?: (\d+)ms`, links)),
	}

	for _, re := range patterns {
		m := re.FindStringSubmatch(output)
		if m == nil {
			continue
		}

		ids, err1 := strconv.Atoi(m[1])
		ms, err2 := strconv.Atoi(m[2])

		if err1 != nil || err2 != nil {
			continue
		}

		return &ms, ids, ""
	}

	return nil, 0, "Could not parse query results"
}

// Throughput computes operations per second, rounded to 2 decimals. Always
// derived from count and duration, never read from the tool's own figure.
func Throughput(count, timeMS int) float64 {
	if timeMS <= 0 {
		return 0
	}

	return math.Round(float64(count)/(float64(timeMS)/1000)*100) / 100
}

// latencyPrefix marks the machine-readable latency lines in the output.
const latencyPrefix = "LATENCY_STATS|"

type rawLatency struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Avg         float64 `json:"avg"`
	P50         float64 `json:"p50"`
	P95         float64 `json:"p95"`
	P99         float64 `json:"p99"`
	SampleCount int     `json:"sample_count"`
	Samples     []struct {
		TS float64 `json:"ts"`
		MS float64 `json:"ms"`
	} `json:"samples"`
}

// ParseLatency extracts per-operation latency statistics from
// `LATENCY_STATS|<op>|<json>` lines. Sample timestamps are dropped; only the
// millisecond values are kept, bounding stored document size.
func ParseLatency(output string) map[string]results.LatencyStats {
	var stats map[string]results.LatencyStats

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, latencyPrefix) {
			continue
		}

		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}

		var raw rawLatency
		if err := json.Unmarshal([]byte(parts[2]), &raw); err != nil {
			continue
		}

		entry := results.LatencyStats{
			MinMS:       raw.Min,
			MaxMS:       raw.Max,
			AvgMS:       raw.Avg,
			P50MS:       raw.P50,
			P95MS:       raw.P95,
			P99MS:       raw.P99,
			SampleCount: raw.SampleCount,
		}

		for _, s := range raw.Samples {
			entry.Samples = append(entry.Samples, s.MS)
		}

		if stats == nil {
			stats = make(map[string]results.LatencyStats)
		}

		stats[parts[1]] = entry
	}

	return stats
}
