package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInsertTime(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		numDocs int
		size    int
		attrs   int
		wantMS  int
		wantOK  bool
	}{
		{
			name:    "best time with exact attributes",
			output:  "Best time to insert 10000 documents with 10B payload in 1 attribute into indexed: 200ms",
			numDocs: 10000, size: 10, attrs: 1,
			wantMS: 200, wantOK: true,
		},
		{
			name:    "time taken wording",
			output:  "Time taken to insert 10000 documents with 200B payload in 10 attributes into collection: 450ms",
			numDocs: 10000, size: 200, attrs: 10,
			wantMS: 450, wantOK: true,
		},
		{
			name:    "attribute count drift falls back to loose pattern",
			output:  "Best time to insert 10000 documents with 1000B payload in 49 attributes into table: 800ms",
			numDocs: 10000, size: 1000, attrs: 50,
			wantMS: 800, wantOK: true,
		},
		{
			name:    "realistic nested data variant",
			output:  "Best time to insert 10000 documents with realistic nested data (~200B) into collection: 310ms",
			numDocs: 10000, size: 200, attrs: 10,
			wantMS: 310, wantOK: true,
		},
		{
			name:    "mismatched document count never matches",
			output:  "Best time to insert 5000 documents with 10B payload in 1 attribute into indexed: 200ms",
			numDocs: 10000, size: 10, attrs: 1,
			wantOK: false,
		},
		{
			name:    "unrelated output",
			output:  "Exception in thread main java.lang.RuntimeException",
			numDocs: 10000, size: 10, attrs: 1,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, ok := ParseInsertTime(tt.output, tt.numDocs, tt.size, tt.attrs)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantMS, ms)
			}
		})
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		links   int
		wantMS  *int
		wantIDs int
		wantErr string
	}{
		{
			name:    "best query time",
			output:  "Best query time for 10000 ID's with 10 element link arrays each: 500ms",
			links:   10,
			wantMS:  intp(500),
			wantIDs: 10000,
		},
		{
			name:    "total time fallback",
			output:  "Total time taken to query related documents for 10000 ID's with 10 element link arrays of related docs: 750ms",
			links:   10,
			wantMS:  intp(750),
			wantIDs: 10000,
		},
		{
			name:    "wrong link count",
			output:  "Best query time for 10000 ID's with 5 element link arrays each: 500ms",
			links:   10,
			wantErr: "Could not parse query results",
		},
		{
			name:    "no query output",
			output:  "Best time to insert 10000 documents with 10B payload in 1 attribute into indexed: 200ms",
			links:   10,
			wantErr: "Could not parse query results",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, ids, errMsg := ParseQuery(tt.output, tt.links)

			assert.Equal(t, tt.wantErr, errMsg)

			if tt.wantMS != nil {
				require.NotNil(t, ms)
				assert.Equal(t, *tt.wantMS, *ms)
				assert.Equal(t, tt.wantIDs, ids)
			} else {
				assert.Nil(t, ms)
			}
		})
	}
}

func TestThroughput(t *testing.T) {
	// 10000 docs in 200ms is 50000 docs/sec.
	assert.Equal(t, 50000.0, Throughput(10000, 200))

	// 10000 queries in 500ms is 20000 queries/sec.
	assert.Equal(t, 20000.0, Throughput(10000, 500))

	// Rounded to 2 decimals.
	assert.Equal(t, 33333.33, Throughput(10000, 300))

	// Degenerate durations never divide by zero.
	assert.Equal(t, 0.0, Throughput(10000, 0))
}

func TestParseLatency(t *testing.T) {
	output := `Some progress output
LATENCY_STATS|insert|{"min":1.2,"max":9.5,"avg":3.4,"p50":3.0,"p95":8.0,"p99":9.1,"sample_count":3,"samples":[{"ts":1000,"ms":1.2},{"ts":1001,"ms":3.0},{"ts":1002,"ms":9.5}]}
LATENCY_STATS|query|{"min":0.5,"max":2.0,"avg":1.0,"p50":0.9,"p95":1.8,"p99":2.0,"sample_count":2,"samples":[{"ts":1003,"ms":0.5},{"ts":1004,"ms":2.0}]}
Done`

	stats := ParseLatency(output)
	require.Len(t, stats, 2)

	insert := stats["insert"]
	assert.Equal(t, 1.2, insert.MinMS)
	assert.Equal(t, 9.5, insert.MaxMS)
	assert.Equal(t, 3.4, insert.AvgMS)
	assert.Equal(t, 3, insert.SampleCount)

	// Timestamps are dropped, only millisecond values survive.
	assert.Equal(t, []float64{1.2, 3.0, 9.5}, insert.Samples)

	query := stats["query"]
	assert.Equal(t, 0.9, query.P50MS)
	assert.Equal(t, []float64{0.5, 2.0}, query.Samples)
}

func TestParseLatency_MalformedLines(t *testing.T) {
	output := `LATENCY_STATS|broken
LATENCY_STATS|insert|not json`

	assert.Empty(t, ParseLatency(output))
}

func intp(v int) *int { return &v }
