package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/docbench/docbench/pkg/bench"
	"github.com/docbench/docbench/pkg/config"
	"github.com/docbench/docbench/pkg/suite"
)

// printSummary renders one result table per target for a finished phase.
func printSummary(p phase, targets []config.Target, cases []config.TestCase) {
	fmt.Printf("\n=== Results (%s) ===\n", p.Name)

	for _, target := range targets {
		rs, ok := p.Results[target.Key]
		if !ok {
			continue
		}

		fmt.Printf("\n%s\n", target.Name)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Test", "Insert (ms)", "Docs/sec", "Query (ms)", "Status"})
		table.SetAutoFormatHeaders(false)

		for i, r := range rs {
			desc := ""
			if i < len(cases) {
				desc = cases[i].Desc
			}

			table.Append(summaryRow(desc, r))
		}

		table.Render()
	}
}

func summaryRow(desc string, r *bench.TestResult) []string {
	if !r.Success {
		return []string{desc, "-", "-", "-", "FAILED: " + r.Error}
	}

	queryCol := "-"
	if r.QueryTimeMS != nil {
		queryCol = fmt.Sprintf("%d", *r.QueryTimeMS)
	} else if r.QueryError != "" {
		queryCol = r.QueryError
	}

	return []string{
		desc,
		fmt.Sprintf("%d", r.TimeMS),
		fmt.Sprintf("%.2f", r.Throughput),
		queryCol,
		"OK",
	}
}

// printComparison renders the no-index vs indexed delta table after a full
// comparison run. Positive deltas mean the indexed pass was slower.
func printComparison(noIndex, indexed phase, targets []config.Target, cases []config.TestCase) {
	fmt.Printf("\n=== Index impact (insert time, %s vs %s) ===\n", noIndex.Name, indexed.Name)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Database", "Test", "No index (ms)", "Indexed (ms)", "Delta"})
	table.SetAutoFormatHeaders(false)

	for _, target := range targets {
		before := noIndex.Results[target.Key]
		after := indexed.Results[target.Key]

		for i := range cases {
			if i >= len(before) || i >= len(after) {
				break
			}

			table.Append(comparisonRow(target.Name, cases[i].Desc, before[i], after[i]))
		}
	}

	table.Render()
}

func comparisonRow(database, desc string, before, after *bench.TestResult) []string {
	if !before.Success || !after.Success {
		return []string{database, desc, "-", "-", "incomplete"}
	}

	delta := "n/a"
	if before.TimeMS > 0 {
		pct := (float64(after.TimeMS) - float64(before.TimeMS)) / float64(before.TimeMS) * 100
		delta = fmt.Sprintf("%+.1f%%", pct)
	}

	return []string{
		database,
		desc,
		fmt.Sprintf("%d", before.TimeMS),
		fmt.Sprintf("%d", after.TimeMS),
		delta,
	}
}

// backupFile is the always-written local record of a run.
type backupFile struct {
	TestRunID string                `json:"test_run_id"`
	Timestamp time.Time             `json:"timestamp"`
	Config    backupConfig          `json:"config"`
	Phases    []backupPhase         `json:"phases"`
	Activity  []suite.ActivityEntry `json:"activity"`
}

type backupConfig struct {
	NumDocs    int    `json:"num_docs"`
	NumRuns    int    `json:"num_runs"`
	BatchSize  int    `json:"batch_size"`
	QueryLinks *int   `json:"query_links,omitempty"`
	Mode       string `json:"mode"`
}

type backupPhase struct {
	Name    string                         `json:"name"`
	Results map[string][]*bench.TestResult `json:"results"`
}

// writeBackup writes the local JSON backup of the whole run. Failures are
// logged; the backup never aborts anything.
func writeBackup(testRunID string, phases []phase, activity []suite.ActivityEntry, opts *suite.Options) {
	backup := backupFile{
		TestRunID: testRunID,
		Timestamp: time.Now().UTC(),
		Config: backupConfig{
			NumDocs:    opts.NumDocs,
			NumRuns:    opts.NumRuns,
			BatchSize:  opts.BatchSize,
			QueryLinks: opts.QueryLinks,
			Mode:       opts.Mode.String(),
		},
		Activity: activity,
	}

	for _, p := range phases {
		backup.Phases = append(backup.Phases, backupPhase{Name: p.Name, Results: p.Results})
	}

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		log.WithError(err).Warn("Failed to marshal results backup")

		return
	}

	path := fmt.Sprintf("benchmark_results_%d.json", time.Now().Unix())

	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.WithError(err).Warn("Failed to write results backup")

		return
	}

	fmt.Printf("\nResults backup written to %s\n", path)
}
