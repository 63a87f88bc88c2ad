package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/docbench/docbench/pkg/config"
	"github.com/docbench/docbench/pkg/results"
)

var (
	resultsDatabase string
	resultsLimit    int64
	resultsVersions bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored benchmark results",
	Long:  `Query the results storage for recent runs or the stored version inventory.`,
	RunE:  listResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.Flags().StringVar(&resultsDatabase, "database", "",
		"Filter by database type (mongodb, documentdb, postgresql, yugabytedb, cockroachdb)")
	resultsCmd.Flags().Int64Var(&resultsLimit, "limit", 20, "Maximum results to list")
	resultsCmd.Flags().BoolVar(&resultsVersions, "versions", false,
		"List the distinct database and client versions instead")
}

func listResults(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if cfg.Storage.ConnectionString == "" {
		return fmt.Errorf("no results storage configured in %s", cfgFile)
	}

	ctx := cmd.Context()

	storage, err := results.Connect(ctx, log,
		cfg.Storage.ConnectionString, cfg.Storage.Database, cfg.Storage.Collection)
	if err != nil {
		return fmt.Errorf("connecting to results storage: %w", err)
	}

	defer func() {
		if err := storage.Close(ctx); err != nil {
			log.WithError(err).Warn("Failed to close results storage")
		}
	}()

	if resultsVersions {
		return listVersions(cmd, storage)
	}

	var filter bson.D
	if resultsDatabase != "" {
		filter = bson.D{{Key: "database.type", Value: resultsDatabase}}
	}

	docs, err := storage.Find(ctx, filter, nil, resultsLimit)
	if err != nil {
		return fmt.Errorf("querying results: %w", err)
	}

	if len(docs) == 0 {
		fmt.Println("No results found")

		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Timestamp", "Database", "Version", "Test", "Size", "Insert (ms)", "Docs/sec"})
	table.SetAutoFormatHeaders(false)

	for _, doc := range docs {
		table.Append([]string{
			doc.Timestamp.Format("2006-01-02 15:04:05"),
			doc.Database.Type,
			doc.Database.Version,
			doc.TestConfig.TestType,
			fmt.Sprintf("%dB", doc.TestConfig.PayloadSize),
			fmt.Sprintf("%d", doc.Results.InsertTimeMS),
			fmt.Sprintf("%.2f", doc.Results.InsertThroughput),
		})
	}

	table.Render()

	return nil
}

func listVersions(cmd *cobra.Command, storage results.Storage) error {
	set, err := storage.Versions(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}

	fmt.Printf("Database versions: %s\n", strings.Join(set.DatabaseVersions, ", "))
	fmt.Printf("Client versions:   %s\n", strings.Join(set.ClientVersions, ", "))

	return nil
}
