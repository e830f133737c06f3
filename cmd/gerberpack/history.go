// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/gerberpack/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query past pack runs",
	Long: `History reads the run database written by pack. Runs are addressed by
their ID or any unique prefix of it, as printed by pack and history list.`,
}

// --- list subcommand ---

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	fmt.Println(renderRuns(runs))
	return nil
}

// --- show subcommand ---

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the per-rule outcomes of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Print(renderSummary(summary))
	return nil
}

// --- export subcommand ---

var historyExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export one run summary as YAML or JSON",
	Long: `Export writes the full summary of a run. With --output the format is
taken from the file extension unless --format is given; without it the
summary is written to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryExport,
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if output == "" {
		return store.Export(ctx, args[0], format, os.Stdout)
	}

	if !cmd.Flags().Changed("format") {
		format = history.FormatFor(output)
	}
	switch format {
	case history.FormatYAML:
		err = store.ExportYAML(ctx, args[0], output)
	case history.FormatJSON:
		err = store.ExportJSON(ctx, args[0], output)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", output)
	return nil
}

// --- shared helpers ---

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return history.NewStore(cfg.Resolve(cfg.History.Path))
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")

	historyExportCmd.Flags().String("format", history.FormatYAML, "export format: yaml or json")
	historyExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)

	rootCmd.AddCommand(historyCmd)
}
