// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/gerberpack/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and convert rule sources",
}

// --- show subcommand ---

var rulesShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Print the rules loaded from a rule source",
	Long: `Show loads a rule source (the configured one when no path is given)
and prints each rule with its match tokens and header lines. Use it to
check how a spreadsheet was interpreted before running pack.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRulesShow,
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cfg.Resolve(cfg.Rules)
	if len(args) == 1 {
		path = args[0]
	}

	loaded, err := rules.Load(path)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(loaded)
	}
	fmt.Println(renderRules(loaded))
	fmt.Printf("\n%d rules from %s\n", len(loaded), path)
	return nil
}

// --- convert subcommand ---

var rulesConvertCmd = &cobra.Command{
	Use:   "convert <src> <dst>",
	Short: "Convert a rule source between CSV, JSON, and YAML",
	Long: `Convert reads src in any supported format and writes the same rules to
dst as JSON or YAML, chosen by dst's extension. Per-source token columns
keep their field names so scoping survives the round trip.`,
	Args: cobra.ExactArgs(2),
	RunE: runRulesConvert,
}

func runRulesConvert(cmd *cobra.Command, args []string) error {
	n, err := rules.Convert(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Converted %d rules: %s -> %s\n", n, args[0], args[1])
	return nil
}

func init() {
	rulesShowCmd.Flags().Bool("json", false, "output rules as JSON")

	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesConvertCmd)

	rootCmd.AddCommand(rulesCmd)
}
