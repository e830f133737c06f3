// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/gerberpack/internal/schblock"
)

var blockCmd = &cobra.Command{
	Use:   "block <dir>",
	Short: "Wrap KiCad schematics in schematic-block folders",
	Long: `Block moves each *.kicad_sch file in dir into <name>.kicad_block/ and
writes a <name>.json descriptor beside it. Descriptor defaults come from
the block.* config keys and can be overridden with flags.`,
	Args: cobra.ExactArgs(1),
	RunE: runBlock,
}

func runBlock(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	block := cfg.Block
	if cmd.Flags().Changed("description") {
		block.Description, _ = cmd.Flags().GetString("description")
	}
	if cmd.Flags().Changed("keywords") {
		block.Keywords, _ = cmd.Flags().GetString("keywords")
	}
	if cmd.Flags().Changed("reliability") {
		block.Reliability, _ = cmd.Flags().GetString("reliability")
	}

	res, err := schblock.Process(args[0], block, os.Stdout)
	if err != nil {
		return err
	}
	fmt.Printf("\n%d blocks created, %d failed\n", len(res.Blocks), len(res.Failed))
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d schematic(s) failed", len(res.Failed))
	}
	return nil
}

func init() {
	blockCmd.Flags().String("description", "", "descriptor description")
	blockCmd.Flags().String("keywords", "", "descriptor keywords")
	blockCmd.Flags().String("reliability", "", "descriptor reliability field")

	rootCmd.AddCommand(blockCmd)
}
