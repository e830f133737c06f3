// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the gerberpack CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/gerberpack/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is built in PersistentPreRunE and synced after every command.
var logger = zap.NewNop()

// rootCmd is the base command for the gerberpack CLI.
var rootCmd = &cobra.Command{
	Use:   "gerberpack",
	Short: "Package CAD Gerber exports for PCB fabrication vendors",
	Long: `gerberpack turns the Gerber and drill files exported by a CAD tool into
the bundle a PCB vendor expects. A ruleset maps each exported layer to the
vendor's filename and header text; pack stages the renamed files, prepends
the headers, and writes a timestamped ZIP.

Settings come from gerberpack.yaml, GERBERPACK_* environment variables, and
flags, in increasing order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./gerberpack.yaml or ~/.config/gerberpack/gerberpack.yaml)")
	rootCmd.PersistentFlags().String("base", "", "base directory that relative paths resolve against (default: working directory)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging on stderr")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gerberpack")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "gerberpack"))
		}
	}

	viper.SetEnvPrefix("GERBERPACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper(), types.DefaultPackConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d types.PackConfig) {
	v.SetDefault("base_dir", d.BaseDir)
	v.SetDefault("rules", d.Rules)
	v.SetDefault("staging_dir", d.StagingDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("source_selection", string(d.SourceSelection))
	v.SetDefault("match.policy", string(d.Match.Policy))
	v.SetDefault("match.normalize", string(d.Match.Normalize))
	v.SetDefault("header_dir", d.HeaderDir)
	v.SetDefault("bundle.prefix_mode", string(d.Bundle.PrefixMode))
	v.SetDefault("bundle.prefix", d.Bundle.Prefix)
	v.SetDefault("bundle.level", d.Bundle.Level)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("block.description", d.Block.Description)
	v.SetDefault("block.keywords", d.Block.Keywords)
	v.SetDefault("block.reliability", d.Block.Reliability)
}

// loadConfig resolves the PackConfig from defaults, the config file,
// the environment, and the persistent --base flag.
func loadConfig(cmd *cobra.Command) (types.PackConfig, error) {
	return decodeConfig(viper.GetViper(), cmd)
}

func decodeConfig(v *viper.Viper, cmd *cobra.Command) (types.PackConfig, error) {
	cfg := types.DefaultPackConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, &types.ConfigError{Path: v.ConfigFileUsed(), Err: err}
	}
	if base, _ := cmd.Flags().GetString("base"); base != "" {
		cfg.BaseDir = base
	}
	return cfg, validateConfig(cfg)
}

// validateConfig rejects enum values no component understands.
func validateConfig(cfg types.PackConfig) error {
	bad := func(key, val string) error {
		return &types.ConfigError{Err: fmt.Errorf("invalid %s %q", key, val)}
	}
	switch cfg.SourceSelection {
	case types.SelectFirst, types.SelectAll:
	default:
		return bad("source_selection", string(cfg.SourceSelection))
	}
	switch cfg.Match.Policy {
	case types.FirstMatchWins, types.LastMatchWins:
	default:
		return bad("match.policy", string(cfg.Match.Policy))
	}
	switch cfg.Match.Normalize {
	case types.NormalizeNone, types.NormalizeStandard:
	default:
		return bad("match.normalize", string(cfg.Match.Normalize))
	}
	switch cfg.Bundle.PrefixMode {
	case types.PrefixFolder, types.PrefixSourceFile, types.PrefixLiteral:
	default:
		return bad("bundle.prefix_mode", string(cfg.Bundle.PrefixMode))
	}
	for i, s := range cfg.Sources {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Dir) == "" {
			return &types.ConfigError{Err: fmt.Errorf("source %d needs both name and dir", i+1)}
		}
	}
	return nil
}

// newLogger builds the diagnostic logger. Progress output goes to stdout;
// the logger writes console-encoded entries to stderr at warn level, or
// debug level when verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.DisableStacktrace = true
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

// exitCode maps an error to the process exit status: 2 for configuration
// problems, 1 for anything else.
func exitCode(err error) int {
	var cfgErr *types.ConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
