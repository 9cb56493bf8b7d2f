package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yousuf/stackmap/internal/config"
	"github.com/yousuf/stackmap/internal/logging"
	"github.com/yousuf/stackmap/internal/sourcemap"
)

// app carries the global flags and the state PersistentPreRunE builds from them
type app struct {
	configPath string
	verbose    bool
	output     string

	cfg    *config.Config
	logger *zap.Logger
	parser *sourcemap.Parser
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stackmap",
		Short: "Map minified JavaScript stack traces back to original source",
		Long: `stackmap resolves JavaScript stack frames through source map (v3) documents.

Stacks are read from stdin. Single-map commands (lookup, trace, sources) take
the document with --map; resolve fetches the document of every frame through
the resolver configured in the config file. serve exposes the same operations
as MCP tools.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case "text", "json":
			default:
				return fmt.Errorf("invalid --output %q (must be text or json)", a.output)
			}

			cfg, err := config.Resolve(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg

			if a.parser, err = cfg.Parser.Build(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log, a.verbose)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "Output format: text or json")

	rootCmd.AddCommand(
		newParseCmd(a),
		newLookupCmd(a),
		newTraceCmd(a),
		newSourcesCmd(a),
		newResolveCmd(a),
		newServeCmd(a),
		newArtifactCmd(a),
	)
	return rootCmd
}

func readInput(cmd *cobra.Command) (string, error) {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
