// Command floorcast renders floor replacements from the command line, either
// directly against the generator or through a floorcast server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kiranshivaraju/floorcast/internal/config"
	"github.com/kiranshivaraju/floorcast/internal/generate"
	"github.com/kiranshivaraju/floorcast/pkg/models"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "floorcast",
		Short: "Floor replacement renders for room photos",
		Long: "floorcast replaces the floor in room photographs with a catalog product. " +
			"It can call the image generator directly or submit jobs to a floorcast server.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelInfo
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newSubmitCmd())
	cmd.AddCommand(newCatalogCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "floorcast %s (commit: %s)\n", Version, Commit)
		},
	}
}

// newGenerator builds the generator from GENERATOR_* and GEMINI_* variables.
// A non-empty provider overrides GENERATOR_PROVIDER.
func newGenerator(provider string) (models.ImageGenerator, error) {
	if provider != "" {
		if err := os.Setenv("GENERATOR_PROVIDER", provider); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadGeneration()
	if err != nil {
		return nil, fmt.Errorf("generator config: %w", err)
	}
	return generate.NewGenerator(cfg)
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
