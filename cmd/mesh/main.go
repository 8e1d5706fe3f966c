package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mesh",
		Short: "Mesh - real-time voice-to-UI pipeline",
		Long: `Mesh turns spoken design intent into live UI components.

Each subcommand runs one service of the pipeline. Services communicate
over Redis pub/sub and are configured via environment variables.`,
	}

	rootCmd.AddCommand(
		orchestratorCmd(),
		sttCmd(),
		mapperCmd(),
		triggerCmd(),
		intentCmd(),
		codegenCmd(),
		insightsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("mesh: command failed", "error", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Mesh %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}
