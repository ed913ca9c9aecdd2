package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/framewise/shotcoach/internal/config"
	logsetup "github.com/framewise/shotcoach/internal/log"
)

const (
	appName = "shotcoach"
	version = "v1.2.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Shooting advice from clip analysis, offline and realtime",
		Version: version,
		Long: `shotcoach turns pre-extracted video features into shooting
instructions and coaches live recording sessions over websockets.

Use 'analyze' for one-shot offline analysis of a feature bundle, or
'serve' to run the HTTP and websocket server.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (trace|debug|info|warn|error)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <bundle.json>",
		Short: "Run the offline pipeline over a feature bundle",
		Long:  "Runs upload validation, feature assembly, heuristic analysis, metadata synthesis, and instruction generation over one extracted feature bundle.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().String("out", "", "Write the result JSON to this file instead of stdout")
	analyzeCmd.Flags().Bool("no-llm", false, "Rule-only synthesis without model refinement")
	analyzeCmd.Flags().Bool("quiet", false, "Suppress the progress bar")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Long:  "Serves the offline analysis API, realtime coaching websockets, health, and Prometheus metrics.",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "Listen address override")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the shotcoach version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(analyzeCmd, serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration and root logger from a
// command's merged flag set.
func loadConfig(flags *pflag.FlagSet) (config.Config, zerolog.Logger, error) {
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}

	if lvl, _ := flags.GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, logsetup.Setup(cfg.LogLevel, os.Stderr), nil
}
