// Package cli implements the redline command line.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/redline/internal/config"
	"github.com/sprite-ai/redline/internal/logging"
	"github.com/sprite-ai/redline/internal/service"
)

var (
	cfgPath  string
	logLevel string
	logFile  string

	// cfg is loaded before every command runs.
	cfg      *config.Config
	closeLog = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "redline",
	Short: "Review and apply document redactions",
	Long: `redline reviews machine-proposed redactions over a document's text.
Reject false positives, add missed spans, and generate the redacted PDF
through the analysis service.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(redactCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if logFile != "" {
		loaded.LogFile = logFile
	}
	cfg = loaded

	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	closeLog = closer

	log.Debug().Str("config", cfgPath).Str("service_url", cfg.ServiceURL).Msg("configuration loaded")
	return nil
}

// newClient builds a service client from the loaded configuration.
func newClient() *service.Client {
	return service.New(cfg.ServiceURL, cfg.RequestTimeout)
}

// warnf prints a non-fatal message to stderr.
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
