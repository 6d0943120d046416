package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"course-import/internal/config"
	"course-import/internal/logging"
	"course-import/internal/metrics"
)

var (
	// Global flags
	cfgFile     string
	logLevel    string
	logFormat   string
	metricsFile string

	// set by PersistentPreRunE
	current *app
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "coursectl",
	Short: "Parse course directories and import them into the LMS",
	Long: `coursectl turns an unpacked course directory (a course.json or
course.yaml manifest plus referenced content files) into the canonical course
document and uploads it to the LMS import endpoint.

Examples:
  coursectl parse ./go-101                      # print the document
  coursectl parse ./go-101 --out go-101.json.br # write a compressed copy
  coursectl upload ./go-101                     # import into the LMS
  coursectl watch ./go-101 --upload             # re-import on every change`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if current != nil {
		current.flushMetrics()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console or json)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile at exit")
}

func setup(cmd *cobra.Command, args []string) error {
	// .env never overrides variables already set in the environment
	dotenvErr := godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if metricsFile != "" {
		cfg.Metrics.Textfile = metricsFile
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	switch {
	case dotenvErr == nil:
		logger.Debug().Msg("loaded .env file")
	case !errors.Is(dotenvErr, fs.ErrNotExist):
		logger.Warn().Err(dotenvErr).Msg("ignoring unreadable .env file")
	}

	current = newApp(cfg, logger, metrics.New())
	return nil
}
