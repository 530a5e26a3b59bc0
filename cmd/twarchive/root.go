package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"twarchive/pkg/config"
	"twarchive/pkg/logger"
	"twarchive/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twarchive",
	Short: "Keep a local, incremental archive of public timelines and their media",
	Long: `twarchive mirrors the public timelines of one or more accounts into a local
archive: one directory per account holding a JSON manifest of posts and the
original-quality photos, videos and animated images they carry.

Features:
  - Incremental syncs that only fetch posts newer than the last archived one
  - Retries of media that failed or was skipped on earlier runs
  - Concurrent downloads with shared rate limiting
  - Crash safe: the manifest is only replaced atomically
  - Secure bearer token storage using the system keyring
  - Progress dashboard and desktop notifications`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.Output = io.Discard
		}
		if cmd.Name() == "sync" && !quiet && !useTUI {
			ui.PrintLogo()
		}
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.config/twarchive/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "report every media item")

	rootCmd.SetVersionTemplate(`twarchive {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig resolves the configuration from every source, with flags
// holding the command's explicitly set values
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return config.Load(configFile, flags)
}

// initLogger configures the process-wide logger. When the console belongs
// to the TUI, logs only go to the configured file.
func initLogger(cfg *config.Config, tuiMode bool) (logger.Logger, error) {
	if !tuiMode {
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return nil, err
		}
		return logger.GetLogger(), nil
	}

	if cfg.Logging.File == "" {
		return logger.NewWithWriter(&cfg.Logging, io.Discard)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger.NewWithWriter(&cfg.Logging, f)
}
