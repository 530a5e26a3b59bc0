package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"twarchive/pkg/auth"
	"twarchive/pkg/config"
	"twarchive/pkg/syncer"
	"twarchive/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage twarchive configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (TWARCHIVE_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to $HOME/.config/twarchive/config.yaml unless a
different path is given with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging every source.

The bearer token is masked.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# twarchive configuration file
#
# Every option can also be set with an environment variable prefixed with
# TWARCHIVE_, for example TWARCHIVE_OUTPUT_DIR or TWARCHIVE_BEARER_TOKEN.

twitter:
  # Prefer 'twarchive auth login' over putting the token here
  bearer_token: ""
  api_base_url: "https://api.twitter.com"
  user_agent: "twarchive/1.0"
  # Posts per timeline page, 5-100
  page_size: 100
  # The timeline endpoint serves at most this many recent posts per account
  retrieval_ceiling: 3200
  timeout: 30s

rate_limit:
  # Timeline page requests allowed per window, per app
  page_requests_per_window: 900
  page_window: 15m
  media_requests_per_minute: 300

retry:
  max_attempts: 5
  base_delay: 1s
  max_delay: 15m
  multiplier: 2.0
  jitter_factor: 0.1

output:
  # One sub directory per account is created here
  base_directory: "./archive"
  manifest_name: "tweets.json"

download:
  # Concurrent media downloads per account, 1-16
  concurrent_downloads: 4
  download_timeout: 2m
  photos: true
  videos: true
  animated_images: true

sync:
  # Accounts synced at the same time
  concurrent_accounts: 2
  # Stop the remaining accounts after the first failed one
  fail_fast: false
  # How long a running sync on another host keeps an account locked
  session_timeout: 6h

notifications:
  enabled: false
  on_complete: true
  on_error: true
  # terminal, desktop or none
  notification_type: "terminal"

logging:
  # debug, info, warn, error
  level: "info"
  # console or json
  format: "console"
  # Optional log file; logs go to stderr otherwise
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		ui.PrintError("Failed to create config directory", err.Error())
		os.Exit(1)
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Run 'twarchive auth login' to store your bearer token")
	fmt.Println("2. Run 'twarchive config validate' to check the configuration")
	fmt.Println("3. Start archiving with 'twarchive sync --users <handle>'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	display := *cfg
	if display.Twitter.BearerToken != "" {
		display.Twitter.BearerToken = auth.MaskToken(display.Twitter.BearerToken)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (TWARCHIVE_*)")
	fmt.Println("3. .env files (./.env, $HOME/.twarchive.env)")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: first of ./.twarchive.yaml, $HOME/.config/twarchive/config.yaml, $HOME/.twarchive.yaml")
	}
	fmt.Println("5. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	var warnings []string
	var problems []string

	if err := resolveToken(cfg, auth.DefaultProfile); err != nil {
		warnings = append(warnings, "no bearer token configured or stored")
	}
	if !cfg.AnyKindEnabled() {
		warnings = append(warnings, "no media kinds enabled, only posts will be archived")
	}

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Archive directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Media: %s\n", syncer.EnabledKinds(cfg.Download))
	fmt.Printf("  Concurrent downloads: %d per account, %d accounts\n", cfg.Download.ConcurrentDownloads, cfg.Sync.ConcurrentAccounts)
	fmt.Printf("  Page rate limit: %d per %s\n", cfg.RateLimit.PageRequestsPerWindow, cfg.RateLimit.PageWindow)
	fmt.Printf("  Max attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
