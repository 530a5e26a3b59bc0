package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"twarchive/pkg/auth"
	"twarchive/pkg/config"
	"twarchive/pkg/logger"
	"twarchive/pkg/syncer"
	"twarchive/pkg/twitter"
	"twarchive/pkg/ui"
	"twarchive/pkg/ui/tui"
)

var (
	// Sync command flags
	usersFlag        string
	listFile         string
	photos           bool
	videos           bool
	gifs             bool
	outputDir        string
	concurrency      int
	parallelAccounts int
	failFast         bool
	useTUI           bool
	notify           bool
	profile          string
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Archive new posts and media of one or more accounts",
	Long: `Bring the local archive of each account up to date with its public timeline.

Only posts newer than the newest archived post are fetched. Media that is
still pending or failed from earlier runs is retried for the enabled kinds.
Accounts are synced independently: a failing account never stops the others
unless --fail-fast is given.

Exit status is 0 when every account synced, 2 when some media or some
accounts failed, and 1 when every account failed or the run was aborted.`,
	Example: `  # Sync two accounts with the default media selection
  twarchive sync --users alice,bob

  # Sync the accounts listed in a file, photos only
  twarchive sync --list accounts.txt --photos --videos=false --gifs=false

  # Use the interactive dashboard and a desktop notification at the end
  twarchive sync --users alice --tui --notify`,
	Args: cobra.NoArgs,
	Run:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&usersFlag, "users", "u", "", "comma separated account handles")
	syncCmd.Flags().StringVarP(&listFile, "list", "l", "", "file with one account handle per line (# starts a comment)")
	syncCmd.Flags().BoolVar(&photos, "photos", true, "download photos")
	syncCmd.Flags().BoolVar(&videos, "videos", true, "download videos")
	syncCmd.Flags().BoolVar(&gifs, "gifs", true, "download animated images")
	syncCmd.Flags().StringVarP(&outputDir, "output", "o", "", "archive root directory (default ./archive)")
	syncCmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent media downloads per account")
	syncCmd.Flags().IntVar(&parallelAccounts, "parallel-accounts", 0, "accounts synced at the same time")
	syncCmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop remaining accounts after the first failed one")
	syncCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
	syncCmd.Flags().BoolVar(&notify, "notify", false, "send a notification when the run finishes")
	syncCmd.Flags().StringVar(&profile, "profile", auth.DefaultProfile, "stored credential profile to use")
}

func runSync(cmd *cobra.Command, args []string) {
	handles, err := collectHandles(usersFlag, listFile)
	if err != nil {
		ui.PrintError("Failed to read account list", err.Error())
		os.Exit(syncer.ExitFailure)
	}
	if len(handles) == 0 {
		ui.PrintError("No accounts given", "use --users or --list")
		os.Exit(syncer.ExitFailure)
	}

	cfg, err := loadConfig(syncFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(syncer.ExitFailure)
	}

	log, err := initLogger(cfg, useTUI)
	if err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(syncer.ExitFailure)
	}
	log = log.WithField("version", version)

	if err := resolveToken(cfg, profile); err != nil {
		log.WithError(err).Error("No bearer token available")
		ui.PrintError("No bearer token found", err.Error())
		fmt.Fprintln(ui.Output, "\nTo store a token securely, run:")
		fmt.Fprintln(ui.Output, "  twarchive auth login")
		fmt.Fprintf(ui.Output, "\nOr export %s for this shell.\n", auth.TokenEnvVar)
		os.Exit(syncer.ExitFailure)
	}

	kinds := syncer.EnabledKinds(cfg.Download)
	if kinds.Empty() && !useTUI {
		ui.PrintWarning("No media kinds enabled, only posts will be archived")
	}

	client := twitter.NewClient(cfg.Twitter.Timeout, cfg.Twitter.BearerToken, log)
	client.SetBaseURL(cfg.Twitter.APIBaseURL)
	if cfg.Twitter.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.Twitter.UserAgent)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := syncer.New(cfg, client, log)

	var report *syncer.Report
	if useTUI {
		report, err = runWithTUI(ctx, stop, orch, cfg, handles, log)
	} else {
		ui.PrintInfo("Archive", cfg.Output.BaseDirectory)
		ui.PrintInfo("Media", kinds.String())
		orch.SetObserver(ui.NewConsoleObserver(ui.Output, verbose))
		report, err = orch.Run(ctx, handles, kinds)
	}

	if report == nil {
		ui.PrintError("Sync failed", err.Error())
		os.Exit(syncer.ExitFailure)
	}
	if errors.Is(err, syncer.ErrNoAccounts) {
		ui.PrintError("No accounts to sync", "")
		os.Exit(syncer.ExitFailure)
	}

	fmt.Fprintln(ui.Output)
	fmt.Fprint(ui.Output, report.String())
	if ctx.Err() != nil {
		ui.PrintWarning("Run interrupted, finished work was kept")
	}

	sendReportNotification(cfg, report)

	stop()
	os.Exit(report.ExitCode())
}

func runWithTUI(ctx context.Context, cancel context.CancelFunc, orch *syncer.Orchestrator, cfg *config.Config, handles []string, log logger.Logger) (*syncer.Report, error) {
	accounts, _ := syncer.NormalizeAccounts(handles)
	terminal := tui.NewTUI(tui.Options{
		Accounts:  accounts,
		OutputDir: cfg.Output.BaseDirectory,
		Kinds:     syncer.EnabledKinds(cfg.Download).String(),
		Workers:   cfg.Download.ConcurrentDownloads,
	}, cancel)
	orch.SetObserver(terminal)

	type outcome struct {
		report *syncer.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := orch.Run(ctx, handles, syncer.EnabledKinds(cfg.Download))
		terminal.Finish(report, err)
		done <- outcome{report, err}
	}()

	if err := terminal.Start(); err != nil {
		log.WithError(err).Error("TUI failed")
		cancel()
	}

	// the run may still be draining in-flight downloads after the user quit
	res := <-done
	return res.report, res.err
}

func sendReportNotification(cfg *config.Config, report *syncer.Report) {
	n := cfg.Notifications
	if !n.Enabled {
		return
	}
	ok := report.ExitCode() == syncer.ExitSuccess
	if (ok && !n.OnComplete) || (!ok && !n.OnError) {
		return
	}

	switch strings.ToLower(n.NotificationType) {
	case "desktop":
		ui.NewNotifier().NotifyReport(report)
	case "terminal":
		ui.NewNotifierWith(nil, ui.Output).NotifyReport(report)
	}
}

// syncFlags collects only the flags the user set, so unset ones keep the
// values from lower precedence sources
func syncFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	f := cmd.Flags()
	if f.Changed("output") {
		flags["output"] = outputDir
	}
	if f.Changed("concurrency") {
		flags["concurrency"] = concurrency
	}
	if f.Changed("parallel-accounts") {
		flags["parallel-accounts"] = parallelAccounts
	}
	if f.Changed("photos") {
		flags["photos"] = photos
	}
	if f.Changed("videos") {
		flags["videos"] = videos
	}
	if f.Changed("gifs") {
		flags["gifs"] = gifs
	}
	if f.Changed("fail-fast") {
		flags["fail-fast"] = failFast
	}
	if f.Changed("notify") {
		flags["notify"] = notify
	}
	return flags
}

// resolveToken fills in the bearer token from the credential store when no
// higher precedence source provided one
func resolveToken(cfg *config.Config, profile string) error {
	if cfg.ValidateCredentials() == nil {
		return nil
	}

	dir, err := auth.DefaultConfigDir()
	if err != nil {
		return err
	}
	manager, err := auth.NewManager(dir)
	if err != nil {
		return err
	}
	token, err := manager.Token(profile)
	if err != nil {
		return err
	}
	cfg.Twitter.BearerToken = token
	return cfg.ValidateCredentials()
}

// collectHandles merges the comma separated flag value with the list file.
// Deduplication is left to the orchestrator.
func collectHandles(users, listPath string) ([]string, error) {
	handles := parseHandles(users)
	if listPath == "" {
		return handles, nil
	}

	f, err := os.Open(listPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fromFile, err := readHandleList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", listPath, err)
	}
	return append(handles, fromFile...), nil
}

func parseHandles(s string) []string {
	var handles []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			handles = append(handles, h)
		}
	}
	return handles
}

// readHandleList reads one handle per line. Blank lines and everything
// after a # are ignored.
func readHandleList(r io.Reader) ([]string, error) {
	var handles []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			handles = append(handles, line)
		}
	}
	return handles, scanner.Err()
}
