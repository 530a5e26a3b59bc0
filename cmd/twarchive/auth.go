package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"twarchive/pkg/auth"
	"twarchive/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the API bearer token",
	Long: `Manage stored bearer tokens securely.

Tokens are stored using:
  - System keyring (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variable ` + auth.TokenEnvVar + ` (read only)

Never share your token or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store a bearer token securely",
	Long: `Store a bearer token in the system keyring or encrypted file.

The token is read without echo. Profiles let you keep tokens of several
apps side by side; sync uses the "default" profile unless --profile is given.`,
	Example: `  # Interactive login
  twarchive auth login

  # Store a token for a second app
  twarchive auth login research`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored bearer token",
	Args:  cobra.MaximumNArgs(1),
	Run:   runLogout,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored tokens",
	Long:  `List stored profiles with masked tokens and where each one is kept.`,
	Args:  cobra.NoArgs,
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)
}

func newCredentialManager() *auth.Manager {
	dir, err := auth.DefaultConfigDir()
	if err != nil {
		ui.PrintError("Failed to locate config directory", err.Error())
		os.Exit(1)
	}
	manager, err := auth.NewManager(dir)
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}
	return manager
}

func profileArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return auth.DefaultProfile
}

func runLogin(cmd *cobra.Command, args []string) {
	manager := newCredentialManager()
	profile := profileArg(args)
	reader := bufio.NewReader(os.Stdin)

	auth.ShowTokenGuide(os.Stdout)
	fmt.Println()

	if existing, backend, err := manager.Retrieve(profile); err == nil && existing != nil {
		fmt.Printf("Profile '%s' already has a token (%s). Replace it? (y/N): ", profile, backend)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	var token string
	for {
		fmt.Print("Bearer token (hidden): ")
		input, err := readPassword(reader)
		if err != nil {
			ui.PrintError("Failed to read token", err.Error())
			os.Exit(1)
		}
		token = strings.TrimSpace(input)

		// app bearer tokens are long url-encoded strings
		if len(token) >= 40 && !strings.ContainsAny(token, " \t") {
			break
		}
		fmt.Println("\nThat doesn't look like a bearer token.")
		fmt.Print("Try again? (Y/n): ")
		retry, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(retry)) == "n" {
			os.Exit(1)
		}
	}

	backend, err := manager.Store(&auth.Credential{
		Profile:      profile,
		BearerToken:  token,
		LastModified: time.Now(),
	})
	if err != nil {
		ui.PrintError("Failed to store token", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Token for profile '%s' stored in %s", profile, backend))
}

func runLogout(cmd *cobra.Command, args []string) {
	manager := newCredentialManager()
	profile := profileArg(args)

	if err := manager.Delete(profile); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			ui.PrintWarning("No stored token for profile", profile)
			return
		}
		ui.PrintError("Failed to remove token", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess(fmt.Sprintf("Token for profile '%s' removed", profile))
	if os.Getenv(auth.TokenEnvVar) != "" {
		ui.PrintWarning(auth.TokenEnvVar + " is still set in this environment")
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	manager := newCredentialManager()

	creds := manager.List()
	if len(creds) == 0 {
		ui.PrintWarning("No stored tokens")
		fmt.Println("\nRun 'twarchive auth login' to store one.")
		return
	}

	ui.PrintHighlight("Stored tokens")
	for _, cred := range creds {
		_, backend, err := manager.Retrieve(cred.Profile)
		if err != nil {
			backend = "unavailable"
		}
		modified := "-"
		if !cred.LastModified.IsZero() {
			modified = cred.LastModified.Format("2006-01-02 15:04")
		}
		fmt.Printf("  %-12s %-24s %-16s %s\n", cred.Profile, auth.MaskToken(cred.BearerToken), backend, ui.Dim(modified))
	}
}

// readPassword reads a line without echo when stdin is a terminal
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // New line after password
		if err == nil {
			return string(password), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
