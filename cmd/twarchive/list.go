package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"twarchive/pkg/archive"
	"twarchive/pkg/query"
	"twarchive/pkg/ui"
)

var (
	// List command flags
	listSearch   string
	listHas      string
	listOrder    string
	listPage     int
	listPageSize int
	listOutput   string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list [account]",
	Short: "Browse an archived account",
	Long: `Search, filter and page through the posts of an archived account.

The archive is read only; nothing is fetched. Without an account the
archived accounts are listed.`,
	Example: `  # List archived accounts
  twarchive list

  # Newest posts with a video, second page
  twarchive list alice --has video --page 2

  # Oldest first, matching a word
  twarchive list alice --search launch --order asc`,
	Args: cobra.MaximumNArgs(1),
	Run:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listSearch, "search", "", "case-insensitive text search")
	listCmd.Flags().StringVar(&listHas, "has", "", "only posts with media of this kind (photo, video, animated_image)")
	listCmd.Flags().StringVar(&listOrder, "order", "desc", "sort by post id (asc, desc)")
	listCmd.Flags().IntVar(&listPage, "page", 1, "page number")
	listCmd.Flags().IntVar(&listPageSize, "page-size", query.DefaultPageSize, "posts per page")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "", "archive root directory")
}

func runList(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if listOutput != "" {
		flags["output"] = listOutput
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	store := archive.NewStore(cfg.Output.BaseDirectory, cfg.Output.ManifestName, nil)

	if len(args) == 0 {
		if err := listAccounts(os.Stdout, store); err != nil {
			ui.PrintError("Failed to list accounts", err.Error())
			os.Exit(1)
		}
		return
	}

	filter, err := buildFilter()
	if err != nil {
		ui.PrintError("Invalid filter", err.Error())
		os.Exit(1)
	}

	account, err := archive.NormalizeAccount(args[0])
	if err != nil {
		ui.PrintError("Invalid account", err.Error())
		os.Exit(1)
	}
	m, err := store.Load(account)
	if err != nil {
		ui.PrintError("Failed to read archive", err.Error())
		os.Exit(1)
	}
	if len(m.Posts) == 0 {
		ui.PrintWarning("No archived posts for @" + account)
		return
	}

	printPage(os.Stdout, m, query.Apply(m, filter))
}

func buildFilter() (query.Filter, error) {
	order, err := query.ParseOrder(listOrder)
	if err != nil {
		return query.Filter{}, err
	}
	f := query.Filter{
		Search:   listSearch,
		Order:    order,
		Page:     listPage,
		PageSize: listPageSize,
	}
	if listHas != "" {
		kind, err := archive.ParseMediaKind(listHas)
		if err != nil {
			return query.Filter{}, err
		}
		f.Has = &kind
	}
	return f, nil
}

func listAccounts(w io.Writer, store *archive.Store) error {
	accounts, err := store.Accounts()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Fprintf(w, "No archived accounts in %s\n", store.BaseDir())
		return nil
	}
	for _, account := range accounts {
		m, err := store.Load(account)
		if err != nil {
			fmt.Fprintf(w, "@%-20s %s\n", account, ui.Red("unreadable: "+err.Error()))
			continue
		}
		fmt.Fprintf(w, "@%-20s %5d posts  %5d media  %d pending  %d failed\n",
			account,
			len(m.Posts),
			m.MediaCount(archive.StatusDownloaded),
			m.MediaCount(archive.StatusPending),
			m.MediaCount(archive.StatusFailed),
		)
	}
	return nil
}

func printPage(w io.Writer, m *archive.Manifest, res query.Result) {
	fmt.Fprintf(w, "@%s: %d matching posts, page %d/%d\n\n", m.Account, res.Total, res.Page, res.Pages)
	for _, p := range res.Posts {
		fmt.Fprintf(w, "%s %s\n", ui.Cyan(fmt.Sprintf("%d", p.ID)), ui.Dim(p.Timestamp.Format("2006-01-02 15:04")))
		if text := strings.TrimSpace(p.Text); text != "" {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(text, "\n", "\n  "))
		}
		for _, ref := range p.Media {
			fmt.Fprintf(w, "  [%s] %s\n", ref.Kind, mediaLocation(ref))
		}
		fmt.Fprintln(w)
	}
}

func mediaLocation(ref archive.MediaRef) string {
	switch ref.Status {
	case archive.StatusDownloaded:
		return ref.FileName
	case archive.StatusFailed:
		return ui.Red("failed: " + ref.URL)
	default:
		return ui.Yellow("pending: " + ref.URL)
	}
}
