package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitegraph/internal/config"
	"github.com/nao1215/sitegraph/internal/database"
)

// NewHistoryCmd creates the history command.
// This command shows runs stored with 'sitegraph crawl --save-db'.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "Show and compare stored crawl runs",
		Long: `History reads the runs stored with 'sitegraph crawl --save-db'.

Without flags it lists the runs of a domain. With --compare it shows how
the latest run differs from the one before:
- pages that appeared or disappeared
- images whose content digest was not seen in the previous run

Examples:
  # List all crawled domains
  sitegraph history --list-domains

  # List the runs of a domain
  sitegraph history example.com

  # Show the pages and images of run 3
  sitegraph history --id 3

  # Compare the latest two runs
  sitegraph history --compare example.com

  # Find every stored image with a given SHA3-256 digest
  sitegraph history --digest 3a985da7...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-domains", "L", false,
		"List all crawled domains in the database")
	cmd.Flags().Int64P("id", "i", 0,
		"Show the pages and images of the run with this ID")
	cmd.Flags().BoolP("compare", "c", false,
		"Compare the latest two runs of the domain")
	cmd.Flags().StringP("digest", "d", "",
		"Find stored images with this SHA3-256 digest")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// historyOptions are the flags of the history command.
type historyOptions struct {
	domain      string
	listDomains bool
	runID       int64
	compare     bool
	digest      string
	jsonOutput  bool
	dbDir       string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryOptions(cmd, args)
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if opts.domain == "" && !opts.listDomains && opts.runID == 0 && opts.digest == "" {
		return errors.New("domain is required (use --list-domains to see available domains)")
	}
	if opts.compare && opts.domain == "" {
		return errors.New("--compare requires a domain")
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case opts.listDomains:
		return listDomains(ctx, out, db, opts.jsonOutput)
	case opts.runID > 0:
		return showRun(ctx, out, db, opts.runID, opts.jsonOutput)
	case opts.digest != "":
		return findDigest(ctx, out, db, opts.digest, opts.jsonOutput)
	case opts.compare:
		return runComparison(ctx, out, db, opts.domain, opts.jsonOutput)
	default:
		return listRunHistory(ctx, out, db, opts.domain, opts.jsonOutput)
	}
}

// parseHistoryOptions reads the flags and the optional domain argument.
func parseHistoryOptions(cmd *cobra.Command, args []string) (*historyOptions, error) {
	flags := cmd.Flags()
	opts := &historyOptions{}

	var err error
	if opts.listDomains, err = flags.GetBool("list-domains"); err != nil {
		return nil, err
	}
	if opts.runID, err = flags.GetInt64("id"); err != nil {
		return nil, err
	}
	if opts.compare, err = flags.GetBool("compare"); err != nil {
		return nil, err
	}
	if opts.digest, err = flags.GetString("digest"); err != nil {
		return nil, err
	}
	if opts.jsonOutput, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if len(args) > 0 {
		opts.domain = normalizeDomain(args[0])
	}
	opts.digest = strings.ToLower(strings.TrimSpace(opts.digest))
	return opts, nil
}

// normalizeDomain accepts a bare host or a URL and returns the lower-cased host.
func normalizeDomain(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Hostname()
		}
	}
	return strings.TrimSuffix(strings.ToLower(s), ".")
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// listDomains lists all domains that have runs in the database.
func listDomains(ctx context.Context, out io.Writer, db *database.CrawlDB, jsonOutput bool) error {
	domains, err := db.ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}

	if jsonOutput {
		if domains == nil {
			domains = []string{}
		}
		return writeJSON(out, domains)
	}

	if len(domains) == 0 {
		fmt.Fprintln(out, "No crawled domains found in the database.")
		fmt.Fprintln(out, "\nUse 'sitegraph crawl --save-db' to store a run.")
		return nil
	}

	fmt.Fprintf(out, "Crawled domains (%d):\n\n", len(domains))
	for _, domain := range domains {
		fmt.Fprintf(out, "  • %s\n", domain)
	}
	fmt.Fprintln(out, "\nUse 'sitegraph history <domain>' to see the runs of a domain.")
	return nil
}

// listRunHistory lists all runs of a domain.
func listRunHistory(ctx context.Context, out io.Writer, db *database.CrawlDB, domain string, jsonOutput bool) error {
	runs, err := db.GetRunHistory(ctx, domain)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if jsonOutput {
		if runs == nil {
			runs = []database.RunMetadata{}
		}
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No run history found for %s\n", domain)
		fmt.Fprintln(out, "\nUse 'sitegraph crawl --save-db' to store a run.")
		return nil
	}

	fmt.Fprintf(out, "Run history for %s (%d runs):\n\n", domain, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-6s  %-7s  %-6s  %s\n", "ID", "Date", "Pages", "Images", "Saved", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 64))
	for _, run := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-6d  %-7d  %-6d  %s\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Summary.Pages,
			run.Summary.ImagesFound,
			run.Summary.Saved,
			runStatus(run.Summary),
		)
	}

	fmt.Fprintln(out, "\nUse 'sitegraph history --id <id>' to see the pages and images of a run.")
	fmt.Fprintln(out, "Use 'sitegraph history --compare <domain>' to compare the latest two runs.")
	return nil
}

// runStatus describes how a run ended.
func runStatus(s database.RunSummary) string {
	if s.Interrupted {
		return "interrupted"
	}
	return "completed"
}

// RunDetails are the stored pages and images of a run.
type RunDetails struct {
	ID       int64                  `json:"id"`
	StartURL string                 `json:"start_url"`
	Pages    []database.PageRecord  `json:"pages"`
	Images   []database.ImageRecord `json:"images"`
}

// showRun prints the pages and images of one run.
func showRun(ctx context.Context, out io.Writer, db *database.CrawlDB, id int64, jsonOutput bool) error {
	report, err := db.GetRunByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get run with ID %d: %w", id, err)
	}
	if report == nil {
		return fmt.Errorf("run with ID %d not found", id)
	}

	pages, err := db.GetRunPages(ctx, id)
	if err != nil {
		return err
	}
	imgs, err := db.GetRunImages(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, RunDetails{ID: id, StartURL: report.StartURL, Pages: pages, Images: imgs})
	}

	fmt.Fprintf(out, "Run %d: %s\n", id, report.StartURL)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPages (%d):\n", len(pages))
	for _, p := range pages {
		fmt.Fprintf(out, "  [%s] %s\n", shortID(p.LinkID), p.URL)
		if p.Title != "" {
			fmt.Fprintf(out, "      Title: %s\n", p.Title)
		}
		fmt.Fprintf(out, "      Parents: %d  Children: %d  Images: %d\n", p.Parents, p.Children, p.Images)
	}

	fmt.Fprintf(out, "\nImages (%d):\n", len(imgs))
	for _, img := range imgs {
		if img.Error != "" {
			fmt.Fprintf(out, "  [x] %s: %s\n", img.Link, img.Error)
			continue
		}
		fmt.Fprintf(out, "  [✓] %s -> %s (%d bytes)\n", img.Link, img.Path, img.Size)
		if len(img.Exif) > 0 {
			fmt.Fprintf(out, "      EXIF tags: %d\n", len(img.Exif))
		}
	}
	return nil
}

// findDigest prints every stored image with the given digest.
func findDigest(ctx context.Context, out io.Writer, db *database.CrawlDB, digest string, jsonOutput bool) error {
	imgs, err := db.FindImagesByDigest(ctx, digest)
	if err != nil {
		return err
	}

	if jsonOutput {
		if imgs == nil {
			imgs = []database.ImageRecord{}
		}
		return writeJSON(out, imgs)
	}

	if len(imgs) == 0 {
		fmt.Fprintf(out, "No images found with digest %s\n", digest)
		return nil
	}

	fmt.Fprintf(out, "Images with digest %s (%d):\n\n", shortID(digest), len(imgs))
	for _, img := range imgs {
		fmt.Fprintf(out, "  run %-4d %s\n", img.RunID, img.Link)
	}
	return nil
}

// ComparisonResult holds the result of comparing two runs of a domain.
type ComparisonResult struct {
	// Domain is the crawled domain.
	Domain string `json:"domain"`

	// PreviousRun is the older run.
	PreviousRun database.RunMetadata `json:"previous_run"`

	// CurrentRun is the latest run.
	CurrentRun database.RunMetadata `json:"current_run"`

	// AddedPages are URLs crawled in the current run only.
	AddedPages []string `json:"added_pages,omitempty"`

	// RemovedPages are URLs crawled in the previous run only.
	RemovedPages []string `json:"removed_pages,omitempty"`

	// NewImages are image URLs whose digest the previous run did not have.
	NewImages []string `json:"new_images,omitempty"`

	// UnchangedPages is the number of URLs crawled in both runs.
	UnchangedPages int `json:"unchanged_pages"`
}

// runComparison compares the latest two runs of domain.
func runComparison(ctx context.Context, out io.Writer, db *database.CrawlDB, domain string, jsonOutput bool) error {
	runs, err := db.GetRunHistory(ctx, domain)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}
	if len(runs) == 0 {
		return fmt.Errorf("no run history found for %s", domain)
	}
	if len(runs) < 2 {
		return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
	}

	result, err := compareRuns(ctx, db, runs[1], runs[0])
	if err != nil {
		return err
	}
	result.Domain = domain

	if jsonOutput {
		return writeJSON(out, result)
	}
	outputComparisonText(out, result)
	return nil
}

// compareRuns compares the pages and image digests of two runs.
func compareRuns(ctx context.Context, db *database.CrawlDB, previous, current database.RunMetadata) (*ComparisonResult, error) {
	result := &ComparisonResult{
		PreviousRun: previous,
		CurrentRun:  current,
	}

	previousPages, err := db.GetRunPages(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	currentPages, err := db.GetRunPages(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	previousURLs := make(map[string]struct{}, len(previousPages))
	for _, p := range previousPages {
		previousURLs[p.URL] = struct{}{}
	}
	currentURLs := make(map[string]struct{}, len(currentPages))
	for _, p := range currentPages {
		currentURLs[p.URL] = struct{}{}
		if _, ok := previousURLs[p.URL]; ok {
			result.UnchangedPages++
		} else {
			result.AddedPages = append(result.AddedPages, p.URL)
		}
	}
	for _, p := range previousPages {
		if _, ok := currentURLs[p.URL]; !ok {
			result.RemovedPages = append(result.RemovedPages, p.URL)
		}
	}

	previousImages, err := db.GetRunImages(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	currentImages, err := db.GetRunImages(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	digests := make(map[string]struct{}, len(previousImages))
	for _, img := range previousImages {
		if img.SHA3 != "" {
			digests[img.SHA3] = struct{}{}
		}
	}
	for _, img := range currentImages {
		if img.SHA3 == "" {
			continue
		}
		if _, ok := digests[img.SHA3]; !ok {
			result.NewImages = append(result.NewImages, img.Link)
		}
	}

	sort.Strings(result.AddedPages)
	sort.Strings(result.RemovedPages)
	sort.Strings(result.NewImages)
	return result, nil
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) {
	fmt.Fprintf(out, "Run Comparison: %s\n", result.Domain)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious run: #%d %s\n", result.PreviousRun.ID, result.PreviousRun.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Current run:  #%d %s\n", result.CurrentRun.ID, result.CurrentRun.Timestamp.Format("2006-01-02 15:04:05"))

	prev, cur := result.PreviousRun.Summary, result.CurrentRun.Summary
	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-12s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 47))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Pages", prev.Pages, cur.Pages, formatDelta(cur.Pages-prev.Pages))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Images", prev.ImagesFound, cur.ImagesFound, formatDelta(cur.ImagesFound-prev.ImagesFound))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Saved", prev.Saved, cur.Saved, formatDelta(cur.Saved-prev.Saved))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Failed", prev.Failed, cur.Failed, formatDelta(cur.Failed-prev.Failed))

	if len(result.AddedPages) > 0 {
		fmt.Fprintf(out, "\nAdded Pages (%d):\n", len(result.AddedPages))
		for _, u := range result.AddedPages {
			fmt.Fprintf(out, "  [+] %s\n", u)
		}
	}
	if len(result.RemovedPages) > 0 {
		fmt.Fprintf(out, "\nRemoved Pages (%d):\n", len(result.RemovedPages))
		for _, u := range result.RemovedPages {
			fmt.Fprintf(out, "  [-] %s\n", u)
		}
	}
	if len(result.NewImages) > 0 {
		fmt.Fprintf(out, "\nNew Images (%d):\n", len(result.NewImages))
		for _, u := range result.NewImages {
			fmt.Fprintf(out, "  [+] %s\n", u)
		}
	}
	if result.UnchangedPages > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d pages\n", result.UnchangedPages)
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// shortID shortens ids and digests for display.
func shortID(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12]
}
