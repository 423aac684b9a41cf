package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitegraph/internal/config"
	"github.com/nao1215/sitegraph/internal/database"
	"github.com/nao1215/sitegraph/internal/fetcher"
	sglog "github.com/nao1215/sitegraph/internal/log"
	"github.com/nao1215/sitegraph/internal/model"
	"github.com/nao1215/sitegraph/internal/pipeline"
	"github.com/nao1215/sitegraph/internal/report"
	"github.com/nao1215/sitegraph/internal/transport"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a website and download its images",
		Long: `Crawl fetches pages of one website, starting from --starting-url, and only
follows links on the domain of that URL (subdomains included).

Outputs:
- the link graph as JSON (--links-json)
- the images of every page, named <id>.<ext> (--img-save-dir)
- an image manifest database.json in the image directory
- optionally a summary report (--report) and a history entry (--save-db)

Press Ctrl-C to stop early; the pages crawled so far are still written.

Examples:
  # Crawl up to 100 pages with 4 workers
  sitegraph crawl -s https://example.com/

  # Crawl 500 pages with 8 workers and log progress
  sitegraph crawl -s https://example.com/ --max-links 500 -n 8 -l

  # Skip images, only write the link graph
  sitegraph crawl -s https://example.com/ --max-images 0

  # Route traffic through a SOCKS5 proxy and store the run
  sitegraph crawl -s https://example.com/ --proxy 127.0.0.1:9050 --save-db

Configuration file (.sitegraph) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      ignorePatterns:
        - "/logout"`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	// Crawl flags
	cmd.Flags().StringP("starting-url", "s", "",
		"URL the crawl starts from (required)")
	cmd.Flags().Int("max-links", config.DefaultMaxLinks,
		"Maximum number of pages to crawl")
	cmd.Flags().Int("max-images", config.DefaultMaxImages,
		"Maximum number of images to download (0 disables downloads)")
	cmd.Flags().IntP("workers", "n", config.DefaultWorkers,
		"Number of concurrent crawl workers")
	cmd.Flags().BoolP("log-status", "l", false,
		"Log crawl progress periodically")
	cmd.Flags().StringSlice("ignore", nil,
		"URL path glob to skip (repeatable)")
	cmd.Flags().StringSlice("follow", nil,
		"Only crawl URL paths matching this glob (repeatable)")

	// Output flags
	cmd.Flags().StringP("img-save-dir", "i", config.DefaultImageDir,
		"Directory images and database.json are written to")
	cmd.Flags().String("links-json", config.DefaultLinksJSON,
		"File the link graph is written to")
	cmd.Flags().StringP("report", "r", "",
		"Write a summary report; .md gives Markdown, .json gives JSON, other extensions text")
	cmd.Flags().Bool("save-db", false,
		"Store the run in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	// Request flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of a single page or image request")
	cmd.Flags().Duration("delay", config.DefaultPolitenessDelay,
		"Pause after every page fetch")
	cmd.Flags().Duration("idle-wait", config.DefaultIdleWait,
		"How long a worker waits on an empty queue before giving up")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitegraph in current or home directory)")

	// Proxy flags
	cmd.Flags().String("proxy", "",
		"Route traffic through a SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route traffic through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := sglog.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nInterrupted, saving partial results...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file. Flags set on the command line win over the file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.StartURL, err = flags.GetString("starting-url"); err != nil {
		return nil, err
	}
	if cfg.MaxLinks, err = flags.GetInt("max-links"); err != nil {
		return nil, err
	}
	if cfg.MaxImages, err = flags.GetInt("max-images"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.LogStatus, err = flags.GetBool("log-status"); err != nil {
		return nil, err
	}
	if cfg.IgnorePatterns, err = flags.GetStringSlice("ignore"); err != nil {
		return nil, err
	}
	if cfg.FollowPatterns, err = flags.GetStringSlice("follow"); err != nil {
		return nil, err
	}
	if cfg.ImageDir, err = flags.GetString("img-save-dir"); err != nil {
		return nil, err
	}
	if cfg.LinksJSON, err = flags.GetString("links-json"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.SaveToDB, err = flags.GetBool("save-db"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.PolitenessDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.IdleWait, err = flags.GetDuration("idle-wait"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	// If the user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	applySiteConfig(cmd, cfg)
	return cfg, nil
}

// applySiteConfig copies the file settings of the start URL's host into cfg,
// except for values whose flag was set on the command line.
func applySiteConfig(cmd *cobra.Command, cfg *config.Config) {
	u, err := url.Parse(cfg.StartURL)
	if err != nil || cfg.SiteConfigs == nil {
		return
	}
	site := cfg.SiteConfigs.GetSiteConfig(strings.ToLower(u.Hostname()))

	cfg.Cookie = site.Cookie
	cfg.Headers = site.Headers

	flags := cmd.Flags()
	if site.UserAgent != "" && !flags.Changed("user-agent") {
		cfg.UserAgent = site.UserAgent
	}
	if site.Delay != 0 && !flags.Changed("delay") {
		cfg.PolitenessDelay = site.Delay
	}
	if site.Timeout != 0 && !flags.Changed("timeout") {
		cfg.Timeout = site.Timeout
	}
	if len(site.IgnorePatterns) > 0 && !flags.Changed("ignore") {
		cfg.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 && !flags.Changed("follow") {
		cfg.FollowPatterns = site.FollowPatterns
	}
}

// runCrawl executes the crawl. Progress goes to out, logs to errOut.
func runCrawl(ctx context.Context, out, errOut io.Writer, cfg *config.Config, logger *slog.Logger) error {
	printInputArgs(out, cfg)

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	proxyAddress := cfg.ProxyAddress
	if cfg.UseTor {
		embeddedTor, err := startEmbeddedTor(ctx, out, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		proxyAddress = embeddedTor.SocksAddr()
	}
	if proxyAddress != "" {
		if status := transport.CheckSOCKS5(ctx, proxyAddress); status != transport.ProxyStatusOK {
			return fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)", status.Error(), proxyAddress)
		}
		logger.Info("proxy connection verified", "address", proxyAddress)
	}

	client, err := transport.NewClient(transport.Options{
		ProxyAddress: proxyAddress,
		Timeout:      cfg.Timeout,
		UserAgent:    cfg.UserAgent,
		Cookie:       cfg.Cookie,
		Headers:      cfg.Headers,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	components := pipeline.Components{
		Fetcher: fetcher.NewHTTPFetcher(client,
			fetcher.WithMaxBodySize(cfg.MaxBodySize),
			fetcher.WithLogger(logger),
		),
		ImageClient:  client,
		StatusLogger: sglog.NewStatusLogger(errOut),
		Progress:     downloadProgress(out),
		Logger:       logger,
		Version:      getVersion(),
	}
	if db != nil {
		components.Store = db
	}
	p := pipeline.DefaultPipeline(cfg, components, pipeline.WithProgress(out))

	crawlReport := model.NewCrawlReport(cfg.StartURL)
	crawlReport.MaxLinks = cfg.MaxLinks
	crawlReport.MaxImages = cfg.MaxImages
	crawlReport.Workers = cfg.Workers

	startTime := time.Now()
	runErr := p.Execute(ctx, crawlReport)

	if crawlReport.Graph != nil {
		if _, err := report.NewSimpleWriter(out).Write(crawlReport); err != nil {
			logger.Error("failed to print summary", "error", err)
		}
	}
	fmt.Fprintf(out, "Finished in %s\n", time.Since(startTime).Round(time.Millisecond))

	if runErr != nil {
		if crawlReport.Interrupted {
			return fmt.Errorf("crawl interrupted, partial results were saved: %w", runErr)
		}
		return runErr
	}
	return nil
}

// printInputArgs prints the effective settings of the run.
func printInputArgs(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "Input arguments:")
	fmt.Fprintf(out, "  starting url: %s\n", cfg.StartURL)
	fmt.Fprintf(out, "  max links:    %d\n", cfg.MaxLinks)
	fmt.Fprintf(out, "  max images:   %d\n", cfg.MaxImages)
	fmt.Fprintf(out, "  workers:      %d\n", cfg.Workers)
	fmt.Fprintf(out, "  log status:   %t\n", cfg.LogStatus)
	fmt.Fprintf(out, "  image dir:    %s\n", cfg.ImageDir)
	fmt.Fprintf(out, "  links json:   %s\n", cfg.LinksJSON)
	fmt.Fprintln(out)
}

// downloadProgress prints one line per attempted image.
func downloadProgress(out io.Writer) func(done, total int, d model.Download) {
	return func(done, total int, d model.Download) {
		if d.Succeeded() {
			fmt.Fprintf(out, "  [%d/%d] saved %s\n", done, total, d.Path)
			return
		}
		fmt.Fprintf(out, "  [%d/%d] failed %s\n", done, total, d.Image.Link)
	}
}

// startEmbeddedTor starts an embedded Tor daemon using tornago.
func startEmbeddedTor(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) (*transport.EmbeddedTor, error) {
	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := transport.NewEmbeddedTor(
		transport.WithStartupTimeout(cfg.TorStartupTimeout),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())
	fmt.Fprintf(out, "SOCKS proxy: %s\n\n", embeddedTor.SocksAddr())

	return embeddedTor, nil
}
