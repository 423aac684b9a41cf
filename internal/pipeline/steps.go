package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nao1215/sitegraph/internal/config"
	"github.com/nao1215/sitegraph/internal/crawler"
	"github.com/nao1215/sitegraph/internal/fetcher"
	"github.com/nao1215/sitegraph/internal/images"
	"github.com/nao1215/sitegraph/internal/model"
	output "github.com/nao1215/sitegraph/internal/report"
)

// CrawlStep builds the link graph of the site and flattens its images.
type CrawlStep struct {
	// fetcher downloads and parses pages.
	fetcher fetcher.Fetcher

	// opts configure the crawl coordinator.
	opts []crawler.Option

	// logger for structured logging.
	logger *slog.Logger
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(f fetcher.Fetcher, logger *slog.Logger, opts ...crawler.Option) *CrawlStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlStep{
		fetcher: f,
		opts:    append([]crawler.Option{crawler.WithLogger(logger)}, opts...),
		logger:  logger,
	}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Describe returns the progress line of the step.
func (s *CrawlStep) Describe() string {
	return "Crawling links"
}

// Do executes the crawl step.
// An interrupted crawl still fills the report with the partial graph.
func (s *CrawlStep) Do(ctx context.Context, report *model.CrawlReport) error {
	result, err := crawler.New(s.fetcher, s.opts...).Run(ctx, report.StartURL)
	if result == nil {
		return err
	}

	report.Graph = result.Graph
	report.BaseDomain = result.BaseDomain
	report.Admitted = result.Admitted
	report.FetchErrors = result.FetchErrors
	report.Interrupted = result.Interrupted
	report.Images = images.Flatten(result.Graph)

	s.logger.Info("crawl completed",
		"pages", result.Graph.Len(),
		"images", len(report.Images),
		"pending", result.Pending,
	)
	return err
}

// DownloadStep saves the flattened images to a directory.
type DownloadStep struct {
	downloader *images.Downloader
	dir        string
	maxCount   int
}

// NewDownloadStep creates a step saving at most maxCount images into dir.
func NewDownloadStep(downloader *images.Downloader, dir string, maxCount int) *DownloadStep {
	return &DownloadStep{
		downloader: downloader,
		dir:        dir,
		maxCount:   maxCount,
	}
}

// Name returns the step name.
func (s *DownloadStep) Name() string {
	return "download"
}

// Describe returns the progress line of the step.
func (s *DownloadStep) Describe() string {
	return fmt.Sprintf("Downloading up to %d images to %s", s.maxCount, s.dir)
}

// Do executes the download step.
func (s *DownloadStep) Do(ctx context.Context, report *model.CrawlReport) error {
	downloads, err := s.downloader.DownloadAll(ctx, report.Images, s.dir, s.maxCount)
	if err != nil {
		return err
	}
	report.Downloads = downloads
	return nil
}

// InspectStep records size, digest and EXIF tags of every saved image.
// A file that cannot be read is logged and left without details.
type InspectStep struct {
	logger *slog.Logger
}

// NewInspectStep creates a new inspection step.
func NewInspectStep(logger *slog.Logger) *InspectStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &InspectStep{logger: logger}
}

// Name returns the step name.
func (s *InspectStep) Name() string {
	return "inspect"
}

// Describe returns the progress line of the step.
func (s *InspectStep) Describe() string {
	return "Inspecting saved images"
}

// Do executes the inspection step.
func (s *InspectStep) Do(_ context.Context, report *model.CrawlReport) error {
	if err := images.InspectAll(report.Downloads); err != nil {
		s.logger.Warn("failed to inspect images", "error", err)
	}
	if n := report.ExifCount(); n > 0 {
		s.logger.Warn("images carry EXIF metadata", "count", n)
	}
	return nil
}

// ManifestStep writes the image manifest mapping ids to images.
type ManifestStep struct {
	dir  string
	name string
}

// NewManifestStep creates a step writing dir/name.
func NewManifestStep(dir, name string) *ManifestStep {
	return &ManifestStep{dir: dir, name: name}
}

// Name returns the step name.
func (s *ManifestStep) Name() string {
	return "manifest"
}

// Describe returns the progress line of the step.
func (s *ManifestStep) Describe() string {
	return "Saving image manifest"
}

// Do executes the manifest step.
func (s *ManifestStep) Do(_ context.Context, report *model.CrawlReport) error {
	return output.SaveManifest(s.dir, s.name, report.Images)
}

// GraphStep writes the link graph as JSON.
type GraphStep struct {
	path string
}

// NewGraphStep creates a step writing the graph to path.
func NewGraphStep(path string) *GraphStep {
	return &GraphStep{path: path}
}

// Name returns the step name.
func (s *GraphStep) Name() string {
	return "graph"
}

// Describe returns the progress line of the step.
func (s *GraphStep) Describe() string {
	return "Saving link graph to " + s.path
}

// Do executes the graph step.
func (s *GraphStep) Do(_ context.Context, report *model.CrawlReport) error {
	return output.SaveGraph(s.path, report.Graph)
}

// ReportStep writes a run summary. The format follows the file extension.
type ReportStep struct {
	path    string
	version string
}

// NewReportStep creates a step writing the summary to path.
func NewReportStep(path, version string) *ReportStep {
	return &ReportStep{path: path, version: version}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Describe returns the progress line of the step.
func (s *ReportStep) Describe() string {
	return "Writing report to " + s.path
}

// Do executes the report step.
func (s *ReportStep) Do(_ context.Context, report *model.CrawlReport) error {
	return output.SaveFile(s.path, func(w io.Writer) error {
		_, err := output.NewWriterForPath(s.path, w, s.version).Write(report)
		return err
	})
}

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, report *model.CrawlReport) (int64, error)
}

// HistoryStep stores the run in the history database.
type HistoryStep struct {
	store  RunStore
	logger *slog.Logger
}

// NewHistoryStep creates a new history step.
func NewHistoryStep(store RunStore, logger *slog.Logger) *HistoryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "history"
}

// Describe returns the progress line of the step.
func (s *HistoryStep) Describe() string {
	return "Saving run to history database"
}

// Do executes the history step.
func (s *HistoryStep) Do(ctx context.Context, report *model.CrawlReport) error {
	id, err := s.store.SaveRun(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	s.logger.Info("run saved to database", "id", id, "base_domain", report.BaseDomain)
	return nil
}

// Components are the collaborators of the default pipeline.
type Components struct {
	// Fetcher downloads and parses pages.
	Fetcher fetcher.Fetcher

	// ImageClient downloads images.
	ImageClient *http.Client

	// Store receives the finished run. Nil disables the history step.
	Store RunStore

	// StatusLogger receives crawl progress. Nil disables it.
	StatusLogger *slog.Logger

	// Progress is called after each image download.
	Progress images.ProgressFunc

	// Logger is passed to every step.
	Logger *slog.Logger

	// Version is written into JSON reports.
	Version string
}

// DefaultPipeline creates the pipeline of a sitegraph run:
// crawl and download, then inspect, manifest, graph and, when configured,
// report and history.
func DefaultPipeline(cfg *config.Config, c Components, opts ...Option) *Pipeline {
	p := New(append([]Option{WithLogger(c.Logger)}, opts...)...)

	crawlOpts := []crawler.Option{
		crawler.WithWorkers(cfg.Workers),
		crawler.WithMaxLinks(cfg.MaxLinks),
		crawler.WithPolitenessDelay(cfg.PolitenessDelay),
		crawler.WithIdleWait(cfg.IdleWait),
		crawler.WithStatusInterval(config.DefaultStatusInterval),
	}
	if len(cfg.IgnorePatterns) > 0 {
		crawlOpts = append(crawlOpts, crawler.WithIgnorePatterns(cfg.IgnorePatterns))
	}
	if len(cfg.FollowPatterns) > 0 {
		crawlOpts = append(crawlOpts, crawler.WithFollowPatterns(cfg.FollowPatterns))
	}
	if cfg.LogStatus && c.StatusLogger != nil {
		crawlOpts = append(crawlOpts, crawler.WithStatusLogger(c.StatusLogger))
	}

	downloadOpts := []images.Option{
		images.WithAttempts(config.DefaultDownloadAttempts),
		images.WithBackoff(config.DefaultRetryBackoff),
	}
	if c.Logger != nil {
		downloadOpts = append(downloadOpts, images.WithLogger(c.Logger))
	}
	if c.Progress != nil {
		downloadOpts = append(downloadOpts, images.WithProgress(c.Progress))
	}

	p.AddSteps(
		NewCrawlStep(c.Fetcher, c.Logger, crawlOpts...),
		NewDownloadStep(images.NewDownloader(c.ImageClient, downloadOpts...), cfg.ImageDir, cfg.MaxImages),
	)
	p.AddFinalSteps(
		NewInspectStep(c.Logger),
		NewManifestStep(cfg.ImageDir, config.ManifestFile),
		NewGraphStep(cfg.LinksJSON),
	)
	if cfg.ReportFile != "" {
		p.AddFinalStep(NewReportStep(cfg.ReportFile, c.Version))
	}
	if c.Store != nil {
		p.AddFinalStep(NewHistoryStep(c.Store, c.Logger))
	}

	return p
}
