package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitegraph/internal/fetcher"
	"github.com/nao1215/sitegraph/internal/model"
)

const (
	// DefaultWorkers is the number of concurrent workers.
	DefaultWorkers = 4

	// DefaultMaxLinks is the page budget.
	DefaultMaxLinks = 100

	// DefaultPolitenessDelay is the pause after each fetch.
	DefaultPolitenessDelay = 500 * time.Millisecond

	// DefaultIdleWait is how long a worker waits on an empty frontier.
	DefaultIdleWait = 200 * time.Millisecond

	// DefaultStatusInterval is the progress logging period.
	DefaultStatusInterval = 500 * time.Millisecond
)

// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL.
var ErrInvalidSeed = errors.New("seed must be an absolute http or https URL")

// Result is the outcome of a crawl.
type Result struct {
	// Graph is the link graph built by the crawl.
	Graph *model.LinkGraph

	// BaseDomain is the domain the crawl was restricted to.
	BaseDomain string

	// Admitted is the number of pages counted against the budget.
	// It can exceed the budget by up to Workers-1.
	Admitted int64

	// FetchErrors is the number of failed fetches.
	FetchErrors int64

	// Pending is the number of edges left on the frontier.
	Pending int

	// Interrupted is set when the context ended the crawl.
	Interrupted bool
}

// Coordinator runs a crawl with a pool of workers.
type Coordinator struct {
	fetcher         fetcher.Fetcher
	workers         int
	maxLinks        int
	politenessDelay time.Duration
	idleWait        time.Duration
	statusInterval  time.Duration
	ignorePatterns  []string
	followPatterns  []string
	logger          *slog.Logger
	statusLogger    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers sets the number of workers.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMaxLinks sets the page budget.
func WithMaxLinks(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxLinks = n
		}
	}
}

// WithPolitenessDelay sets the pause after each fetch.
func WithPolitenessDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.politenessDelay = d
	}
}

// WithIdleWait sets how long a worker waits before re-checking an empty frontier.
func WithIdleWait(d time.Duration) Option {
	return func(c *Coordinator) {
		c.idleWait = d
	}
}

// WithStatusLogger enables periodic progress logging.
func WithStatusLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.statusLogger = logger
	}
}

// WithStatusInterval sets the progress logging period.
func WithStatusInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.statusInterval = d
		}
	}
}

// WithIgnorePatterns sets path patterns that are never crawled.
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Coordinator) {
		c.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts the crawl to matching paths.
func WithFollowPatterns(patterns []string) Option {
	return func(c *Coordinator) {
		c.followPatterns = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a Coordinator fetching pages with f.
func New(f fetcher.Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:         f,
		workers:         DefaultWorkers,
		maxLinks:        DefaultMaxLinks,
		politenessDelay: DefaultPolitenessDelay,
		idleWait:        DefaultIdleWait,
		statusInterval:  DefaultStatusInterval,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run crawls the site of seed until the budget is used up or the frontier
// stays empty. When ctx ends the crawl early, the partial result is
// returned together with ctx.Err().
func (c *Coordinator) Run(ctx context.Context, seed string) (*Result, error) {
	if _, ok := Normalize(seed); !ok {
		return nil, ErrInvalidSeed
	}

	baseDomain := BaseDomain(seed)
	state := newState(model.NewLinkGraph(), NewScope(baseDomain, c.ignorePatterns, c.followPatterns), c.maxLinks)
	state.push(LinkPath{Child: seed})

	c.logger.Info("crawl started",
		"seed", seed,
		"base_domain", baseDomain,
		"workers", c.workers,
		"max_links", c.maxLinks,
	)

	var fetchErrors atomic.Int64
	var workers errgroup.Group
	for i := range c.workers {
		workers.Go(func() error {
			c.work(ctx, i, state, &fetchErrors)
			return nil
		})
	}

	done := make(chan struct{})
	var reporter errgroup.Group
	if c.statusLogger != nil {
		reporter.Go(func() error {
			c.reportStatus(ctx, state, done)
			return nil
		})
	}

	_ = workers.Wait()
	close(done)
	_ = reporter.Wait()

	result := &Result{
		Graph:       state.graph,
		BaseDomain:  baseDomain,
		Admitted:    state.visited.Load(),
		FetchErrors: fetchErrors.Load(),
		Pending:     state.pending(),
		Interrupted: ctx.Err() != nil,
	}

	c.logger.Info("crawl finished",
		"pages", result.Graph.Len(),
		"admitted", result.Admitted,
		"fetch_errors", result.FetchErrors,
		"pending", result.Pending,
	)

	if result.Interrupted {
		return result, ctx.Err()
	}
	return result, nil
}

// work is the loop of one worker.
func (c *Coordinator) work(ctx context.Context, id int, state *State, fetchErrors *atomic.Int64) {
	logger := c.logger.With("worker", id)

	for {
		if ctx.Err() != nil || state.budgetExhausted() {
			return
		}

		path, ok := state.pop()
		if !ok {
			if !sleepContext(ctx, c.idleWait) {
				return
			}
			if state.pending() == 0 {
				logger.Debug("frontier empty, worker exiting")
				return
			}
			continue
		}

		u, ok := Normalize(path.Child)
		if !ok {
			logger.Debug("skipping invalid url", "url", path.Child)
			continue
		}
		// The seed defines the domain, so only its path patterns are checked.
		if !state.scope.Allows(u) && path.Parent != "" {
			continue
		}
		link := u.String()
		if state.seen(link) {
			continue
		}

		if state.budgetExhausted() {
			return
		}
		state.visited.Add(1)

		page, err := c.fetcher.Fetch(ctx, link, fetcher.All)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("failed to fetch page", "url", link, "error", err)
			fetchErrors.Add(1)
			page = &model.Page{URL: link}
		}

		if !sleepContext(ctx, c.politenessDelay) {
			return
		}

		state.fold(link, path.Parent, page, logger)
		logger.Debug("page visited", "url", link, "links", len(page.Links), "images", len(page.Images))
	}
}

// reportStatus logs progress until the target is reached or done is closed.
func (c *Coordinator) reportStatus(ctx context.Context, state *State, done <-chan struct{}) {
	ticker := time.NewTicker(c.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			found := state.graphLen()
			c.statusLogger.Info("crawl status", "found", found, "target", c.maxLinks)
			if found >= c.maxLinks {
				return
			}
		}
	}
}

// sleepContext pauses for d. It returns false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
