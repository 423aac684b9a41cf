package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitegraph"

	// DefaultMaxLinks is the default page budget.
	DefaultMaxLinks = 100

	// DefaultMaxImages is the default number of images to download.
	DefaultMaxImages = 100

	// DefaultWorkers is the default number of crawl workers.
	DefaultWorkers = 4

	// DefaultImageDir is where images and the image manifest are written.
	DefaultImageDir = "images/"

	// DefaultLinksJSON is where the link graph is written.
	DefaultLinksJSON = "links.json"

	// DefaultTimeout is the per-request timeout of page and image fetches.
	DefaultTimeout = 30 * time.Second

	// DefaultPolitenessDelay is the pause a worker takes after every fetch.
	DefaultPolitenessDelay = 500 * time.Millisecond

	// DefaultIdleWait is how long a worker waits on an empty frontier
	// before checking it a second and last time.
	DefaultIdleWait = 200 * time.Millisecond

	// DefaultStatusInterval is how often crawl progress is logged.
	DefaultStatusInterval = 500 * time.Millisecond

	// DefaultRetryBackoff is multiplied by the attempt number between
	// image download attempts.
	DefaultRetryBackoff = 500 * time.Millisecond

	// DefaultDownloadAttempts is the number of tries per image.
	DefaultDownloadAttempts = 3

	// DefaultUserAgent identifies sitegraph in HTTP requests.
	DefaultUserAgent = "sitegraph/1.0 (+https://github.com/nao1215/sitegraph)"

	// DefaultMaxBodySize limits how much of an HTML page is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for sitegraph.
// It is populated from CLI flags and passed down explicitly; there is no
// global configuration state.
type Config struct {
	// StartURL is the seed URL. Its host becomes the base domain.
	StartURL string

	// MaxLinks is the page budget shared by all workers.
	MaxLinks int

	// MaxImages is the maximum number of images to download.
	// Zero disables downloading; the manifest is still written.
	MaxImages int

	// Workers is the number of concurrent crawl workers.
	Workers int

	// LogStatus enables periodic progress logging during the crawl.
	LogStatus bool

	// ImageDir is the directory images and database.json are written to.
	ImageDir string

	// LinksJSON is the path of the link graph file.
	LinksJSON string

	// Verbose enables debug logging.
	Verbose bool

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// PolitenessDelay is the pause after every page fetch.
	PolitenessDelay time.Duration

	// IdleWait is how long a worker waits on an empty frontier before
	// its final check.
	IdleWait time.Duration

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Cookie is sent with every request. It comes from the configuration file.
	Cookie string

	// Headers are sent with every request. They come from the configuration file.
	Headers map[string]string

	// MaxBodySize is the maximum number of bytes read from a page.
	// Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// IgnorePatterns are glob patterns for URL paths that are never crawled.
	IgnorePatterns []string

	// FollowPatterns, when set, restrict crawling to matching URL paths.
	// The starting URL is always crawled.
	FollowPatterns []string

	// ConfigFilePath is the path to the configuration file.
	// If empty, .sitegraph is searched in the usual locations.
	ConfigFilePath string

	// SiteConfigs holds the loaded configuration file, if any.
	SiteConfigs *File

	// ReportFile is the path of an optional summary report.
	// The file extension selects Markdown, JSON or text.
	ReportFile string

	// ProxyAddress routes all traffic through a SOCKS5 proxy (host:port).
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes traffic through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor daemon.
	TorStartupTimeout time.Duration

	// SaveToDB stores the run in the history database.
	SaveToDB bool

	// DBDir is the directory holding the history database.
	DBDir string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxLinks:          DefaultMaxLinks,
		MaxImages:         DefaultMaxImages,
		Workers:           DefaultWorkers,
		ImageDir:          DefaultImageDir,
		LinksJSON:         DefaultLinksJSON,
		Timeout:           DefaultTimeout,
		PolitenessDelay:   DefaultPolitenessDelay,
		IdleWait:          DefaultIdleWait,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for sitegraph.
// On Linux: ~/.local/share/sitegraph
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitegraph.
// On Linux: ~/.config/sitegraph
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ManifestPath returns the path of the image manifest inside ImageDir.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.ImageDir, ManifestFile)
}

// ManifestFile is the image manifest file name.
const ManifestFile = "database.json"

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return ErrNoStartURL
	}
	u, err := url.Parse(c.StartURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidStartURL
	}

	if c.MaxLinks <= 0 {
		return ErrInvalidMaxLinks
	}
	if c.MaxImages < 0 {
		return ErrInvalidMaxImages
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.PolitenessDelay < 0 || c.IdleWait < 0 {
		return ErrInvalidDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.ImageDir == "" {
		return ErrNoImageDir
	}
	if c.LinksJSON == "" {
		return ErrNoLinksJSON
	}
	if c.ProxyAddress != "" && c.UseTor {
		return ErrConflictingProxy
	}

	return nil
}
