package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitegraph/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "sitegraph.db"

// timestampLayout is how run timestamps are stored.
const timestampLayout = "2006-01-02 15:04:05"

// CrawlDB stores the history of crawl runs in SQLite.
// Each run keeps its summary, its pages and its downloaded images.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_url TEXT NOT NULL,
		base_domain TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		report_json TEXT NOT NULL,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_domain ON runs(base_domain);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	-- Pages of the link graph of a run
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		link_id TEXT NOT NULL,
		title TEXT,
		parents INTEGER DEFAULT 0,
		children INTEGER DEFAULT 0,
		images INTEGER DEFAULT 0,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);

	-- Images a run tried to download
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		image_id TEXT NOT NULL,
		link TEXT NOT NULL,
		alt TEXT,
		path TEXT,
		size INTEGER DEFAULT 0,
		sha3 TEXT,
		exif TEXT,
		error TEXT,
		UNIQUE(run_id, image_id)
	);

	CREATE INDEX IF NOT EXISTS idx_images_sha3 ON images(sha3);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunSummary holds the counts shown in run listings.
type RunSummary struct {
	Pages       int   `json:"pages"`
	ImagesFound int   `json:"images_found"`
	Saved       int   `json:"saved"`
	Failed      int   `json:"failed"`
	FetchErrors int64 `json:"fetch_errors"`
	Interrupted bool  `json:"interrupted"`
}

// newRunSummary computes the summary of report.
func newRunSummary(report *model.CrawlReport) RunSummary {
	s := RunSummary{
		ImagesFound: len(report.Images),
		Saved:       report.SavedCount(),
		Failed:      len(report.Downloads) - report.SavedCount(),
		FetchErrors: report.FetchErrors,
		Interrupted: report.Interrupted,
	}
	if report.Graph != nil {
		s.Pages = report.Graph.Len()
	}
	return s
}

// SaveRun stores report, its pages and its downloads in one transaction
// and returns the run id.
func (cdb *CrawlDB) SaveRun(ctx context.Context, report *model.CrawlReport) (runID int64, err error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}
	summaryJSON, err := json.Marshal(newRunSummary(report))
	if err != nil {
		return 0, fmt.Errorf("failed to serialize summary: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (start_url, base_domain, timestamp, report_json, summary)
	VALUES (?, ?, ?, ?, ?)
	`,
		report.StartURL,
		report.BaseDomain,
		report.StartedAt.UTC().Format(timestampLayout),
		string(reportJSON),
		string(summaryJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	runID, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	if err := insertPages(ctx, tx, runID, report.Graph); err != nil {
		return 0, err
	}
	if err := insertImages(ctx, tx, runID, report.Downloads); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// insertPages stores one row per page of g.
// A page stored twice for the same run is updated in place.
func insertPages(ctx context.Context, tx *sql.Tx, runID int64, g *model.LinkGraph) error {
	if g == nil {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (run_id, url, link_id, title, parents, children, images)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		link_id = excluded.link_id,
		title = excluded.title,
		parents = excluded.parents,
		children = excluded.children,
		images = excluded.images
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	var insertErr error
	g.Each(func(link *model.Link) bool {
		title := ""
		if len(link.Titles) > 0 {
			title = link.Titles[0]
		}
		_, insertErr = stmt.ExecContext(ctx, runID, link.URL, link.ID, title,
			len(link.Parents), len(link.Children), len(link.Images))
		return insertErr == nil
	})
	if insertErr != nil {
		return fmt.Errorf("failed to insert page: %w", insertErr)
	}
	return nil
}

// insertImages stores one row per download.
func insertImages(ctx context.Context, tx *sql.Tx, runID int64, downloads []model.Download) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO images (run_id, image_id, link, alt, path, size, sha3, exif, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range downloads {
		exifJSON := ""
		if len(d.Exif) > 0 {
			data, err := json.Marshal(d.Exif)
			if err != nil {
				return fmt.Errorf("failed to serialize exif: %w", err)
			}
			exifJSON = string(data)
		}
		if _, err := stmt.ExecContext(ctx, runID, d.ID, d.Image.Link, d.Image.Alt,
			d.Path, d.Size, d.SHA3, exifJSON, d.Error); err != nil {
			return fmt.Errorf("failed to insert image: %w", err)
		}
	}
	return nil
}

// RunMetadata contains summary information about a stored run.
// It is used for listings without loading the full report.
type RunMetadata struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// StartURL is the seed of the run.
	StartURL string

	// BaseDomain is the crawled domain.
	BaseDomain string

	// Timestamp is when the run started.
	Timestamp time.Time

	// Summary contains the page and image counts.
	Summary RunSummary
}

// ListDomains returns every crawled domain.
func (cdb *CrawlDB) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT DISTINCT base_domain FROM runs
	ORDER BY base_domain
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}

// GetRunHistory returns the runs of a domain, newest first.
func (cdb *CrawlDB) GetRunHistory(ctx context.Context, baseDomain string) ([]RunMetadata, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT id, start_url, base_domain, timestamp, summary
	FROM runs
	WHERE base_domain = ?
	ORDER BY timestamp DESC, id DESC
	`, baseDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var timestamp string
		var summaryJSON sql.NullString

		if err := rows.Scan(&meta.ID, &meta.StartURL, &meta.BaseDomain, &timestamp, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		if summaryJSON.Valid && summaryJSON.String != "" {
			// A malformed summary leaves the counts at zero.
			_ = json.Unmarshal([]byte(summaryJSON.String), &meta.Summary)
		}
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetRunByID retrieves the report of a run. The link graph is not part
// of the stored report, use GetRunPages for the pages.
// It returns nil if there is no such run.
func (cdb *CrawlDB) GetRunByID(ctx context.Context, id int64) (*model.CrawlReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `
	SELECT report_json FROM runs
	WHERE id = ?
	`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// PageRecord is a stored page.
type PageRecord struct {
	RunID    int64
	URL      string
	LinkID   string
	Title    string
	Parents  int
	Children int
	Images   int
}

// GetRunPages returns the pages of a run ordered by URL.
func (cdb *CrawlDB) GetRunPages(ctx context.Context, runID int64) ([]PageRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT run_id, url, link_id, title, parents, children, images
	FROM pages
	WHERE run_id = ?
	ORDER BY url
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		var p PageRecord
		var title sql.NullString
		if err := rows.Scan(&p.RunID, &p.URL, &p.LinkID, &title, &p.Parents, &p.Children, &p.Images); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Title = title.String
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ImageRecord is a stored download.
type ImageRecord struct {
	RunID   int64
	ImageID string
	Link    string
	Alt     string
	Path    string
	Size    int64
	SHA3    string
	Exif    []model.ExifTag
	Error   string
}

// GetRunImages returns the downloads of a run ordered by image id.
func (cdb *CrawlDB) GetRunImages(ctx context.Context, runID int64) ([]ImageRecord, error) {
	return cdb.queryImages(ctx, `
	SELECT run_id, image_id, link, alt, path, size, sha3, exif, error
	FROM images
	WHERE run_id = ?
	ORDER BY image_id
	`, runID)
}

// FindImagesByDigest returns every stored image with the given SHA3-256
// digest, across all runs.
func (cdb *CrawlDB) FindImagesByDigest(ctx context.Context, digest string) ([]ImageRecord, error) {
	return cdb.queryImages(ctx, `
	SELECT run_id, image_id, link, alt, path, size, sha3, exif, error
	FROM images
	WHERE sha3 = ?
	ORDER BY run_id, image_id
	`, digest)
}

func (cdb *CrawlDB) queryImages(ctx context.Context, query string, args ...any) ([]ImageRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []ImageRecord
	for rows.Next() {
		var r ImageRecord
		var alt, path, sha3, exifJSON, errText sql.NullString
		if err := rows.Scan(&r.RunID, &r.ImageID, &r.Link, &alt, &path, &r.Size, &sha3, &exifJSON, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		r.Alt = alt.String
		r.Path = path.String
		r.SHA3 = sha3.String
		r.Error = errText.String
		if exifJSON.String != "" {
			if err := json.Unmarshal([]byte(exifJSON.String), &r.Exif); err != nil {
				return nil, fmt.Errorf("failed to parse exif: %w", err)
			}
		}
		images = append(images, r)
	}
	return images, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses a timestamp in any of timestampFormats.
// It returns the zero time if none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
