package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitegraph/internal/database"
	"github.com/nao1215/sitegraph/internal/model"
)

// TestNewHistoryCmd tests the history command creation.
func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()

	if cmd.Use != "history [domain]" {
		t.Errorf("unexpected Use: got %q", cmd.Use)
	}

	flagsWithShort := map[string]string{
		"list-domains": "L",
		"id":           "i",
		"compare":      "c",
		"digest":       "d",
		"json":         "j",
	}
	for flag, shorthand := range flagsWithShort {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			t.Errorf("expected flag %q to exist", flag)
			continue
		}
		if f.Shorthand != shorthand {
			t.Errorf("flag %q: expected shorthand %q, got %q", flag, shorthand, f.Shorthand)
		}
	}
	if cmd.Flags().Lookup("db-dir") == nil {
		t.Error("expected db-dir flag")
	}
}

// seedRun stores a run of example.com with the given pages and image digests.
func seedRun(t *testing.T, db *database.CrawlDB, startedAt time.Time, pages []string, digests map[string]string) int64 {
	t.Helper()

	report := model.NewCrawlReport("https://example.com/")
	report.BaseDomain = "example.com"
	report.StartedAt = startedAt
	report.FinishedAt = startedAt.Add(time.Second)

	parent := ""
	for _, page := range pages {
		if err := report.Graph.Update(page, parent, nil, nil, nil); err != nil {
			t.Fatalf("failed to build graph: %v", err)
		}
		parent = page
	}

	report.Images = make(map[string]model.Image)
	for link, digest := range digests {
		id := "id-" + digest
		report.Images[id] = model.Image{Link: link}
		report.Downloads = append(report.Downloads, model.Download{
			ID:    id,
			Image: model.Image{Link: link},
			Path:  filepath.Join("images", id+".png"),
			Size:  10,
			SHA3:  digest,
		})
	}

	id, err := db.SaveRun(context.Background(), report)
	if err != nil {
		t.Fatalf("failed to save run: %v", err)
	}
	return id
}

// setupHistoryDB creates a database with two runs of example.com.
func setupHistoryDB(t *testing.T) (string, int64) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	seedRun(t, db, base,
		[]string{"https://example.com/", "https://example.com/old"},
		map[string]string{"https://example.com/a.png": "aaaa"},
	)
	latest := seedRun(t, db, base.Add(24*time.Hour),
		[]string{"https://example.com/", "https://example.com/new"},
		map[string]string{
			"https://example.com/a.png": "aaaa",
			"https://example.com/b.png": "bbbb",
		},
	)
	return dir, latest
}

// runHistory executes the history command and returns its output.
func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// TestHistoryCmd tests the history command against a seeded database.
func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("requires a domain", func(t *testing.T) {
		t.Parallel()

		_, err := runHistory(t, "--db-dir", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "domain is required") {
			t.Errorf("expected domain error, got %v", err)
		}
	})

	t.Run("lists domains", func(t *testing.T) {
		t.Parallel()

		dir, _ := setupHistoryDB(t)
		output, err := runHistory(t, "--db-dir", dir, "-L")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "example.com") {
			t.Errorf("expected example.com in output, got:\n%s", output)
		}
	})

	t.Run("lists domains as JSON", func(t *testing.T) {
		t.Parallel()

		dir, _ := setupHistoryDB(t)
		output, err := runHistory(t, "--db-dir", dir, "-L", "-j")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var domains []string
		if err := json.Unmarshal([]byte(output), &domains); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(domains) != 1 || domains[0] != "example.com" {
			t.Errorf("expected [example.com], got %v", domains)
		}
	})

	t.Run("empty database", func(t *testing.T) {
		t.Parallel()

		output, err := runHistory(t, "--db-dir", t.TempDir(), "-L")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "No crawled domains") {
			t.Errorf("expected empty message, got:\n%s", output)
		}
	})

	t.Run("lists runs of a domain given as URL", func(t *testing.T) {
		t.Parallel()

		dir, _ := setupHistoryDB(t)
		output, err := runHistory(t, "--db-dir", dir, "https://EXAMPLE.com/path")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "2 runs") {
			t.Errorf("expected 2 runs, got:\n%s", output)
		}
		if !strings.Contains(output, "2025-01-02") {
			t.Errorf("expected run date in output, got:\n%s", output)
		}
	})

	t.Run("shows a run", func(t *testing.T) {
		t.Parallel()

		dir, latest := setupHistoryDB(t)
		output, err := runHistory(t, "--db-dir", dir, "--id", itoa(latest))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"https://example.com/new", "https://example.com/b.png", "Pages (2)", "Images (2)"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("unknown run id", func(t *testing.T) {
		t.Parallel()

		dir, _ := setupHistoryDB(t)
		_, err := runHistory(t, "--db-dir", dir, "--id", "999")
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("finds images by digest", func(t *testing.T) {
		t.Parallel()

		dir, _ := setupHistoryDB(t)
		output, err := runHistory(t, "--db-dir", dir, "--digest", "AAAA", "-j")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var imgs []database.ImageRecord
		if err := json.Unmarshal([]byte(output), &imgs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(imgs) != 2 {
			t.Errorf("expected 2 images, got %d", len(imgs))
		}
	})

	t.Run("compares the latest two runs", func(t *testing.T) {
		t.Parallel()

		dir, _ := setupHistoryDB(t)
		output, err := runHistory(t, "--db-dir", dir, "--compare", "example.com", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var result ComparisonResult
		if err := json.Unmarshal([]byte(output), &result); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(result.AddedPages) != 1 || result.AddedPages[0] != "https://example.com/new" {
			t.Errorf("expected added /new, got %v", result.AddedPages)
		}
		if len(result.RemovedPages) != 1 || result.RemovedPages[0] != "https://example.com/old" {
			t.Errorf("expected removed /old, got %v", result.RemovedPages)
		}
		if len(result.NewImages) != 1 || result.NewImages[0] != "https://example.com/b.png" {
			t.Errorf("expected new b.png, got %v", result.NewImages)
		}
		if result.UnchangedPages != 1 {
			t.Errorf("expected 1 unchanged page, got %d", result.UnchangedPages)
		}
	})

	t.Run("compares as text", func(t *testing.T) {
		t.Parallel()

		dir, _ := setupHistoryDB(t)
		output, err := runHistory(t, "--db-dir", dir, "-c", "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Run Comparison: example.com", "[+] https://example.com/new", "[-] https://example.com/old"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("comparison needs two runs", func(t *testing.T) {
		t.Parallel()

		_, err := runHistory(t, "--db-dir", t.TempDir(), "-c", "example.com")
		if err == nil || !strings.Contains(err.Error(), "no run history") {
			t.Errorf("expected no history error, got %v", err)
		}
	})
}

// TestFormatDelta tests signed delta formatting.
func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := map[int]string{3: "+3", 0: "0", -2: "-2"}
	for delta, expected := range tests {
		if got := formatDelta(delta); got != expected {
			t.Errorf("formatDelta(%d): expected %q, got %q", delta, expected, got)
		}
	}
}

// TestNormalizeDomain tests domain argument normalization.
func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"example.com":                 "example.com",
		"Example.COM.":                "example.com",
		"https://www.example.com/a?b": "www.example.com",
		" example.com ":               "example.com",
	}
	for in, expected := range tests {
		if got := normalizeDomain(in); got != expected {
			t.Errorf("normalizeDomain(%q): expected %q, got %q", in, expected, got)
		}
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
