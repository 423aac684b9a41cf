package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitegraph/internal/model"
)

// SimpleWriter outputs human-readable text summaries for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose lists every failed download and every EXIF tag.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run summary in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeCrawl(&sb, report)
	w.writeDownloads(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         SITEGRAPH REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Start URL:      %s\n", report.StartURL)
	fmt.Fprintf(sb, "Base Domain:    %s\n", report.BaseDomain)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", duration(report))
	fmt.Fprintf(sb, "Status:         %s\n", status(report))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCrawl(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("CRAWL\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "  Pages:        %d (budget %d, %d workers)\n", pageCount(report), report.MaxLinks, report.Workers)
	fmt.Fprintf(sb, "  Admitted:     %d\n", report.Admitted)
	fmt.Fprintf(sb, "  Fetch errors: %d\n", report.FetchErrors)
	fmt.Fprintf(sb, "  Images found: %d\n", len(report.Images))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDownloads(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("IMAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	saved := report.SavedCount()
	fmt.Fprintf(sb, "  Attempted:    %d (limit %d)\n", len(report.Downloads), report.MaxImages)
	fmt.Fprintf(sb, "  Saved:        %d\n", saved)
	fmt.Fprintf(sb, "  Failed:       %d\n", len(report.Downloads)-saved)
	fmt.Fprintf(sb, "  With EXIF:    %d\n", report.ExifCount())
	sb.WriteString("\n")

	if !w.verbose {
		return
	}
	for _, d := range report.Downloads {
		switch {
		case !d.Succeeded():
			fmt.Fprintf(sb, "  [-] %s\n      %s\n", d.Image.Link, d.Error)
		case len(d.Exif) > 0:
			fmt.Fprintf(sb, "  [+] %s\n", d.Path)
			for _, tag := range d.Exif {
				fmt.Fprintf(sb, "      %s: %s\n", tag.Name, tag.Value)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// status describes how the run ended.
func status(report *model.CrawlReport) string {
	if report.Interrupted {
		return "Interrupted (partial results)"
	}
	return "Complete"
}

func duration(report *model.CrawlReport) string {
	if report.FinishedAt.IsZero() {
		return "-"
	}
	return report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond).String()
}

func pageCount(report *model.CrawlReport) int {
	if report.Graph == nil {
		return 0
	}
	return report.Graph.Len()
}
