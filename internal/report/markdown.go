package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/sitegraph/internal/model"
)

// MarkdownWriter outputs run summaries in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run summary in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writePages(md, report)
	w.writeDownloads(md, report)
	w.writeExif(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the crawl overview.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Sitegraph Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + report.StartURL + "`"},
			{"Base Domain", "`" + report.BaseDomain + "`"},
			{"Crawl Date", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", duration(report)},
			{"Pages", strconv.Itoa(pageCount(report)) + " / " + strconv.Itoa(report.MaxLinks)},
			{"Workers", strconv.Itoa(report.Workers)},
			{"Fetch Errors", strconv.FormatInt(report.FetchErrors, 10)},
			{"Images Found", strconv.Itoa(len(report.Images))},
			{"Status", w.statusText(report)},
		},
	})
	md.PlainText("")

	switch {
	case report.Interrupted:
		md.Warningf("The crawl was interrupted after %d page(s). Results are partial.", pageCount(report))
	case report.FetchErrors > 0:
		md.Importantf("%d page(s) could not be fetched. They appear in the graph without content.", report.FetchErrors)
	default:
		md.Tip("All admitted pages were fetched.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) statusText(report *model.CrawlReport) string {
	if report.Interrupted {
		return "⚠️ Interrupted (partial results)"
	}
	return "✅ Complete"
}

// writePages writes one row per page of the link graph.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Pages")
	md.PlainText("")

	if pageCount(report) == 0 {
		md.PlainText("No pages were crawled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, report.Graph.Len())
	report.Graph.Each(func(link *model.Link) bool {
		title := "-"
		if len(link.Titles) > 0 {
			title = truncateString(link.Titles[0], 50)
		}
		rows = append(rows, []string{
			truncateString(link.URL, 60),
			escapeCell(title),
			strconv.Itoa(len(link.Parents)),
			strconv.Itoa(len(link.Children)),
			strconv.Itoa(len(link.Images)),
		})
		return true
	})

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Title", "Parents", "Children", "Images"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeDownloads writes the image download results.
func (w *MarkdownWriter) writeDownloads(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Images")
	md.PlainText("")

	if len(report.Downloads) == 0 {
		md.PlainText("No images were downloaded.")
		md.PlainText("")
		return
	}

	saved := report.SavedCount()
	failed := len(report.Downloads) - saved
	w.writePieChart(md, saved, failed)

	rows := make([][]string, len(report.Downloads))
	for i, d := range report.Downloads {
		result := "✅ " + d.Path
		if !d.Succeeded() {
			result = "❌ " + truncateString(d.Error, 60)
		}
		alt := d.Image.Alt
		if alt == "" {
			alt = "-"
		}
		rows[i] = []string{
			"`" + d.ID + "`",
			truncateString(d.Image.Link, 60),
			escapeCell(truncateString(alt, 40)),
			escapeCell(result),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"ID", "Link", "Alt", "Result"},
		Rows:   rows,
	})
	md.PlainText("")

	if failed > 0 {
		md.Note(strconv.Itoa(failed) + " image(s) could not be downloaded after retrying.")
		md.PlainText("")
	}
}

// writePieChart writes a mermaid pie chart of download outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, saved, failed int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Image Downloads"),
		piechart.WithShowData(true),
	)
	if saved > 0 {
		chart.LabelAndIntValue("Saved", uint64(saved))
	}
	if failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(failed))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeExif lists the EXIF tags of each image carrying them.
func (w *MarkdownWriter) writeExif(md *markdown.Markdown, report *model.CrawlReport) {
	if report.ExifCount() == 0 {
		return
	}

	md.H2("EXIF Metadata")
	md.PlainText("")
	md.Warningf("%d image(s) carry EXIF metadata such as device or location data.", report.ExifCount())
	md.PlainText("")

	for _, d := range report.Downloads {
		if len(d.Exif) == 0 {
			continue
		}
		lines := make([]string, len(d.Exif))
		for i, tag := range d.Exif {
			lines[i] = tag.Name + ": " + tag.Value
		}
		md.Details(d.ID, strings.Join(lines, "\n"))
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitegraph](https://github.com/nao1215/sitegraph)*")
}

// escapeCell keeps table cells on one row.
func escapeCell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
