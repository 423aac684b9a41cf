package report

import (
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/nao1215/sitegraph/internal/model"
)

// JSONWriter outputs reports in JSON format.
// It also writes the link graph and the image manifest.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run summary in JSON format.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(report)
}

// WriteGraph outputs the link graph as
// {"links": {id: link}, "link_ids": {url: id}}.
func (w *JSONWriter) WriteGraph(g *model.LinkGraph) (int, error) {
	return w.writeJSON(g)
}

// WriteManifest outputs the image manifest, mapping each image id to
// {"link": ..., "alt": ...}.
func (w *JSONWriter) WriteManifest(images map[string]model.Image) (int, error) {
	if images == nil {
		images = map[string]model.Image{}
	}
	return w.writeJSON(images)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps the run summary with the version of the tool.
type JSONReport struct {
	// Version is the sitegraph version that generated this report.
	Version string `json:"version"`

	// Report is the run summary.
	Report *model.CrawlReport `json:"report"`

	// Pages is the number of pages in the link graph.
	Pages int `json:"pages"`

	// ImagesFound is the number of (page, image) pairs.
	ImagesFound int `json:"images_found"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(report *model.CrawlReport, version string) *JSONReport {
	r := &JSONReport{
		Version:     version,
		Report:      report,
		ImagesFound: len(report.Images),
	}
	if report.Graph != nil {
		r.Pages = report.Graph.Len()
	}
	return r
}

// FullJSONWriter outputs run summaries with a metadata wrapper.
type FullJSONWriter struct {
	*JSONWriter

	// version is the sitegraph version string.
	version string
}

// NewFullJSONWriter creates a writer for run summaries with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the run summary wrapped with metadata.
func (w *FullJSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}

// SaveGraph writes g to path as compact JSON.
func SaveGraph(path string, g *model.LinkGraph) error {
	return SaveFile(path, func(out io.Writer) error {
		_, err := NewJSONWriter(out).WriteGraph(g)
		return err
	})
}

// SaveManifest writes the image manifest to dir/name as compact JSON.
func SaveManifest(dir, name string, images map[string]model.Image) error {
	return SaveFile(filepath.Join(dir, name), func(out io.Writer) error {
		_, err := NewJSONWriter(out).WriteManifest(images)
		return err
	})
}
