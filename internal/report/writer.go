package report

import (
	"io"

	"github.com/nao1215/proxyprobe/internal/model"
)

// Writer defines the interface for report output.
// Implementations write batch results in various formats.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.BatchReport) (int, error)
}

// MultiWriter fans one batch out to several writers, for example a JSON
// file plus the terminal summary.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write passes the report to each writer in order and stops at the first error.
func (m *MultiWriter) Write(report *model.BatchReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Option configures a report writer.
// Options that do not apply to a writer are ignored by it.
type Option func(*settings)

type settings struct {
	// aliveOnly drops dead results before rendering.
	aliveOnly bool

	// indentPrefix and indentString control JSON pretty printing.
	// An empty indentString produces compact JSON.
	indentPrefix string
	indentString string

	// verbose lists dead results with their failure detail.
	verbose bool
}

// WithAliveOnly renders only alive results.
func WithAliveOnly(aliveOnly bool) Option {
	return func(s *settings) {
		s.aliveOnly = aliveOnly
	}
}

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) Option {
	return func(s *settings) {
		s.indentPrefix = prefix
		s.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() Option {
	return WithIndent("", "  ")
}

// WithVerbose lists every dead result in text and Markdown output.
func WithVerbose(verbose bool) Option {
	return func(s *settings) {
		s.verbose = verbose
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
	settings
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer, opts []Option) baseWriter {
	w := baseWriter{output: output}
	for _, opt := range opts {
		opt(&w.settings)
	}
	return w
}

// prepare applies report filtering shared by every writer.
func (w baseWriter) prepare(report *model.BatchReport) *model.BatchReport {
	if w.aliveOnly {
		return report.AliveOnly()
	}
	return report
}
