package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/proxyprobe/internal/model"
)

// JSONWriter outputs the protocol-to-results mapping as JSON:
//
//	{"vless": [{"link": "...", "status": "alive", "ping_ms": 42, ...}], ...}
//
// This is the shape ranking tools consume, so it carries no run metadata.
type JSONWriter struct {
	baseWriter
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...Option) *JSONWriter {
	return &JSONWriter{baseWriter: newBaseWriter(output, opts)}
}

// Write outputs the results of every dispatched protocol in JSON format.
func (w *JSONWriter) Write(report *model.BatchReport) (int, error) {
	return w.writeJSON(w.prepare(report).Results)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)

	if w.indentString != "" {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONSummary holds the counts of a run.
type JSONSummary struct {
	Total   int                         `json:"total"`
	Alive   int                         `json:"alive"`
	Dead    int                         `json:"dead"`
	Reasons map[model.FailureReason]int `json:"reasons,omitempty"`
}

// JSONReport wraps the result mapping with run metadata.
//
// Design decision: We wrap the results rather than adding fields to
// BatchReport so the plain mapping stays stable for downstream tools.
type JSONReport struct {
	// Version is the proxyprobe version that generated this report.
	Version string `json:"version"`

	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Concurrency int       `json:"concurrency"`
	TimeoutMS   int64     `json:"timeout_ms"`

	// Skipped lists protocol tags that had no probe.
	Skipped []model.Protocol `json:"skipped,omitempty"`

	Summary JSONSummary                             `json:"summary"`
	Results map[model.Protocol][]*model.ProbeResult `json:"results"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(report *model.BatchReport, version string) *JSONReport {
	return &JSONReport{
		Version:     version,
		StartedAt:   report.StartedAt,
		DurationMS:  report.Duration.Milliseconds(),
		Concurrency: report.Concurrency,
		TimeoutMS:   report.Timeout.Milliseconds(),
		Skipped:     report.Skipped,
		Summary: JSONSummary{
			Total:   report.Total(),
			Alive:   report.AliveCount(),
			Dead:    report.DeadCount(),
			Reasons: report.ReasonCounts(),
		},
		Results: report.Results,
	}
}

// FullJSONWriter outputs reports wrapped with run metadata.
type FullJSONWriter struct {
	*JSONWriter

	// version is the proxyprobe version string.
	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...Option) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the report wrapped with metadata.
// The summary always counts the whole run, even with WithAliveOnly.
func (w *FullJSONWriter) Write(report *model.BatchReport) (int, error) {
	wrapped := NewJSONReport(report, w.version)
	wrapped.Results = w.prepare(report).Results
	return w.writeJSON(wrapped)
}
