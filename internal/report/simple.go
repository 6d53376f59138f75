package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/proxyprobe/internal/model"
)

// ruleWidth is the width of section separators in text output.
const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so output can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...Option) *SimpleWriter {
	return &SimpleWriter{baseWriter: newBaseWriter(output, opts)}
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.BatchReport) (int, error) {
	full := report
	report = w.prepare(report)

	var sb strings.Builder
	w.writeHeader(&sb, full)
	w.writeSummary(&sb, full)
	w.writeAlive(&sb, report)
	if w.verbose {
		w.writeDead(&sb, report)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.BatchReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                         PROXYPROBE REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Started:      %s\n", formatTime(report.StartedAt))
	fmt.Fprintf(sb, "Duration:     %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(sb, "Concurrency:  %d\n", report.Concurrency)
	fmt.Fprintf(sb, "Timeout:      %s\n", report.Timeout)
	if len(report.Skipped) > 0 {
		fmt.Fprintf(sb, "Skipped:      %s\n", joinProtocols(report.Skipped))
	}
	sb.WriteString("\n")
}

// writeSummary writes per-protocol counts and the failure breakdown.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.BatchReport) {
	w.writeSection(sb, "SUMMARY")

	for _, p := range report.Protocols() {
		alive, dead := report.Summary(p)
		fmt.Fprintf(sb, "  %-8s alive: %-6d dead: %d\n", p.DisplayName()+":", alive, dead)
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  TOTAL:   %d candidates, %d alive, %d dead\n",
		report.Total(), report.AliveCount(), report.DeadCount())
	sb.WriteString("\n")

	counts := report.ReasonCounts()
	if len(counts) == 0 {
		return
	}
	sb.WriteString("  Failure reasons:\n")
	for _, reason := range model.FailureReasons() {
		if n := counts[reason]; n > 0 {
			fmt.Fprintf(sb, "    %-20s %d\n", reason.String(), n)
		}
	}
	sb.WriteString("\n")
}

// writeAlive writes alive results fastest first.
func (w *SimpleWriter) writeAlive(sb *strings.Builder, report *model.BatchReport) {
	w.writeSection(sb, "ALIVE")

	alive := report.Alive()
	if len(alive) == 0 {
		sb.WriteString("  No alive proxies\n\n")
		return
	}
	for _, r := range alive {
		fmt.Fprintf(sb, "  [+] %6s  %-6s %s\n", formatPing(r), r.Protocol.DisplayName(), r.Link)
	}
	sb.WriteString("\n")
}

// writeDead writes dead results grouped by protocol.
func (w *SimpleWriter) writeDead(sb *strings.Builder, report *model.BatchReport) {
	if report.DeadCount() == 0 {
		return
	}
	w.writeSection(sb, "DEAD")

	for _, p := range report.Protocols() {
		for _, r := range report.Results[p] {
			if r.Alive() {
				continue
			}
			fmt.Fprintf(sb, "  [-] %-6s %s\n", p.DisplayName(), r.Link)
			fmt.Fprintf(sb, "      %s", r.Reason)
			if r.Detail != "" {
				fmt.Fprintf(sb, ": %s", r.Detail)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by proxyprobe\n")
	sb.WriteString("https://github.com/nao1215/proxyprobe\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}

// formatPing renders the latency of an alive result, or "-".
func formatPing(r *model.ProbeResult) string {
	if r.PingMS == nil {
		return "-"
	}
	return fmt.Sprintf("%dms", *r.PingMS)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

func joinProtocols(protocols []model.Protocol) string {
	tags := make([]string, len(protocols))
	for i, p := range protocols {
		tags[i] = p.String()
	}
	return strings.Join(tags, ", ")
}
