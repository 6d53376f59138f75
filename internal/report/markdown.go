package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/proxyprobe/internal/model"
)

// maxLinkWidth bounds the candidate column of Markdown tables.
const maxLinkWidth = 80

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...Option) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output, opts)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.BatchReport) (int, error) {
	full := report
	report = w.prepare(report)

	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, full)
	w.writeSummary(md, full)
	w.writeAlive(md, report)
	if w.verbose {
		w.writeDead(md, report)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.BatchReport) {
	md.H1("Proxy Liveness Report")
	md.PlainText("")

	rows := [][]string{
		{"Started", formatTime(report.StartedAt)},
		{"Duration", report.Duration.String()},
		{"Concurrency", strconv.Itoa(report.Concurrency)},
		{"Timeout", report.Timeout.String()},
	}
	if len(report.Skipped) > 0 {
		rows = append(rows, []string{"Skipped", joinProtocols(report.Skipped)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSummary writes per-protocol counts, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.BatchReport) {
	md.H2("Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Results)+1)
	for _, p := range report.Protocols() {
		alive, dead := report.Summary(p)
		rows = append(rows, []string{p.DisplayName(), strconv.Itoa(alive), strconv.Itoa(dead)})
	}
	rows = append(rows, []string{
		"**Total**",
		"**" + strconv.Itoa(report.AliveCount()) + "**",
		"**" + strconv.Itoa(report.DeadCount()) + "**",
	})
	md.Table(markdown.TableSet{
		Header: []string{"Protocol", "Alive", "Dead"},
		Rows:   rows,
	})
	md.PlainText("")

	if report.DeadCount() > 0 {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of alive results and failure reasons.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.BatchReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Probe Outcomes"),
		piechart.WithShowData(true),
	)

	if n := report.AliveCount(); n > 0 {
		chart.LabelAndIntValue("Alive", uint64(n))
	}
	counts := report.ReasonCounts()
	for _, reason := range model.FailureReasons() {
		if n := counts[reason]; n > 0 {
			chart.LabelAndIntValue(reason.String(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert that reflects the share of alive proxies.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.BatchReport) {
	switch alive := report.AliveCount(); {
	case report.Total() == 0:
		md.Note("No candidates were probed.")
	case alive == 0:
		md.Cautionf("None of the %d candidates responded.", report.Total())
	case alive*2 < report.Total():
		md.Warningf("Only %d of %d candidates are alive.", alive, report.Total())
	default:
		md.Tip(fmt.Sprintf("%d of %d candidates are alive.", alive, report.Total()))
	}
	md.PlainText("")
}

// writeAlive writes a table of alive results fastest first.
func (w *MarkdownWriter) writeAlive(md *markdown.Markdown, report *model.BatchReport) {
	md.H2("Alive Proxies")
	md.PlainText("")

	alive := report.Alive()
	if len(alive) == 0 {
		md.PlainText("No alive proxies.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(alive))
	for i, r := range alive {
		rows[i] = []string{
			r.Protocol.DisplayName(),
			formatPing(r),
			"`" + truncateString(r.Link, maxLinkWidth) + "`",
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Protocol", "Ping", "Link"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeDead writes a table of dead results with their failure reasons.
func (w *MarkdownWriter) writeDead(md *markdown.Markdown, report *model.BatchReport) {
	if report.DeadCount() == 0 {
		return
	}
	md.H2("Dead Proxies")
	md.PlainText("")

	var rows [][]string
	for _, p := range report.Protocols() {
		for _, r := range report.Results[p] {
			if r.Alive() {
				continue
			}
			detail := r.Detail
			if detail == "" {
				detail = "-"
			}
			rows = append(rows, []string{
				p.DisplayName(),
				r.Reason.String(),
				"`" + truncateString(r.Link, maxLinkWidth) + "`",
				truncateString(detail, 60),
			})
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Protocol", "Reason", "Link", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [proxyprobe](https://github.com/nao1215/proxyprobe)*")
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
