// Package report renders probe batch results.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: The protocol-to-results mapping consumed by ranking tools
//   - FullJSONWriter: JSONWriter output wrapped with run metadata
//   - MarkdownWriter: Tables and a pie chart for sharing
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
