// Package model defines the core data structures shared by proxyprobe packages.
//
// This package contains the following main types:
//   - Protocol: The tag identifying which probe and parsing rules apply to a candidate
//   - Endpoint: The parsed, structured form of a candidate string
//   - ProbeResult: The terminal alive/dead classification of a single candidate
//   - BatchReport: All probe results of one run grouped by protocol
//   - FailureReason: The error taxonomy every dead result carries
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The endpoint parser, the probes, the orchestrator, the database
// and the report writers all need these types.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
