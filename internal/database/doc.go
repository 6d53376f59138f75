// Package database provides SQLite-based storage for probe run history.
//
// This package implements the ResultDB, which stores:
//   - one row per probe run (start time, duration, settings, totals)
//   - one row per probe result (protocol, server fingerprint, status,
//     latency, failure reason)
//
// Results are keyed by a credential-free server fingerprint so that two
// runs can be compared server by server even when the candidate strings
// differ in remark or parameter order.
//
// Design decision: We use SQLite via modernc.org/sqlite because it is
// CGO-free and keeps the whole history in a single file under the XDG
// data directory.
package database
