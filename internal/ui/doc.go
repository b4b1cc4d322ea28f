// Package ui provides the non-interactive terminal output of the witransfer CLI.
//
// It renders with Lipgloss and follows a "print and move on" pattern: a
// Header before discovery starts, one line per peer change while it runs,
// and a Result box at the end or on failure.
//
// # Sinks
//
// Two discovery.DisplaySink implementations live here:
//
//   - PlainSink diffs consecutive snapshots and prints a "+" line for every
//     new peer and a "-" line for every removed one
//   - JSONSink writes one newline-delimited JSON snapshot per change, for
//     scripts and pipes
//
// The interactive list view lives in package tui.
//
// # Logging Integration
//
// This package expects logging to be controlled via the WITRANSFER_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, so the
// styled output stays clean on stdout while logs go to stderr.
package ui
