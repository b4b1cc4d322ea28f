// Package logging provides structured logging for WiTransfer.
//
// This package wraps a global zap logger with convenience functions used by
// the discovery engine and the CLI. Logging is silent unless a level is given
// explicitly or through the WITRANSFER_LOG_LEVEL environment variable, so the
// peer list printed by the CLI is not interleaved with diagnostics.
//
// # Log Levels
//
//   - Debug: datagram dumps, admission rejections, decode drops
//   - Info: session lifecycle, newly discovered and expired peers
//   - Warn: degraded components (listener or announcer stopped)
//   - Error: transport failures
//
// # Usage
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
//	logging.LogPeerEvent("discovered", addr, "Bob - bob-pc")
//
// Logs are written to stderr in console format.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use, including while
// Initialize or SetLogger replaces the logger.
package logging
