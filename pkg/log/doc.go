/*
Package log provides structured logging for Ferret using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. Scan output (result lines, banner,
summary) is written to stdout by the sink package; everything here goes to
stderr so the two streams stay separable.

# Usage

Initializing the Logger:

	import "github.com/cuemby/ferret/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
	})

Component Loggers:

	scanLog := log.WithComponent("scan")
	scanLog.Info().Int("hosts", 254).Msg("Refilled probe queue")

	log.Logger.Warn().
		Str("ip", "10.0.0.255").
		Msg("Network is unreachable, suppressing further warnings for host")

# Integration Points

This package integrates with:

  - pkg/scan: scan driver lifecycle and pacing diagnostics
  - pkg/sink: warning delivery and debug log notices
  - cmd/ferret: metrics listener failures and broker event logging
*/
package log
