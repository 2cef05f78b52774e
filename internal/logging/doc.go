// Package logging provides a simple leveled logging interface for the
// RAW organizer pipeline.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: Stage progress and summaries
//   - WARN: Per-item failures that do not stop a batch
//   - ERROR: Error conditions
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to DEBUG with DEBUG=1. Stages log through a Component obtained from
// Prefixed so messages can be attributed:
//
//	log := logging.Prefixed("convert")
//	log.Warn("failed to render %s: %v", path, err)
package logging
