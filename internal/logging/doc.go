// Package logging provides structured logging for ragpipe with size-based
// file rotation. Logs are written to ~/.ragpipe/logs/ and, by default, also
// to stderr. Console output uses a human-readable handler when stderr is a
// terminal and JSON otherwise, so piped output stays machine-parseable.
package logging
