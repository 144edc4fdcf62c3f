// Package logging provides a minimal logging interface and adapters for intakemesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, finalizer and collaborators use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - IntakeLogger with component / identity scoping and turn helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(graph, func(o *engine.Options) { o.Logger = logger })
package logging
