// Package pkg provides shared utilities for the softhid host engine.
//
// This package contains common functionality used across the engine, the
// platform backends and the command-line tool, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors and the stable [Status] completion codes
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with engine-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentEngine, "device opened", "variant", "hc")
//
// [LogFormatConsole] renders records through zerolog's console writer for
// interactive use.
//
// # Errors
//
// Message outcomes are reported as a [Status] and its sentinel error:
//
//	if errors.Is(msg.Err(), pkg.ErrDisconnected) {
//	    // The device went away; reopen before retrying.
//	}
package pkg
