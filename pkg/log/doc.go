// Package log provides structured logging for Inklet built on zerolog.
//
// A single global logger is configured once at startup via Init. Long-lived
// components derive child loggers with WithComponent so every line carries a
// component field, and per-document code paths attach document_id the same
// way. Console output is the default; JSON output is used in production.
package log
