// Package logger is a thin wrapper around zap providing:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName),
//   - level parsing and runtime level changes,
//   - convenience functions (Infof, WarnKV, ErrorKV, ...).
//
// Commands name the logger once at their entry point; services accept a
// context and log through it, so the name follows the whole operation.
package logger
