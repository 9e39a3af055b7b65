// Package version exposes build metadata injected through ldflags and a
// cobra subcommand printing it. The tool version is also embedded into
// every setup executable the compiler produces.
package version
