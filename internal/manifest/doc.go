// Package manifest defines the declarative setup manifest consumed by the
// compiler and embedded into every produced setup executable, with helpers
// to load, validate and save it in YAML format.
//
// The manifest mirrors a classic Windows installer script: application
// metadata, file rules, shortcuts, user-selectable tasks and output
// settings, plus an optional bundle section describing how the application
// itself is packaged before compilation.
package manifest
