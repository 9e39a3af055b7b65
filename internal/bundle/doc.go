// Package bundle composes and runs the invocation of the external
// packaging tool that turns the application sources into a standalone
// distributable directory, the tree the installer compiler then stages.
//
// The flag surface mirrors PyInstaller: application name, windowed mode,
// icon, single-directory or single-file output, bundled data directories,
// and hidden/collected third-party libraries required at runtime. The
// package owns the argument composition; execution shells out to the tool.
package bundle
