// Package installer is the runtime of every emitted setup executable.
//
// It reads the trailer appended to its own binary, unpacks the payload into
// the install directory, creates the manifest's shortcuts, registers the
// uninstall entry on Windows, and writes the install receipt the
// uninstaller later consumes. A marker file prevents concurrent installer
// runs and running application processes abort the install unless the
// caller forces termination.
package installer
