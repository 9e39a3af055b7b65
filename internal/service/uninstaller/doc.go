// Package uninstaller removes an installation recorded by the installer.
//
// It is driven entirely by the install receipt: only files, shortcuts and
// registry keys listed there are touched, so anything the user added to the
// install directory survives. Directories left empty by the removal are
// pruned. The running uninstaller binary never deletes itself; at most the
// uninstaller and the (then empty) install root remain.
package uninstaller
