// Package shortcut creates and removes application launchers.
//
// On Windows a shortcut is a .lnk file written through the WScript.Shell
// COM automation object. Everywhere else it is a freedesktop .desktop
// entry. Callers pick a Placement (desktop or start menu) and the package
// resolves the per-user directory for it.
package shortcut
