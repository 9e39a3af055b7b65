// Package winreg publishes installs to the Windows Add/Remove Programs
// registry (HKCU uninstall keys). Non-Windows builds compile but report
// ErrUnsupported, letting callers skip registration gracefully.
package winreg
