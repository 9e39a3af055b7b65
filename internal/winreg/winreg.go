package winreg

import "errors"

// UninstallEntry holds the values published under the app's uninstall key.
type UninstallEntry struct {
	// AppName becomes the registry key name and DisplayName value.
	AppName string
	// DisplayVersion is the version string shown in Add/Remove Programs.
	DisplayVersion string
	// Publisher is the vendor shown in Add/Remove Programs.
	Publisher string
	// InstallLocation is the absolute install directory.
	InstallLocation string
	// DisplayIcon optionally points at the app icon.
	DisplayIcon string
	// UninstallString is the command Windows runs to uninstall the app.
	UninstallString string
	// EstimatedSizeKB is the installed footprint in kilobytes.
	EstimatedSizeKB uint32
}

// ErrUnsupported is returned on platforms without a Windows registry.
var ErrUnsupported = errors.New("uninstall registration requires Windows")

var errAppNameRequired = errors.New("uninstall entry requires an app name")

// RegisterUninstall writes the app's uninstall key and returns its path
// relative to HKCU.
func RegisterUninstall(e UninstallEntry) (string, error) {
	if e.AppName == "" {
		return "", errAppNameRequired
	}

	return registerUninstall(e)
}

// UnregisterUninstall removes a previously written uninstall key.
// Empty and already-removed keys are not errors.
func UnregisterUninstall(key string) error {
	if key == "" {
		return nil
	}

	return unregisterUninstall(key)
}
