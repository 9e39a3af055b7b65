//go:build !windows

package winreg

// registerUninstall has no registry to write to outside Windows.
func registerUninstall(_ UninstallEntry) (string, error) {
	return "", ErrUnsupported
}

// unregisterUninstall has no registry to delete from outside Windows.
func unregisterUninstall(_ string) error {
	return ErrUnsupported
}
