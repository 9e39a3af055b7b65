//go:build windows

package winreg

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// uninstallRoot is the per-user Add/Remove Programs key.
const uninstallRoot = `Software\Microsoft\Windows\CurrentVersion\Uninstall`

// registerUninstall creates the app key under HKCU and fills its values.
func registerUninstall(e UninstallEntry) (string, error) {
	keyPath := uninstallRoot + `\` + e.AppName

	k, _, err := registry.CreateKey(registry.CURRENT_USER, keyPath, registry.ALL_ACCESS)
	if err != nil {
		return "", fmt.Errorf("create uninstall key: %w", err)
	}
	defer k.Close()

	values := map[string]string{
		"DisplayName":     e.AppName,
		"DisplayVersion":  e.DisplayVersion,
		"Publisher":       e.Publisher,
		"InstallLocation": e.InstallLocation,
		"DisplayIcon":     e.DisplayIcon,
		"UninstallString": e.UninstallString,
	}

	for name, value := range values {
		if value == "" {
			continue
		}

		if err = k.SetStringValue(name, value); err != nil {
			return "", fmt.Errorf("set %s: %w", name, err)
		}
	}

	if err = k.SetDWordValue("NoModify", 1); err != nil {
		return "", fmt.Errorf("set NoModify: %w", err)
	}

	if err = k.SetDWordValue("NoRepair", 1); err != nil {
		return "", fmt.Errorf("set NoRepair: %w", err)
	}

	if e.EstimatedSizeKB > 0 {
		if err = k.SetDWordValue("EstimatedSize", e.EstimatedSizeKB); err != nil {
			return "", fmt.Errorf("set EstimatedSize: %w", err)
		}
	}

	return keyPath, nil
}

// unregisterUninstall deletes the app key; a missing key is fine.
func unregisterUninstall(key string) error {
	err := registry.DeleteKey(registry.CURRENT_USER, key)
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("delete uninstall key: %w", err)
	}

	return nil
}
