//go:build windows

package shortcut

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// linkExtension is the shortcut filename suffix on Windows.
const linkExtension = ".lnk"

// comAlreadyInitialized is the S_FALSE HRESULT CoInitializeEx returns when
// the calling thread already holds a COM apartment.
const comAlreadyInitialized = 1

// Dirs returns the per-user desktop and start-menu programs directories.
func Dirs() (string, string, error) {
	home := os.Getenv("USERPROFILE")
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", "", fmt.Errorf("resolve user profile: %w", err)
		}
	}

	appData := os.Getenv("APPDATA")
	if appData == "" {
		appData = filepath.Join(home, "AppData", "Roaming")
	}

	desktop := filepath.Join(home, "Desktop")
	startMenu := filepath.Join(appData, "Microsoft", "Windows", "Start Menu", "Programs")

	return desktop, startMenu, nil
}

// createPlatform writes a .lnk file through the WScript.Shell COM object.
func createPlatform(path string, spec Spec) error {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != comAlreadyInitialized {
			return fmt.Errorf("initialize COM: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return fmt.Errorf("create WScript.Shell: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("query shell dispatch: %w", err)
	}
	defer shell.Release()

	result, err := oleutil.CallMethod(shell, "CreateShortcut", path)
	if err != nil {
		return fmt.Errorf("create shortcut object: %w", err)
	}

	link := result.ToIDispatch()
	defer link.Release()

	if _, err = oleutil.PutProperty(link, "TargetPath", spec.TargetPath); err != nil {
		return fmt.Errorf("set target path: %w", err)
	}

	if spec.WorkingDir != "" {
		if _, err = oleutil.PutProperty(link, "WorkingDirectory", spec.WorkingDir); err != nil {
			return fmt.Errorf("set working directory: %w", err)
		}
	}

	if spec.IconPath != "" {
		if _, err = oleutil.PutProperty(link, "IconLocation", spec.IconPath); err != nil {
			return fmt.Errorf("set icon: %w", err)
		}
	}

	if spec.Description != "" {
		if _, err = oleutil.PutProperty(link, "Description", spec.Description); err != nil {
			return fmt.Errorf("set description: %w", err)
		}
	}

	if _, err = oleutil.CallMethod(link, "Save"); err != nil {
		return fmt.Errorf("save shortcut: %w", err)
	}

	return nil
}
