//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/setupforge/setupforge/internal/logger"
)

const (
	// ExecutableFileMode is applied to binaries placed by the setup tooling.
	ExecutableFileMode os.FileMode = 0o755

	// MarkerLifetime is the period after which a stale setup marker is
	// reclaimed. Installs of large payloads can take a while, hence the
	// generous window.
	MarkerLifetime = 30 * time.Minute
)

// MarkerPath returns the per-app marker location in the temp directory.
// The marker prevents two setup runs for the same application from racing.
func MarkerPath(appName string) string {
	name := strings.ToLower(strings.ReplaceAll(appName, " ", "-"))

	return filepath.Join(os.TempDir(), "setupforge-install-"+name+".marker")
}

// IsSetupRunningNow checks presence of a marker file and attempts recovery
// if it looks stale.
func IsSetupRunningNow(ctx context.Context, path string) bool {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false
	}

	if time.Since(fileInfo.ModTime()) <= MarkerLifetime {
		return true
	}

	logger.Info(ctx, "The setup marker is too old, attempting cleanup")

	if err = os.Remove(path); err != nil {
		return true
	}

	return false
}

// CreateMarker writes the concurrent-run marker.
func CreateMarker(path string) error {
	marker, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create setup marker: %w", err)
	}

	return marker.Close()
}

// RunningProcesses returns the processes whose executable basename is in
// names, excluding the current process.
func RunningProcesses(names map[string]struct{}) ([]ps.Process, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	thisProcessID := os.Getpid()

	var matches []ps.Process

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if _, found := names[process.Executable()]; found {
			matches = append(matches, process)
		}
	}

	return matches, nil
}

// TerminateProcesses kills every listed process.
func TerminateProcesses(processes []ps.Process) error {
	for _, process := range processes {
		runningProcess, err := os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return fmt.Errorf("kill %s (pid %d): %w", process.Executable(), process.Pid(), err)
		}
	}

	return nil
}

// CopyExecutable clones src to dst with executable permissions.
func CopyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, ExecutableFileMode)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()

		return err
	}

	return out.Close()
}
