package uninstaller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/setupforge/setupforge/internal/logger"
	"github.com/setupforge/setupforge/internal/receipt"
	"github.com/setupforge/setupforge/internal/service/common"
	"github.com/setupforge/setupforge/internal/shortcut"
	"github.com/setupforge/setupforge/internal/winreg"
)

// Options are inputs accepted by the uninstall entry point.
type Options struct {
	// InstallDir is the directory to uninstall from (defaults to the
	// directory containing the running executable).
	InstallDir string
	// KeepReceipt leaves the receipt file in place after removal.
	KeepReceipt bool
	// Force kills running application processes instead of aborting.
	Force bool
}

var (
	errNotInstalled   = errors.New("no install receipt found, nothing to uninstall")
	errAppIsRunning   = errors.New("application is running, close it or re-run with --force")
	errFilesRemaining = errors.New("some files could not be removed")
)

// uninstaller holds the state of a single uninstall execution.
type uninstaller struct {
	// opts are the caller-provided inputs.
	opts *Options
	// installDir is the resolved absolute install directory.
	installDir string
	// repo persists the receipt being consumed.
	repo *receipt.FileRepository
	// rec is the loaded receipt driving the removal.
	rec *receipt.Receipt
}

// Run executes the uninstall lifecycle and is the public entry point for
// the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "setupforge-uninstall")

	u, err := newUninstaller(ctx, opts)
	if err != nil {
		return err
	}

	if err = u.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Uninstall failed", "error", err)

		return err
	}

	logger.InfoKV(ctx, "Uninstall completed", "dir", u.installDir)

	return nil
}

// newUninstaller resolves the install directory and loads its receipt.
func newUninstaller(ctx context.Context, opts *Options) (*uninstaller, error) {
	dir := opts.InstallDir
	if dir == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate own executable: %w", err)
		}

		dir = filepath.Dir(self)
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve install dir: %w", err)
	}

	repo := receipt.NewFileRepository(receipt.DefaultPath(dir))

	rec, err := repo.Load(ctx)
	if err != nil {
		if errors.Is(err, receipt.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", errNotInstalled, dir)
		}

		return nil, err
	}

	logger.InfoKV(ctx, "Uninstalling",
		"app", rec.AppName,
		"version", rec.AppVersion,
		"dir", dir)

	return &uninstaller{
		opts:       opts,
		installDir: dir,
		repo:       repo,
		rec:        rec,
	}, nil
}

// Run executes the uninstall workflow:
// 1) Abort or kill running application processes.
// 2) Remove shortcuts recorded in the receipt.
// 3) Unregister the uninstall entry (Windows).
// 4) Remove receipt-listed files, deepest paths first.
// 5) Prune directories left empty.
// 6) Remove the receipt itself.
func (u *uninstaller) Run(ctx context.Context) error {
	if err := u.guardProcesses(ctx); err != nil {
		return err
	}

	u.removeShortcuts(ctx)
	u.unregisterKeys(ctx)

	if err := u.removeFiles(ctx); err != nil {
		return err
	}

	u.pruneDirs(ctx)

	if u.opts.KeepReceipt {
		logger.Info(ctx, "Keeping the install receipt as requested")

		return nil
	}

	if err := u.repo.Remove(ctx); err != nil {
		return err
	}

	// With the receipt gone the root may be empty now; removal fails
	// harmlessly while the uninstaller binary or user files remain.
	_ = os.Remove(u.installDir)

	return nil
}

// guardProcesses aborts when receipt-listed executables are running, or
// kills them when the caller forces the uninstall.
func (u *uninstaller) guardProcesses(ctx context.Context) error {
	matches, err := common.RunningProcesses(u.processNames())
	if err != nil {
		return fmt.Errorf("inspect running processes: %w", err)
	}

	if len(matches) == 0 {
		return nil
	}

	names := make([]string, 0, len(matches))
	for _, process := range matches {
		names = append(names, process.Executable())
	}

	if !u.opts.Force {
		return fmt.Errorf("%w: %s", errAppIsRunning, strings.Join(names, ", "))
	}

	logger.InfoKV(ctx, "Terminating running application processes", "processes", strings.Join(names, ", "))

	return common.TerminateProcesses(matches)
}

// processNames collects executable basenames recorded in the receipt.
func (u *uninstaller) processNames() map[string]struct{} {
	names := make(map[string]struct{})

	for _, f := range u.rec.Files {
		base := filepath.Base(filepath.FromSlash(f.RelPath))
		if strings.HasSuffix(strings.ToLower(base), ".exe") {
			names[base] = struct{}{}
		}
	}

	return names
}

// removeShortcuts deletes the shortcut files the installer created.
func (u *uninstaller) removeShortcuts(ctx context.Context) {
	for _, path := range u.rec.Shortcuts {
		if err := shortcut.Remove(path); err != nil {
			logger.WarnKV(ctx, "Failed to remove shortcut", "path", path, "error", err)

			continue
		}

		logger.DebugKV(ctx, "Shortcut removed", "path", path)
	}
}

// unregisterKeys removes the Add/Remove Programs entries. Receipts written
// on other platforms carry no keys, so ErrUnsupported is tolerated.
func (u *uninstaller) unregisterKeys(ctx context.Context) {
	for _, key := range u.rec.RegistryKeys {
		err := winreg.UnregisterUninstall(key)
		if err != nil && !errors.Is(err, winreg.ErrUnsupported) {
			logger.WarnKV(ctx, "Failed to remove registry key", "key", key, "error", err)
		}
	}
}

// removeFiles deletes every receipt-listed file, deepest paths first.
// Already-missing files are fine; any other failure keeps the receipt so
// the uninstall can be retried.
func (u *uninstaller) removeFiles(ctx context.Context) error {
	rels := make([]string, 0, len(u.rec.Files))
	for _, f := range u.rec.Files {
		rels = append(rels, f.RelPath)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(rels)))

	var removed, missing, failed int

	for _, rel := range rels {
		path := filepath.Join(u.installDir, filepath.FromSlash(rel))

		err := os.Remove(path)

		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
			missing++

			logger.DebugKV(ctx, "File already absent", "file", rel)
		default:
			failed++

			logger.WarnKV(ctx, "Failed to remove file", "file", rel, "error", err)
		}
	}

	logger.InfoKV(ctx, "Files removed", "removed", removed, "missing", missing, "failed", failed)

	if failed > 0 {
		return fmt.Errorf("%w: %d left in %s", errFilesRemaining, failed, u.installDir)
	}

	return nil
}

// pruneDirs removes directories the uninstall left empty, children before
// parents. Non-empty directories are kept, so user files survive.
func (u *uninstaller) pruneDirs(ctx context.Context) {
	seen := make(map[string]struct{})

	for _, f := range u.rec.Files {
		dir := filepath.Dir(filepath.FromSlash(f.RelPath))
		for dir != "." && dir != string(filepath.Separator) {
			seen[dir] = struct{}{}
			dir = filepath.Dir(dir)
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}

	// A child path is always longer than its parent, so length order
	// empties subtrees bottom-up.
	sort.Slice(dirs, func(i, j int) bool {
		return len(dirs[i]) > len(dirs[j])
	})

	for _, dir := range dirs {
		path := filepath.Join(u.installDir, dir)
		if err := os.Remove(path); err == nil {
			logger.DebugKV(ctx, "Pruned empty directory", "dir", dir)
		}
	}
}
