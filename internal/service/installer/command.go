package installer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/setupforge/setupforge/internal/logger"
	"github.com/setupforge/setupforge/internal/manifest"
	"github.com/setupforge/setupforge/internal/payload"
	"github.com/setupforge/setupforge/internal/receipt"
	"github.com/setupforge/setupforge/internal/service/common"
	"github.com/setupforge/setupforge/internal/sfx"
	"github.com/setupforge/setupforge/internal/shortcut"
	"github.com/setupforge/setupforge/internal/version"
	"github.com/setupforge/setupforge/internal/winreg"
)

// uninstallerBaseName is the stem of the self-copy placed in the install
// dir; the "uninstall" substring switches the binary into uninstall mode
// when launched.
const uninstallerBaseName = "uninstall"

// Options are inputs accepted by the install entry point.
type Options struct {
	// SelfPath overrides the executable whose trailer is read
	// (defaults to the running executable).
	SelfPath string
	// TargetDir overrides the manifest's install directory.
	TargetDir string
	// Tasks names optional tasks to enable without prompting.
	Tasks []string
	// Silent disables prompts; unchecked-by-default tasks stay off unless
	// listed in Tasks.
	Silent bool
	// Force kills running application processes instead of aborting.
	Force bool
	// NoShortcuts skips all shortcut creation.
	NoShortcuts bool
}

var (
	errNotPackaged             = errors.New("this binary is not a packaged setup executable")
	errInstallerAlreadyRunning = errors.New("another installer run is in progress")
	errAppIsRunning            = errors.New("application is running, close it or re-run with --force")
	errUnknownTaskSelected     = errors.New("unknown task name")
)

// installer holds the mutable state and helpers for a single install
// execution. It is intentionally unexported—call Run(ctx, *Options) from
// callers.
type installer struct {
	// opts are the caller-provided inputs.
	opts *Options
	// selfPath is the executable carrying the trailer.
	selfPath string
	// pkg is the opened package (meta + payload).
	pkg *sfx.Package
	// man is the manifest decoded from the trailer.
	man *manifest.Manifest
	// installDir is the resolved absolute install directory.
	installDir string
	// marker guards against concurrent installer runs; markerOwned tells
	// cleanup whether this run created it.
	marker      string
	markerOwned bool
	// tempDir holds the extracted payload before it is applied.
	tempDir string
	// entries is the payload listing, read before extraction.
	entries []payload.Entry
	// selectedTasks is the final task selection, sorted.
	selectedTasks []string
	// rec is the receipt under construction.
	rec *receipt.Receipt
	// installedBytes sums applied file sizes for the registry entry.
	installedBytes int64
	// promptIn and promptOut carry the task prompts (stdin/stdout unless
	// a test injects buffers).
	promptIn  io.Reader
	promptOut io.Writer
}

// Run executes the installer lifecycle and is the public entry point for
// the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "setupforge-install")

	inst, err := newInstaller(ctx, opts)
	if err != nil {
		return err
	}

	defer inst.cleanup(ctx)

	if err = inst.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Install failed", "error", err)

		return err
	}

	logger.InfoKV(ctx, "Install completed", "dir", inst.installDir)

	return nil
}

// newInstaller opens the trailer, resolves the install directory and writes
// the marker that prevents concurrent runs.
func newInstaller(ctx context.Context, opts *Options) (*installer, error) {
	selfPath := opts.SelfPath
	if selfPath == "" {
		var err error
		if selfPath, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locate own executable: %w", err)
		}
	}

	pkg, err := sfx.Open(selfPath)
	if err != nil {
		if errors.Is(err, sfx.ErrNoTrailer) {
			return nil, fmt.Errorf("%w: %s", errNotPackaged, selfPath)
		}

		return nil, err
	}

	inst := &installer{
		opts:      opts,
		selfPath:  selfPath,
		pkg:       pkg,
		promptIn:  os.Stdin,
		promptOut: os.Stdout,
	}

	if err = inst.decodeManifest(); err != nil {
		pkg.Close()

		return nil, err
	}

	if err = inst.resolveInstallDir(); err != nil {
		pkg.Close()

		return nil, err
	}

	logger.InfoKV(ctx, "Installing",
		"app", inst.man.App.Name,
		"version", inst.man.App.Version,
		"dir", inst.installDir)

	inst.marker = common.MarkerPath(inst.man.App.Name)
	if common.IsSetupRunningNow(ctx, inst.marker) {
		pkg.Close()

		return nil, errInstallerAlreadyRunning
	}

	if err = common.CreateMarker(inst.marker); err != nil {
		pkg.Close()

		return nil, err
	}

	inst.markerOwned = true
	inst.rec = receipt.New(inst.man.App.Name, inst.man.App.Version, inst.installDir)

	return inst, nil
}

// decodeManifest parses and validates the manifest embedded in the trailer.
func (i *installer) decodeManifest() error {
	man := &manifest.Manifest{}
	if err := yaml.Unmarshal(i.pkg.Meta.Manifest, man); err != nil {
		return fmt.Errorf("decode embedded manifest: %w", err)
	}

	if err := manifest.Validate(man); err != nil {
		return fmt.Errorf("embedded manifest is invalid: %w", err)
	}

	i.man = man

	return nil
}

// resolveInstallDir applies the target override or expands the manifest's
// install dir with platform locations.
func (i *installer) resolveInstallDir() error {
	if i.opts.TargetDir != "" {
		abs, err := filepath.Abs(i.opts.TargetDir)
		if err != nil {
			return fmt.Errorf("resolve target dir: %w", err)
		}

		i.installDir = abs

		return nil
	}

	pf, err := manifest.ProgramFilesDir()
	if err != nil {
		return err
	}

	i.installDir = manifest.ExpandPath(i.man.Install.Dir, manifest.Vars{ProgramFiles: pf})

	return nil
}

// Run executes the install workflow:
// 1) Abort or kill running application processes.
// 2) Resolve the optional-task selection.
// 3) Extract the payload to a temp dir.
// 4) Apply files to the install dir, skipping unchanged ones.
// 5) Create shortcuts gated by their tasks.
// 6) Register the uninstall entry (Windows).
// 7) Persist the receipt.
func (i *installer) Run(ctx context.Context) error {
	if err := i.guardProcesses(ctx); err != nil {
		return err
	}

	if err := i.resolveTasks(); err != nil {
		return err
	}

	if err := i.extractPayload(ctx); err != nil {
		return err
	}

	if err := i.applyFiles(ctx); err != nil {
		return err
	}

	i.createShortcuts(ctx)
	i.registerUninstall(ctx)

	return i.writeReceipt(ctx)
}

// guardProcesses aborts when payload executables are running, or kills them
// when the caller forces the install.
func (i *installer) guardProcesses(ctx context.Context) error {
	var err error

	i.entries, err = payload.List(i.pkg.Payload())
	if err != nil {
		return err
	}

	matches, err := common.RunningProcesses(i.processNames())
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

	if !i.opts.Force {
		return fmt.Errorf("%w: %s", errAppIsRunning, strings.Join(names, ", "))
	}

	logger.InfoKV(ctx, "Terminating running application processes", "processes", strings.Join(names, ", "))

	return common.TerminateProcesses(matches)
}

// processNames collects executable basenames the install would overwrite:
// payload .exe entries and shortcut targets.
func (i *installer) processNames() map[string]struct{} {
	names := make(map[string]struct{})

	for _, entry := range i.entries {
		if entry.Mode.IsDir() {
			continue
		}

		base := filepath.Base(filepath.FromSlash(entry.RelPath))
		if strings.HasSuffix(strings.ToLower(base), ".exe") {
			names[base] = struct{}{}
		}
	}

	for _, sc := range i.man.Shortcuts {
		base := filepath.Base(manifest.ExpandPath(sc.Target, manifest.Vars{App: i.installDir}))
		if base != "" && base != "." {
			names[base] = struct{}{}
		}
	}

	return names
}

// resolveTasks computes the final optional-task selection.
func (i *installer) resolveTasks() error {
	selected := make(map[string]struct{})
	for _, name := range i.man.DefaultTasks() {
		selected[name] = struct{}{}
	}

	explicit := make(map[string]struct{}, len(i.opts.Tasks))

	for _, name := range i.opts.Tasks {
		if i.man.TaskByName(name) == nil {
			return fmt.Errorf("%w: %s", errUnknownTaskSelected, name)
		}

		explicit[name] = struct{}{}
		selected[name] = struct{}{}
	}

	if !i.opts.Silent {
		reader := bufio.NewReader(i.promptIn)

		for _, task := range i.man.Tasks {
			if _, ok := explicit[task.Name]; ok {
				continue
			}

			yes, err := promptYesNo(reader, i.promptOut, task.Description, !task.UncheckedByDefault)
			if err != nil {
				return fmt.Errorf("read task answer: %w", err)
			}

			if yes {
				selected[task.Name] = struct{}{}
			} else {
				delete(selected, task.Name)
			}
		}
	}

	i.selectedTasks = make([]string, 0, len(selected))
	for name := range selected {
		i.selectedTasks = append(i.selectedTasks, name)
	}

	sort.Strings(i.selectedTasks)

	return nil
}

// promptYesNo asks one yes/no question with a default answer.
func promptYesNo(reader *bufio.Reader, w io.Writer, label string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	fmt.Fprintf(w, "%s %s: ", label, hint)

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return defaultYes, nil
	}
}

// extractPayload unpacks the payload into a temp directory.
func (i *installer) extractPayload(ctx context.Context) error {
	tempDir, err := os.MkdirTemp("", "setupforge-install-*")
	if err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	i.tempDir = tempDir

	fileCount := 0

	for _, entry := range i.entries {
		if !entry.Mode.IsDir() {
			fileCount++
		}
	}

	bar := progressbar.NewOptions(fileCount,
		progressbar.OptionSetDescription("extracting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish())

	report, err := payload.Extract(ctx, i.pkg.Payload(), tempDir, func(payload.Entry) {
		_ = bar.Add(1)
	})

	_ = bar.Finish()

	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Payload extracted", "files", report.Files, "bytes", report.Bytes)

	return nil
}

// applyFiles moves extracted files into the install dir, skipping files
// whose digest already matches unless a rule forces replacement.
func (i *installer) applyFiles(ctx context.Context) error {
	if err := os.MkdirAll(i.installDir, manifest.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}

	forced := i.forcedSubtrees()

	var applied, skipped int

	for _, entry := range i.entries {
		if entry.Mode.IsDir() {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel := entry.RelPath
		srcPath := filepath.Join(i.tempDir, filepath.FromSlash(rel))
		destPath := filepath.Join(i.installDir, filepath.FromSlash(rel))

		digest, err := payload.FileChecksum(srcPath)
		if err != nil {
			return fmt.Errorf("fingerprint %s: %w", rel, err)
		}

		upToDate := false

		if !matchesSubtree(forced, rel) {
			if existing, err := payload.FileChecksum(destPath); err == nil && existing == digest {
				upToDate = true
			}
		}

		if upToDate {
			skipped++

			logger.DebugKV(ctx, "File is up to date", "file", rel)
		} else {
			if err = i.applyFile(srcPath, destPath, digest); err != nil {
				return fmt.Errorf("install %s: %w", rel, err)
			}

			applied++
			i.installedBytes += entry.Size
		}

		i.rec.Files = append(i.rec.Files, receipt.InstalledFile{
			RelPath: rel,
			SHA512:  digest,
			Size:    entry.Size,
		})
	}

	logger.InfoKV(ctx, "Files installed", "applied", applied, "up_to_date", skipped)

	return nil
}

// applyFile replaces one target file, verifying the content digest.
func (i *installer) applyFile(srcPath, destPath, digest string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}

	checksum, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(destPath), manifest.DefaultDirPermissions); err != nil {
		return err
	}

	// go-update swaps the target in place, so it must exist first.
	if _, err = os.Stat(destPath); err != nil && os.IsNotExist(err) {
		var placeholder *os.File
		if placeholder, err = os.Create(destPath); err != nil {
			return err
		}

		if err = placeholder.Close(); err != nil {
			return err
		}
	}

	options := &goupdate.Options{
		TargetPath: destPath,
		TargetMode: common.ExecutableFileMode,
		Checksum:   checksum,
		Hash:       payload.DefaultChecksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(data), *options); err != nil {
		return err
	}

	oldFileName := destPath + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}

// forcedSubtrees lists destination subtrees whose rules force replacement.
func (i *installer) forcedSubtrees() []string {
	var subtrees []string

	for _, rule := range i.man.Files {
		if rule.IgnoreVersion {
			subtrees = append(subtrees, rule.DestSubdir())
		}
	}

	return subtrees
}

// matchesSubtree reports whether rel falls under any listed subtree.
// An empty subtree means the whole install dir.
func matchesSubtree(subtrees []string, rel string) bool {
	for _, subtree := range subtrees {
		if subtree == "" || rel == subtree || strings.HasPrefix(rel, subtree+"/") {
			return true
		}
	}

	return false
}

// createShortcuts creates the manifest's shortcuts. Entries gated by a task
// are created if and only if that task was selected. Failures are warnings:
// a missing shortcut never fails an otherwise completed install.
func (i *installer) createShortcuts(ctx context.Context) {
	if i.opts.NoShortcuts {
		logger.Info(ctx, "Skipping shortcut creation")

		return
	}

	vars, err := i.shortcutVars()
	if err != nil {
		logger.WarnKV(ctx, "Cannot resolve shortcut directories", "error", err)

		return
	}

	selected := make(map[string]struct{}, len(i.selectedTasks))
	for _, name := range i.selectedTasks {
		selected[name] = struct{}{}
	}

	for _, sc := range i.man.Shortcuts {
		if sc.Task != "" {
			if _, ok := selected[sc.Task]; !ok {
				logger.DebugKV(ctx, "Shortcut skipped, task not selected",
					"shortcut", sc.Name,
					"task", sc.Task)

				continue
			}
		}

		spec := shortcut.Spec{
			Name:        sc.Name,
			TargetPath:  manifest.ExpandPath(sc.Target, vars),
			WorkingDir:  manifest.ExpandPath(sc.WorkingDir, vars),
			Description: i.man.App.Name,
			Placement:   placementOf(sc.Placement),
		}
		if sc.IconFile != "" {
			spec.IconPath = manifest.ExpandPath(sc.IconFile, vars)
		}

		path, err := shortcut.Create(ctx, spec)
		if err != nil {
			logger.WarnKV(ctx, "Failed to create shortcut", "name", sc.Name, "error", err)

			continue
		}

		i.rec.Shortcuts = append(i.rec.Shortcuts, path)
	}
}

// shortcutVars assembles the placeholder values for shortcut paths.
func (i *installer) shortcutVars() (manifest.Vars, error) {
	desktop, startMenu, err := shortcut.Dirs()
	if err != nil {
		return manifest.Vars{}, err
	}

	pf, err := manifest.ProgramFilesDir()
	if err != nil {
		return manifest.Vars{}, err
	}

	return manifest.Vars{
		App:          i.installDir,
		ProgramFiles: pf,
		Desktop:      desktop,
		StartMenu:    startMenu,
	}, nil
}

// placementOf maps a manifest placement onto the shortcut package's type.
func placementOf(placement string) shortcut.Placement {
	if placement == manifest.PlacementDesktop {
		return shortcut.Desktop
	}

	return shortcut.StartMenu
}

// registerUninstall copies the setup binary into the install dir as the
// uninstaller and publishes the Add/Remove Programs entry. Windows only;
// failures are warnings.
func (i *installer) registerUninstall(ctx context.Context) {
	if runtime.GOOS != "windows" {
		logger.Debug(ctx, "Uninstall registration is skipped on this platform")

		return
	}

	uninstallerPath := filepath.Join(i.installDir, uninstallerBaseName+".exe")
	if err := common.CopyExecutable(i.selfPath, uninstallerPath); err != nil {
		logger.WarnKV(ctx, "Failed to place uninstaller", "error", err)

		return
	}

	entry := winreg.UninstallEntry{
		AppName:         i.man.App.Name,
		DisplayVersion:  i.man.App.Version,
		Publisher:       i.man.App.Publisher,
		InstallLocation: i.installDir,
		UninstallString: `"` + uninstallerPath + `" uninstall`,
		EstimatedSizeKB: uint32(i.installedBytes / 1024),
	}

	key, err := winreg.RegisterUninstall(entry)
	if err != nil {
		logger.WarnKV(ctx, "Failed to register uninstall entry", "error", err)

		return
	}

	i.rec.RegistryKeys = append(i.rec.RegistryKeys, key)
}

// writeReceipt persists the final receipt into the install dir.
func (i *installer) writeReceipt(ctx context.Context) error {
	i.rec.SelectedTasks = i.selectedTasks
	i.rec.ToolVersion = version.Version

	if actor, err := common.DetectActor(); err == nil {
		i.rec.InstalledBy = actor.String()
	}

	repo := receipt.NewFileRepository(receipt.DefaultPath(i.installDir))
	if err := repo.Save(ctx, i.rec); err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}

	logger.InfoKV(ctx, "Receipt written", "path", repo.Path())

	return nil
}

// cleanup removes temporary artifacts and the running marker.
func (i *installer) cleanup(ctx context.Context) {
	if i.tempDir != "" {
		if err := os.RemoveAll(i.tempDir); err != nil {
			logger.WarnKV(ctx, "Failed to remove temp directory", "dir", i.tempDir, "error", err)
		}
	}

	if i.markerOwned {
		if err := os.Remove(i.marker); err != nil && !os.IsNotExist(err) {
			logger.WarnKV(ctx, "Failed to remove install marker", "path", i.marker, "error", err)
		}
	}

	if i.pkg != nil {
		_ = i.pkg.Close()
	}
}
