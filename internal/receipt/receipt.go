package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Filename is the receipt's name inside the install directory.
const Filename = "setupforge-receipt.json"

// filePermissions is used when persisting receipts.
const filePermissions = 0o600

// ErrNotFound is returned when no receipt exists yet.
var ErrNotFound = errors.New("receipt not found")

// InstalledFile records one file placed by the installer.
type InstalledFile struct {
	// RelPath is the forward-slash path below the install directory.
	RelPath string `json:"rel_path"`
	// SHA512 is the base64 digest of the installed content.
	SHA512 string `json:"sha512"`
	// Size is the file size in bytes.
	Size int64 `json:"size"`
}

// Receipt describes a completed installation.
type Receipt struct {
	// ID uniquely identifies the installation.
	ID string `json:"id"`
	// AppName and AppVersion mirror the manifest's app section.
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	// InstallDir is the absolute directory the app was installed into.
	InstallDir string `json:"install_dir"`
	// InstalledAt is the completion time in UTC.
	InstalledAt time.Time `json:"installed_at"`
	// Files lists every installed file with its digest.
	Files []InstalledFile `json:"files"`
	// Shortcuts holds the absolute paths of shortcuts actually created.
	Shortcuts []string `json:"shortcuts,omitempty"`
	// RegistryKeys holds uninstall-registration key paths (Windows).
	RegistryKeys []string `json:"registry_keys,omitempty"`
	// SelectedTasks names the optional tasks the user enabled.
	SelectedTasks []string `json:"selected_tasks,omitempty"`
	// InstalledBy records who ran the installer, as "username@hostname".
	InstalledBy string `json:"installed_by,omitempty"`
	// ToolVersion is the installer version that wrote the receipt.
	ToolVersion string `json:"tool_version"`
}

// New returns a receipt with a fresh ID and timestamp; the caller fills the
// inventory fields as the installation progresses.
func New(appName, appVersion, installDir string) *Receipt {
	return &Receipt{
		ID:          uuid.NewString(),
		AppName:     appName,
		AppVersion:  appVersion,
		InstallDir:  installDir,
		InstalledAt: time.Now().UTC(),
	}
}

// DefaultPath returns the receipt location inside an install directory.
func DefaultPath(installDir string) string {
	return filepath.Join(installDir, Filename)
}

// Repository defines persistence operations for the install receipt.
type Repository interface {
	Load(ctx context.Context) (*Receipt, error)
	Save(ctx context.Context, r *Receipt) error
	Remove(ctx context.Context) error
}

// FileRepository persists the receipt to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the receipt file.
	path string
	// mu protects concurrent access to the receipt file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the
// provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the repository's file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the receipt from disk.
func (r *FileRepository) Load(_ context.Context) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read receipt file: %w", err)
	}

	rec := &Receipt{}
	if err = json.Unmarshal(contents, rec); err != nil {
		return nil, fmt.Errorf("decode receipt file: %w", err)
	}

	return rec, nil
}

// Save writes the receipt atomically: the JSON lands in a temp file next to
// the final location and is renamed into place.
func (r *FileRepository) Save(_ context.Context, rec *Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".receipt-*")
	if err != nil {
		return fmt.Errorf("create receipt temp file: %w", err)
	}

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("write receipt: %w", err)
	}

	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close receipt temp file: %w", err)
	}

	if err = os.Chmod(tmp.Name(), filePermissions); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("chmod receipt: %w", err)
	}

	if err = os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("replace receipt file: %w", err)
	}

	return nil
}

// Remove deletes the receipt file. A missing file is not an error.
func (r *FileRepository) Remove(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove receipt file: %w", err)
	}

	return nil
}
