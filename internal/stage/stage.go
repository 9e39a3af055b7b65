package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/setupforge/setupforge/internal/logger"
	"github.com/setupforge/setupforge/internal/manifest"
)

// StagedFile describes a single file placed under the staging root.
type StagedFile struct {
	// RelPath is the forward-slash path of the file below the staging root.
	RelPath string
	// Size is the file size in bytes.
	Size int64
	// Mode holds the permission bits copied from the source file.
	Mode fs.FileMode
	// XXH64 is the hex-encoded xxhash64 digest of the file content.
	XXH64 string
}

// Result summarizes one Apply pass over the manifest's file rules.
type Result struct {
	// Files lists every staged file, sorted by RelPath.
	Files []StagedFile
	// TotalBytes is the combined size of all staged files.
	TotalBytes int64
}

// Stager copies manifest file rules into a staging root.
type Stager struct {
	// root is the staging directory all rules are materialized under.
	root string
	// onFile, when set, is invoked once per staged file, including files
	// skipped as identical, so progress reporting stays monotonic.
	onFile func(StagedFile)
}

// errNoMatch indicates a file rule whose source matched nothing on disk.
var errNoMatch = errors.New("file rule matched no files")

// New returns a Stager that materializes rules under the given root.
func New(root string) *Stager {
	return &Stager{root: root}
}

// OnFile registers a callback invoked after every staged file.
func (s *Stager) OnFile(fn func(StagedFile)) {
	s.onFile = fn
}

// Apply resolves and copies every rule into the staging root.
func (s *Stager) Apply(ctx context.Context, rules []manifest.FileRule) (*Result, error) {
	staged := make(map[string]StagedFile)

	for _, rule := range rules {
		logger.DebugKV(ctx, "Applying file rule", "source", rule.Source, "dest", rule.Dest)

		matches, err := s.resolveRule(rule)
		if err != nil {
			return nil, err
		}

		for _, m := range matches {
			if err = ctx.Err(); err != nil {
				return nil, err
			}

			sf, err := s.stageFile(m, rule.IgnoreVersion)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", m.relPath, err)
			}

			staged[sf.RelPath] = sf

			if s.onFile != nil {
				s.onFile(sf)
			}
		}
	}

	return collectResult(staged), nil
}

// Collect re-reads the staging root and returns a sorted file listing.
func (s *Stager) Collect() ([]StagedFile, error) {
	var files []StagedFile

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		sum, err := hashFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		files = append(files, StagedFile{
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
			Mode:    info.Mode().Perm(),
			XXH64:   sum,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect staged files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })

	return files, nil
}

// match pairs an absolute source path with its destination below the root.
type match struct {
	// srcPath is the absolute (or caller-relative) path of the source file.
	srcPath string
	// relPath is the forward-slash destination below the staging root.
	relPath string
}

// resolveRule expands a rule's source into concrete file matches.
func (s *Stager) resolveRule(rule manifest.FileRule) ([]match, error) {
	destSubdir := rule.DestSubdir()

	if info, err := os.Stat(rule.Source); err == nil && info.IsDir() {
		return s.walkSource(rule.Source, destSubdir, rule)
	}

	paths, err := filepath.Glob(rule.Source)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", rule.Source, err)
	}

	var matches []match

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}

		if excluded(rule.Excludes, filepath.Base(p)) {
			continue
		}

		if info.IsDir() {
			sub, err := s.walkSource(p, joinRel(destSubdir, filepath.Base(p)), rule)
			if err != nil {
				return nil, err
			}

			matches = append(matches, sub...)

			continue
		}

		matches = append(matches, match{
			srcPath: p,
			relPath: joinRel(destSubdir, filepath.Base(p)),
		})
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", errNoMatch, rule.Source)
	}

	return matches, nil
}

// walkSource lists the files of a directory source, recursing when the rule
// allows it. The structure below srcRoot is preserved under destSubdir.
func (s *Stager) walkSource(srcRoot, destSubdir string, rule manifest.FileRule) ([]match, error) {
	var matches []match

	err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if excluded(rule.Excludes, d.Name()) && path != srcRoot {
			if d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			if path != srcRoot && !rule.RecursiveEnabled() {
				return fs.SkipDir
			}

			return nil
		}

		// Symlinks are staged as the files they point at.
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}

		matches = append(matches, match{
			srcPath: path,
			relPath: joinRel(destSubdir, filepath.ToSlash(rel)),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", srcRoot, err)
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", errNoMatch, rule.Source)
	}

	return matches, nil
}

// stageFile copies one match into the staging root, skipping the copy when
// an identical file is already present and overwrite is not forced.
func (s *Stager) stageFile(m match, force bool) (StagedFile, error) {
	srcInfo, err := os.Stat(m.srcPath)
	if err != nil {
		return StagedFile{}, err
	}

	srcSum, err := hashFile(m.srcPath)
	if err != nil {
		return StagedFile{}, err
	}

	dstPath := filepath.Join(s.root, filepath.FromSlash(m.relPath))

	sf := StagedFile{
		RelPath: m.relPath,
		Size:    srcInfo.Size(),
		Mode:    srcInfo.Mode().Perm(),
		XXH64:   srcSum,
	}

	if !force {
		if dstSum, err := hashFile(dstPath); err == nil && dstSum == srcSum {
			return sf, nil
		}
	}

	if err = os.MkdirAll(filepath.Dir(dstPath), manifest.DefaultDirPermissions); err != nil {
		return StagedFile{}, err
	}

	if err = copyFile(m.srcPath, dstPath, srcInfo.Mode().Perm()); err != nil {
		return StagedFile{}, err
	}

	return sf, nil
}

// copyFile writes src's content to dst with the given permissions.
func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()

		return err
	}

	return out.Close()
}

// hashFile returns the hex-encoded xxhash64 digest of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// excluded reports whether a base name matches any exclude pattern.
func excluded(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}

	return false
}

// joinRel joins two forward-slash relative paths, tolerating empty parts.
func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}

	return dir + "/" + name
}

// collectResult flattens the staged-file map into a sorted Result.
func collectResult(staged map[string]StagedFile) *Result {
	res := &Result{Files: make([]StagedFile, 0, len(staged))}

	for _, sf := range staged {
		res.Files = append(res.Files, sf)
		res.TotalBytes += sf.Size
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].RelPath < res.Files[j].RelPath })

	return res
}
