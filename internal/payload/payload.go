package payload

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/setupforge/setupforge/internal/manifest"
)

// Compression selects the gzip level of a payload archive.
// The values mirror the manifest's output.compression field.
type Compression string

// Supported compression levels.
const (
	None Compression = manifest.CompressionNone
	Fast Compression = manifest.CompressionFast
	Best Compression = manifest.CompressionBest
)

// defaultFileMode is applied to extracted files whose header carries no mode.
const defaultFileMode fs.FileMode = 0o644

// Entry describes one archive member.
type Entry struct {
	// RelPath is the forward-slash path below the archive root.
	RelPath string
	// Size is the file size in bytes (zero for directories).
	Size int64
	// Mode holds permission bits plus fs.ModeDir for directories.
	Mode fs.FileMode
}

// ExtractReport summarizes an extraction pass.
type ExtractReport struct {
	// Files is the number of regular files written.
	Files int
	// Bytes is the combined size of all written files.
	Bytes int64
}

var errPathTraversal = errors.New("archive entry escapes the destination root")

// gzipLevel maps a Compression value to a gzip level constant.
func (c Compression) gzipLevel() int {
	switch c {
	case None:
		return gzip.NoCompression
	case Fast:
		return gzip.BestSpeed
	default:
		return gzip.BestCompression
	}
}

// Build archives srcRoot into w and returns the entries written, in order.
func Build(ctx context.Context, srcRoot string, w io.Writer, level Compression) ([]Entry, error) {
	gz, err := gzip.NewWriterLevel(w, level.gzipLevel())
	if err != nil {
		return nil, fmt.Errorf("open gzip writer: %w", err)
	}

	tw := tar.NewWriter(gz)

	var entries []Entry

	err = filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		if path == srcRoot {
			return nil
		}

		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}

		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err = tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     name + "/",
				Mode:     int64(info.Mode().Perm()),
				ModTime:  info.ModTime(),
			}); err != nil {
				return err
			}

			entries = append(entries, Entry{RelPath: name, Mode: info.Mode().Perm() | fs.ModeDir})

			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		if err = tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Size:     info.Size(),
			Mode:     int64(info.Mode().Perm()),
			ModTime:  info.ModTime(),
		}); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}

		if _, err = io.Copy(tw, f); err != nil {
			f.Close()

			return err
		}

		if err = f.Close(); err != nil {
			return err
		}

		entries = append(entries, Entry{RelPath: name, Size: info.Size(), Mode: info.Mode().Perm()})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", srcRoot, err)
	}

	if err = tw.Close(); err != nil {
		return nil, fmt.Errorf("finish tar stream: %w", err)
	}

	if err = gz.Close(); err != nil {
		return nil, fmt.Errorf("finish gzip stream: %w", err)
	}

	return entries, nil
}

// List reads the archive from r and returns its entries without extracting.
func List(r io.Reader) ([]Entry, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	var entries []Entry

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read payload entry: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			entries = append(entries, Entry{
				RelPath: strings.TrimSuffix(hdr.Name, "/"),
				Mode:    fs.FileMode(hdr.Mode).Perm() | fs.ModeDir,
			})
		case tar.TypeReg:
			entries = append(entries, Entry{
				RelPath: hdr.Name,
				Size:    hdr.Size,
				Mode:    fs.FileMode(hdr.Mode).Perm(),
			})
		}
	}

	return entries, nil
}

// Extract unpacks the archive from r below destRoot.
// onFile, when set, is invoked once per written regular file.
func Extract(ctx context.Context, r io.Reader, destRoot string, onFile func(Entry)) (*ExtractReport, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	report := &ExtractReport{}

	for {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read payload entry: %w", err)
		}

		target, err := securePath(destRoot, hdr.Name)
		if err != nil {
			return nil, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, manifest.DefaultDirPermissions); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			entry, err := writeEntry(tr, hdr, target)
			if err != nil {
				return nil, fmt.Errorf("extract %s: %w", hdr.Name, err)
			}

			report.Files++
			report.Bytes += entry.Size

			if onFile != nil {
				onFile(entry)
			}
		default:
			// Links and special files never appear in payloads built by
			// this tool; foreign ones are ignored.
		}
	}

	return report, nil
}

// writeEntry writes one regular-file entry to target.
func writeEntry(tr *tar.Reader, hdr *tar.Header, target string) (Entry, error) {
	if err := os.MkdirAll(filepath.Dir(target), manifest.DefaultDirPermissions); err != nil {
		return Entry{}, err
	}

	mode := fs.FileMode(hdr.Mode).Perm()
	if mode == 0 {
		mode = defaultFileMode
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return Entry{}, err
	}

	written, err := io.Copy(f, tr)
	if err != nil {
		f.Close()

		return Entry{}, err
	}

	if err = f.Close(); err != nil {
		return Entry{}, err
	}

	return Entry{RelPath: hdr.Name, Size: written, Mode: mode}, nil
}

// securePath resolves an archive name below destRoot, rejecting traversal.
func securePath(destRoot, name string) (string, error) {
	target := filepath.Join(destRoot, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destRoot)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", errPathTraversal, name)
	}

	return target, nil
}
