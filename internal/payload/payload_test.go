package payload

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTree creates the given files (relative path → content) under root.
func buildTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// TestBuildExtractRoundtrip checks content, structure and report totals.
func TestBuildExtractRoundtrip(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	files := map[string]string{
		"DentalClinic.exe":   "exe-bytes",
		"database/db.sqlite": "rows",
		"ui/forms/main.ui":   "<ui/>",
	}
	buildTree(t, src, files)

	var buf bytes.Buffer

	entries, err := Build(context.Background(), src, &buf, Best)
	require.NoError(t, err)

	dest := t.TempDir()

	var extracted int

	report, err := Extract(context.Background(), bytes.NewReader(buf.Bytes()), dest, func(Entry) { extracted++ })
	require.NoError(t, err)
	require.Equal(t, len(files), report.Files)
	require.Equal(t, len(files), extracted)

	var total int64

	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err)
		require.Equal(t, want, string(got), rel)

		total += int64(len(want))
	}

	require.Equal(t, total, report.Bytes)
	require.NotEmpty(t, entries)
}

// TestBuildListSymmetry verifies List reproduces Build's entry slice.
func TestBuildListSymmetry(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	buildTree(t, src, map[string]string{
		"a/one.txt": "one",
		"b.txt":     "bee",
	})

	var buf bytes.Buffer

	built, err := Build(context.Background(), src, &buf, Fast)
	require.NoError(t, err)

	listed, err := List(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, built, listed)

	// Walk order is lexical, so the archive is deterministic.
	require.Equal(t, "a", built[0].RelPath)
	require.True(t, built[0].Mode.IsDir())
	require.Equal(t, "a/one.txt", built[1].RelPath)
	require.Equal(t, "b.txt", built[2].RelPath)
}

// TestExtractRejectsTraversal feeds a handcrafted archive with an escaping
// entry and expects a refusal before anything is written.
func TestExtractRejectsTraversal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	content := []byte("evil")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     "../evil.txt",
		Size:     int64(len(content)),
		Mode:     0o644,
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dest := t.TempDir()

	_, err = Extract(context.Background(), bytes.NewReader(buf.Bytes()), dest, nil)
	require.ErrorIs(t, err, errPathTraversal)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt"))
	require.True(t, os.IsNotExist(statErr))
}

// TestExtractCorruptedPayload wraps the gzip failure.
func TestExtractCorruptedPayload(t *testing.T) {
	t.Parallel()

	garbage := bytes.NewReader([]byte("definitely not gzip"))

	_, err := Extract(context.Background(), garbage, t.TempDir(), nil)
	require.ErrorContains(t, err, "open payload")

	_, err = List(bytes.NewReader([]byte("still not gzip")))
	require.ErrorContains(t, err, "open payload")
}

// TestEmptyTree produces a valid archive with zero entries.
func TestEmptyTree(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	entries, err := Build(context.Background(), t.TempDir(), &buf, None)
	require.NoError(t, err)
	require.Empty(t, entries)

	report, err := Extract(context.Background(), bytes.NewReader(buf.Bytes()), t.TempDir(), nil)
	require.NoError(t, err)
	require.Zero(t, report.Files)
}

// TestCompressionLevels checks every level round-trips and that the best
// level actually shrinks compressible input against the uncompressed one.
func TestCompressionLevels(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	buildTree(t, src, map[string]string{
		"big.txt": string(bytes.Repeat([]byte("dental "), 4096)),
	})

	sizes := make(map[Compression]int)

	for _, level := range []Compression{None, Fast, Best} {
		var buf bytes.Buffer

		_, err := Build(context.Background(), src, &buf, level)
		require.NoError(t, err)

		_, err = Extract(context.Background(), bytes.NewReader(buf.Bytes()), t.TempDir(), nil)
		require.NoError(t, err)

		sizes[level] = buf.Len()
	}

	require.Less(t, sizes[Best], sizes[None])
}

// TestChecksumHelpers checks the byte, reader and file variants agree.
func TestChecksumHelpers(t *testing.T) {
	t.Parallel()

	data := []byte("payload-bytes")

	fromBytes, err := Checksum(data)
	require.NoError(t, err)
	require.NotEmpty(t, fromBytes)

	fromReader, err := ChecksumReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, fromBytes, fromReader)

	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	fromFile, err := FileChecksum(path)
	require.NoError(t, err)
	require.Equal(t, fromBytes, fromFile)

	other, err := Checksum([]byte("different"))
	require.NoError(t, err)
	require.NotEqual(t, fromBytes, other)
}
