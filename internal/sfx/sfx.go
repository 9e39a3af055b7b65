package sfx

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/setupforge/setupforge/internal/payload"
)

// magic terminates every setup executable produced by this tool.
const magic = "SFORGE1\x00"

// footerSize is the byte length of the fixed trailer footer:
// metaLen uint32 LE | payloadLen uint64 LE | magic.
const footerSize = 4 + 8 + len(magic)

// stubPermissions makes the produced setup executable runnable.
const stubPermissions = 0o755

// ErrNoTrailer is returned by Open when the file carries no trailer,
// which is the normal state of a bare stub binary.
var ErrNoTrailer = errors.New("no setup trailer found")

// ErrDigestMismatch is returned by Open when the payload content does not
// match the digest recorded in the meta block.
var ErrDigestMismatch = errors.New("payload digest mismatch")

var (
	errCorruptTrailer  = errors.New("trailer lengths exceed the file size")
	errMetaNotSet      = errors.New("meta is not set")
	errPayloadTooLarge = errors.New("payload exceeds the addressable size")
)

// Meta is the JSON block describing the package, written between the stub
// and the payload.
type Meta struct {
	// Manifest holds the embedded setup manifest, YAML-encoded.
	Manifest []byte `json:"manifest"`
	// PayloadSHA512 is the base64 digest of the payload bytes.
	PayloadSHA512 string `json:"payload_sha512"`
	// PayloadSize is the payload length in bytes.
	PayloadSize int64 `json:"payload_size"`
	// Compression names the payload's compression level.
	Compression string `json:"compression"`
	// CreatedAt is the moment the package was built.
	CreatedAt time.Time `json:"created_at"`
	// ToolVersion is the compiler version that produced the package.
	ToolVersion string `json:"tool_version"`
}

// Package is an opened setup executable.
type Package struct {
	// Meta is the decoded meta block.
	Meta *Meta
	// StubSize is the byte length of the stub binary before the trailer.
	StubSize int64

	file         *os.File
	payloadStart int64
	payloadLen   int64
}

// Attach copies the stub binary to outPath and appends meta, payload and
// footer. The payload digest and size fields of meta are filled here so the
// written trailer is consistent by construction.
func Attach(stubPath, outPath string, meta *Meta, payloadBytes []byte) error {
	if meta == nil {
		return errMetaNotSet
	}

	digest, err := payload.Checksum(payloadBytes)
	if err != nil {
		return err
	}

	meta.PayloadSHA512 = digest
	meta.PayloadSize = int64(len(payloadBytes))

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	if len(metaBytes) > int(^uint32(0)) {
		return errPayloadTooLarge
	}

	stub, err := os.Open(filepath.Clean(stubPath))
	if err != nil {
		return fmt.Errorf("open stub: %w", err)
	}
	defer stub.Close()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, stubPermissions)
	if err != nil {
		return fmt.Errorf("create setup executable: %w", err)
	}

	err = writeSections(out, stub, metaBytes, payloadBytes)
	if err != nil {
		out.Close()

		return err
	}

	return out.Close()
}

// writeSections streams stub, meta, payload and footer into w.
func writeSections(w io.Writer, stub io.Reader, metaBytes, payloadBytes []byte) error {
	if _, err := io.Copy(w, stub); err != nil {
		return fmt.Errorf("copy stub: %w", err)
	}

	if _, err := w.Write(metaBytes); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}

	if _, err := w.Write(payloadBytes); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(footer[0:4], uint32(len(metaBytes)))
	binary.LittleEndian.PutUint64(footer[4:12], uint64(len(payloadBytes)))
	copy(footer[12:], magic)

	if _, err := w.Write(footer); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}

	return nil
}

// Open reads the trailer of the file at selfPath, verifies the payload
// digest, and returns the decoded package. The caller owns Close.
func Open(selfPath string) (*Package, error) {
	f, err := os.Open(filepath.Clean(selfPath))
	if err != nil {
		return nil, fmt.Errorf("open setup executable: %w", err)
	}

	pkg, err := readTrailer(f)
	if err != nil {
		f.Close()

		return nil, err
	}

	return pkg, nil
}

// readTrailer parses the footer, meta and payload locations out of f.
func readTrailer(f *os.File) (*Package, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	if size < int64(footerSize) {
		return nil, ErrNoTrailer
	}

	footer := make([]byte, footerSize)
	if _, err = f.ReadAt(footer, size-int64(footerSize)); err != nil {
		return nil, fmt.Errorf("read footer: %w", err)
	}

	if !bytes.Equal(footer[12:], []byte(magic)) {
		return nil, ErrNoTrailer
	}

	metaLen := int64(binary.LittleEndian.Uint32(footer[0:4]))
	payloadLen := int64(binary.LittleEndian.Uint64(footer[4:12]))

	payloadEnd := size - int64(footerSize)
	payloadStart := payloadEnd - payloadLen
	metaStart := payloadStart - metaLen

	if payloadLen < 0 || metaStart < 0 {
		return nil, errCorruptTrailer
	}

	metaBytes := make([]byte, metaLen)
	if _, err = f.ReadAt(metaBytes, metaStart); err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	meta := &Meta{}
	if err = json.Unmarshal(metaBytes, meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}

	digest, err := payload.ChecksumReader(io.NewSectionReader(f, payloadStart, payloadLen))
	if err != nil {
		return nil, err
	}

	if digest != meta.PayloadSHA512 {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, meta.PayloadSHA512, digest)
	}

	return &Package{
		Meta:         meta,
		StubSize:     metaStart,
		file:         f,
		payloadStart: payloadStart,
		payloadLen:   payloadLen,
	}, nil
}

// Payload returns a fresh reader over the payload section.
func (p *Package) Payload() *io.SectionReader {
	return io.NewSectionReader(p.file, p.payloadStart, p.payloadLen)
}

// Close releases the underlying file.
func (p *Package) Close() error {
	return p.file.Close()
}
