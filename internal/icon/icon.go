package icon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/orcastor/fico"

	"github.com/setupforge/setupforge/internal/logger"
)

// DefaultSizes are the icon dimensions requested when the caller passes none.
// 256 is the largest size the ICO directory can express.
var DefaultSizes = []int{16, 32, 48, 256}

// iconDirSize is the byte length of the ICONDIR header.
const iconDirSize = 6

var (
	errIconTooSmall  = errors.New("icon file is too small to be an ICO")
	errIconBadHeader = errors.New("icon header is not a valid ICONDIR")
)

// ConvertPNG renders the image at src into an ICO file at dst.
// The largest requested size wins; fico embeds the source pixels once.
// The destination is replaced atomically.
func ConvertPNG(ctx context.Context, src, dst string, sizes []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(sizes) == 0 {
		sizes = DefaultSizes
	}

	size := sizes[0]
	for _, s := range sizes[1:] {
		if s > size {
			size = s
		}
	}

	logger.DebugKV(ctx, "Converting icon", "src", src, "dst", dst, "size", size)

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".icon-*.ico")
	if err != nil {
		return fmt.Errorf("create icon temp file: %w", err)
	}

	err = fico.F2ICO(tmp, src, fico.Config{Format: "ico", Width: size, Height: size})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = Validate(tmp.Name())
	}

	if err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("convert %s: %w", src, err)
	}

	if err = os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("replace %s: %w", dst, err)
	}

	return nil
}

// Validate checks the ICONDIR header of the file at path: the reserved word
// must be zero, the resource type must be 1 (icon) and at least one image
// entry must be present.
func Validate(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, iconDirSize)
	if _, err = io.ReadFull(f, header); err != nil {
		return fmt.Errorf("%w: %s", errIconTooSmall, path)
	}

	reserved := binary.LittleEndian.Uint16(header[0:2])
	resourceType := binary.LittleEndian.Uint16(header[2:4])
	count := binary.LittleEndian.Uint16(header[4:6])

	if reserved != 0 || resourceType != 1 || count < 1 {
		return fmt.Errorf("%w: %s", errIconBadHeader, path)
	}

	return nil
}
