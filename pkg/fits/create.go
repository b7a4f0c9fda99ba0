package fits

import (
	"fmt"
	"os"
)

// PaddedSize rounds n up to the next multiple of BlockSize.
func PaddedSize(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return BlockSize * ((n-1)/BlockSize + 1)
}

// ImageBytes returns the unpadded size of the image described by header.
func ImageBytes(header *Header) (int64, error) {
	bitpix, err := header.Int("BITPIX")
	if err != nil {
		return 0, err
	}
	axes, err := header.Axes()
	if err != nil {
		return 0, err
	}
	if len(axes) == 0 {
		return 0, nil
	}
	n := int64(abs(bitpix) / 8)
	for _, a := range axes {
		n *= int64(a)
	}
	return n, nil
}

// Allocate writes header to path and extends the file to the full size of the
// image it describes, truncating any existing file. The image itself is
// never written: the file is grown by writing its last byte, so the
// filesystem stores the zero-filled data section sparsely where supported.
// It returns the final file size.
func Allocate(path string, header *Header) (int64, error) {
	dataBytes, err := ImageBytes(header)
	if err != nil {
		return 0, fmt.Errorf("sizing image: %w", err)
	}
	encoded := header.Encode()
	total := int64(len(encoded)) + PaddedSize(dataBytes)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.WriteAt(encoded, 0); err != nil {
		return 0, fmt.Errorf("writing header to %s: %w", path, err)
	}
	if total > int64(len(encoded)) {
		if _, err := file.WriteAt([]byte{0}, total-1); err != nil {
			return 0, fmt.Errorf("extending %s to %d bytes: %w", path, total, err)
		}
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", path, err)
	}
	return total, nil
}

// Keyword is a single header assignment used by UpdateHeader.
type Keyword struct {
	Key   string
	Value interface{}
}

// UpdateHeader rewrites keywords of the primary header of the file at path in
// place. The data section is not touched, so the header must keep its size;
// ErrHeaderFull is returned when new keywords do not fit into the existing
// header blocks.
func UpdateHeader(path string, keywords []Keyword) error {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	header, size, err := ReadHeader(file)
	if err != nil {
		return fmt.Errorf("reading header of %s: %w", path, err)
	}
	for _, kw := range keywords {
		if err := header.Set(kw.Key, kw.Value); err != nil {
			return err
		}
	}
	if header.Size() != size {
		return fmt.Errorf("%s: updated header needs %d bytes, %d available: %w", path, header.Size(), size, ErrHeaderFull)
	}

	if _, err := file.WriteAt(header.Encode(), 0); err != nil {
		return fmt.Errorf("writing header of %s: %w", path, err)
	}
	return file.Close()
}
