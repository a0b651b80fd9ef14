// Package compress provides LZ4 block compression for message payloads.
// Block mode with no size prefix — both sides must agree on the original
// size out of band, which is why Decompress takes it as an argument.
package compress

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// ErrIncompressible is returned when compression would not shrink the input.
// Callers typically send the original payload unchanged in that case.
var ErrIncompressible = errors.New("compress: input is incompressible")

// Compress encodes src as a single LZ4 block.
func Compress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, ErrIncompressible
	}

	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if n == 0 {
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

// Decompress decodes a single LZ4 block produced by Compress. originalSize
// must be at least the length of the data before compression.
func Decompress(src []byte, originalSize int) ([]byte, error) {
	dst := make([]byte, originalSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return dst[:n], nil
}
