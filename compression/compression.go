// Package compression implements the named value transformations a writer
// may select per spec §4.5/§6: none, zstd, lz4. The entry header's
// Compression tag (entry.Compression) records which one produced the
// on-disk bytes, so Load can pick the matching Decompress without extra
// bookkeeping.
//
// zstd (github.com/klauspost/compress) is present in the retrieved pack's
// dependency graph; lz4 (github.com/pierrec/lz4/v4) is not, and is picked
// as the ecosystem's standard library for that tag. Neither is grounded on
// the teacher repo itself, which carries no compression step.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/sharedcode/hybridstore/entry"
)

// Codec compresses and decompresses a value's bytes.
type Codec interface {
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte) ([]byte, error)
	Kind() entry.Compression
}

// For looks up the Codec registered for kind.
func For(kind entry.Compression) (Codec, error) {
	switch kind {
	case entry.CompressionNone:
		return noneCodec{}, nil
	case entry.CompressionZstd:
		return zstdCodec{}, nil
	case entry.CompressionLz4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("compression: unknown kind %d", kind)
	}
}

type noneCodec struct{}

func (noneCodec) Kind() entry.Compression { return entry.CompressionNone }
func (noneCodec) Compress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}
func (noneCodec) Decompress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

type zstdCodec struct{}

func (zstdCodec) Kind() entry.Compression { return entry.CompressionZstd }

func (zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, dst[:0]), nil
}

func (zstdCodec) Decompress(dst, src []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(src, dst[:0])
}

type lz4Codec struct{}

func (lz4Codec) Kind() entry.Compression { return entry.CompressionLz4 }

func (lz4Codec) Compress(dst, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append(dst[:0], buf.Bytes()...), nil
}

func (lz4Codec) Decompress(dst, src []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	out := bytes.NewBuffer(dst[:0])
	if _, err := io.Copy(out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
