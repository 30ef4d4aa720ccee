// Package entry defines the on-disk region header and entry framing used by
// the flusher, reclaimer and recovery scan: a fixed-size RegionHeader block
// followed by a sequence of checksummed, length-prefixed entries.
//
// Layout is grounded on the region header/entry framing described in
// foyer-storage's region.rs (see _examples/original_source) and follows the
// teacher's big-endian, fixed-width framing style used for its own on-disk
// records (github.com/sharedcode/sop/fs registry/transaction log framing).
package entry

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// RegionMagic identifies a valid region header block.
const RegionMagic uint64 = 0x19970327

// EntryMagic occupies the high 24 bits of the last header field; the low 8
// bits carry the compression tag.
const EntryMagic uint32 = 0x970327 << 8

const entryMagicMask uint32 = 0xFFFFFF00

// HeaderSize is the fixed, big-endian-encoded size of an EntryHeader in bytes.
const HeaderSize = 4 + 4 + 8 + 8 + 4

// Compression tags, encoded in the low 8 bits of MagicAndCompression.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
	CompressionLz4  Compression = 2
)

// RegionHeader is the first aligned block of every region.
type RegionHeader struct {
	Magic uint64
}

// Write serializes h into buf (which must be at least 8 bytes); the
// remainder of the aligned block is left untouched (callers zero-pad it).
func (h RegionHeader) Write(buf []byte) {
	binary.BigEndian.PutUint64(buf[:8], h.Magic)
}

// ReadRegionHeader parses a RegionHeader from the first 8 bytes of buf.
func ReadRegionHeader(buf []byte) RegionHeader {
	return RegionHeader{Magic: binary.BigEndian.Uint64(buf[:8])}
}

// Valid reports whether the header carries the expected region magic.
func (h RegionHeader) Valid() bool {
	return h.Magic == RegionMagic
}

// Header is the fixed 28-byte on-disk entry header (spec: EntryHeader).
type Header struct {
	KeyLen              uint32
	ValueLen            uint32
	Sequence            uint64
	Checksum            uint64
	MagicAndCompression uint32
}

// NewHeader builds a header for the given lengths/sequence/compression,
// computing the checksum as XXH64(seed 0) over value||key.
func NewHeader(keyLen, valueLen uint32, sequence uint64, compression Compression, value, key []byte) Header {
	return Header{
		KeyLen:              keyLen,
		ValueLen:             valueLen,
		Sequence:            sequence,
		Checksum:            Checksum(value, key),
		MagicAndCompression: EntryMagic | uint32(compression),
	}
}

// Checksum computes XXH64(seed 0) over the concatenation value||key without
// allocating an intermediate buffer.
func Checksum(value, key []byte) uint64 {
	d := xxhash.New()
	d.Write(value)
	d.Write(key)
	return d.Sum64()
}

// Compression extracts the compression tag from the low 8 bits.
func (h Header) Compression() Compression {
	return Compression(h.MagicAndCompression & 0xFF)
}

// ValidMagic reports whether the high 24 bits match the entry magic.
func (h Header) ValidMagic() bool {
	return h.MagicAndCompression&entryMagicMask == EntryMagic
}

// Write serializes h into buf, which must be at least HeaderSize bytes.
func (h Header) Write(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.KeyLen)
	binary.BigEndian.PutUint32(buf[4:8], h.ValueLen)
	binary.BigEndian.PutUint64(buf[8:16], h.Sequence)
	binary.BigEndian.PutUint64(buf[16:24], h.Checksum)
	binary.BigEndian.PutUint32(buf[24:28], h.MagicAndCompression)
}

// ReadHeader parses a Header from the first HeaderSize bytes of buf.
func ReadHeader(buf []byte) Header {
	return Header{
		KeyLen:              binary.BigEndian.Uint32(buf[0:4]),
		ValueLen:            binary.BigEndian.Uint32(buf[4:8]),
		Sequence:            binary.BigEndian.Uint64(buf[8:16]),
		Checksum:            binary.BigEndian.Uint64(buf[16:24]),
		MagicAndCompression: binary.BigEndian.Uint32(buf[24:28]),
	}
}

// AlignUp rounds n up to the next multiple of align.
func AlignUp(align, n uint64) uint64 {
	if align == 0 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}
