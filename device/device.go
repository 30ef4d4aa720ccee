// Package device is the storage back-end boundary contract (spec §4.1,
// §6): aligned block I/O over a fixed set of regions. The filesystem
// implementation is grounded on the teacher's direct-I/O wrapper
// (github.com/sharedcode/sop/fs direct_io.go / directio.go), which opens
// files via github.com/ncw/directio for O_DIRECT-aligned reads and writes.
package device

import "context"

// Config configures a Device at open time. Fields mirror the options a
// filesystem-backed device needs; other device implementations may ignore
// fields that do not apply to them.
type Config struct {
	// Path is the backing file (or directory, for multi-file devices).
	Path string
	// Regions is the fixed region count R.
	Regions int
	// RegionSize is the size in bytes of each region; must be a multiple of Align.
	RegionSize int
	// Align is the required alignment, in bytes, for all offsets/lengths.
	Align int
	// IOSize is the unit size used for physical reads during recovery/load.
	IOSize int
}

// Device is the storage back-end trait consumed by Region, RegionManager
// and recovery. All offsets and lengths passed to Read/Write must be
// multiples of Align().
type Device interface {
	// Regions returns the fixed region count R.
	Regions() int
	// RegionSize returns the size in bytes of one region.
	RegionSize() int
	// Align returns the required alignment in bytes.
	Align() int
	// IOSize returns the unit size used for physical reads.
	IOSize() int
	// Read fills buf (len(buf) bytes) from the given region starting at
	// offset, returning the number of bytes actually read. A short read is
	// not itself an error; callers that need an exact count check it.
	Read(ctx context.Context, buf []byte, region int, offset int64) (int, error)
	// Write writes buf to the given region starting at offset, returning
	// the number of bytes written.
	Write(ctx context.Context, buf []byte, region int, offset int64) (int, error)
	// IOBuffer allocates an aligned buffer of length len and capacity cap,
	// suitable for direct I/O.
	IOBuffer(length, capacity int) []byte
	// Close releases underlying OS resources.
	Close() error
}

// Open dispatches to the filesystem-backed implementation.
func Open(cfg Config) (Device, error) {
	return openFile(cfg)
}
