package device

import (
	"context"
	"fmt"
	"sync"
)

// memoryDevice is an in-memory Device fake used by unit tests so that the
// region/catalog/flusher/reclaimer machinery can be exercised without a real
// disk. Config validation and IOSize defaulting match fileDevice; offsets
// and lengths passed to Read/Write are not checked for alignment.
type memoryDevice struct {
	mu   sync.Mutex
	cfg  Config
	data []byte
}

// NewMemory returns a Device backed by a plain byte slice, for tests.
func NewMemory(cfg Config) (Device, error) {
	if cfg.Align <= 0 || cfg.RegionSize <= 0 || cfg.RegionSize%cfg.Align != 0 {
		return nil, fmt.Errorf("hybridstore/device: region size %d must be a positive multiple of align %d", cfg.RegionSize, cfg.Align)
	}
	if cfg.IOSize <= 0 {
		cfg.IOSize = cfg.Align
	}
	return &memoryDevice{
		cfg:  cfg,
		data: make([]byte, cfg.Regions*cfg.RegionSize),
	}, nil
}

func (d *memoryDevice) Regions() int    { return d.cfg.Regions }
func (d *memoryDevice) RegionSize() int { return d.cfg.RegionSize }
func (d *memoryDevice) Align() int      { return d.cfg.Align }
func (d *memoryDevice) IOSize() int     { return d.cfg.IOSize }

func (d *memoryDevice) Read(_ context.Context, buf []byte, region int, offset int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := int64(region)*int64(d.cfg.RegionSize) + offset
	n := copy(buf, d.data[start:start+int64(len(buf))])
	return n, nil
}

func (d *memoryDevice) Write(_ context.Context, buf []byte, region int, offset int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := int64(region)*int64(d.cfg.RegionSize) + offset
	n := copy(d.data[start:start+int64(len(buf))], buf)
	return n, nil
}

func (d *memoryDevice) IOBuffer(length, capacity int) []byte {
	if capacity < length {
		capacity = length
	}
	return make([]byte, length, capacity)
}

func (d *memoryDevice) Close() error { return nil }
