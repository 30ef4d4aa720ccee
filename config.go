package hybridstore

import (
	"time"

	"github.com/sharedcode/hybridstore/device"
	"github.com/sharedcode/hybridstore/entry"
	"github.com/sharedcode/hybridstore/eviction"
	"github.com/sharedcode/hybridstore/policy"
)

// EvictionKind names one of the built-in eviction orderings (spec §4.7).
type EvictionKind string

const (
	EvictionFIFO EvictionKind = "fifo"
	EvictionLRU  EvictionKind = "lru"
	EvictionLFU  EvictionKind = "lfu"
)

// Config collects every option spec §6 enumerates. It is built
// programmatically through Option functions, following the teacher's
// store_options.go/config.go functional-options shape rather than loaded
// from a file — spec §1 scopes config-file support out.
type Config struct {
	Name string

	Device   device.Config
	Eviction EvictionKind

	CatalogBits int

	Admission   policy.Policy
	Reinsertion policy.Policy

	Flushers             int
	Reclaimers           int
	CleanRegionThreshold int
	ReclaimPollInterval  time.Duration
	RecoverConcurrency   int64
	FlusherQueueDepth    int
	DefaultCompression   entry.Compression
}

// Option configures a Config.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Name:                 "hybridstore",
		Eviction:             EvictionLRU,
		CatalogBits:          8,
		Flushers:             1,
		Reclaimers:           1,
		CleanRegionThreshold: 2,
		ReclaimPollInterval:  50 * time.Millisecond,
		RecoverConcurrency:   4,
		FlusherQueueDepth:    1024,
		DefaultCompression:   entry.CompressionNone,
	}
}

// WithName sets Config.Name. The store keeps it in its Config; it is not
// used as a log or metrics label.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithDevice sets the backing device configuration (path, region count/size,
// alignment, IO unit size).
func WithDevice(d device.Config) Option {
	return func(c *Config) { c.Device = d }
}

// WithEviction selects the region eviction ordering.
func WithEviction(kind EvictionKind) Option {
	return func(c *Config) { c.Eviction = kind }
}

// WithCatalogBits sets the catalog's shard fan-out to 2^bits.
func WithCatalogBits(bits int) Option {
	return func(c *Config) { c.CatalogBits = bits }
}

// WithAdmission sets the admission policy consulted by every Writer. Pass
// policy.Combine(...) to AND several together.
func WithAdmission(p policy.Policy) Option {
	return func(c *Config) { c.Admission = p }
}

// WithReinsertion sets the reinsertion policy consulted by the reclaimer.
func WithReinsertion(p policy.Policy) Option {
	return func(c *Config) { c.Reinsertion = p }
}

// WithFlushers sets how many independent flusher lanes the store runs;
// keys are sharded across lanes by hash, each lane owning its own active
// region so lanes never contend with each other for the allocate path.
func WithFlushers(n int) Option {
	return func(c *Config) { c.Flushers = n }
}

// WithReclaimers sets how many reclaim loops run concurrently against the
// shared region pool.
func WithReclaimers(n int) Option {
	return func(c *Config) { c.Reclaimers = n }
}

// WithCleanRegionThreshold sets the minimum number of clean regions the
// reclaimer tries to keep available.
func WithCleanRegionThreshold(n int) Option {
	return func(c *Config) { c.CleanRegionThreshold = n }
}

// WithReclaimPollInterval sets how often each reclaim loop checks whether
// it should reclaim another region.
func WithReclaimPollInterval(d time.Duration) Option {
	return func(c *Config) { c.ReclaimPollInterval = d }
}

// WithRecoverConcurrency bounds how many regions the crash-recovery scan
// walks in parallel at Open.
func WithRecoverConcurrency(n int64) Option {
	return func(c *Config) { c.RecoverConcurrency = n }
}

// WithFlusherQueueDepth sets the buffered channel depth of each flusher lane.
func WithFlusherQueueDepth(n int) Option {
	return func(c *Config) { c.FlusherQueueDepth = n }
}

// WithDefaultCompression sets the compression tag new Writers start with;
// an individual Writer may still override it via SetCompression.
func WithDefaultCompression(comp entry.Compression) Option {
	return func(c *Config) { c.DefaultCompression = comp }
}

func newEvictionPolicy(kind EvictionKind) eviction.Policy {
	switch kind {
	case EvictionFIFO:
		return eviction.NewFIFO()
	case EvictionLFU:
		return eviction.NewLFU()
	default:
		return eviction.NewLRU()
	}
}
