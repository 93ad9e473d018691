package perchdb

import "time"

// Options configures database behavior.
type Options struct {
	poolSize          int           // Number of buffer frames.
	replacerK         int           // History depth for the LRU-K replacer.
	leafMaxSize       int           // Max entries per leaf page.
	internalMaxSize   int           // Max child pointers per internal page.
	detectionInterval time.Duration // Deadlock detector wakeup period.
	readCacheSize     int           // Disk-manager read-image cache entries.
	logger            Logger
}

func defaultOptions() Options {
	return Options{
		poolSize:          DefaultPoolSize,
		replacerK:         DefaultReplacerK,
		leafMaxSize:       DefaultLeafMaxSize,
		internalMaxSize:   DefaultInternalMaxSize,
		detectionInterval: DefaultDetectionInterval,
		readCacheSize:     DefaultReadCacheSize,
		logger:            DiscardLogger{},
	}
}

// Option configures database options using the functional options pattern.
type Option func(*Options)

// WithPoolSize sets the number of frames in the buffer pool.
func WithPoolSize(frames int) Option {
	return func(opts *Options) {
		if frames > 0 {
			opts.poolSize = frames
		}
	}
}

// WithReplacerK sets the backward distance k used by the LRU-K replacer.
func WithReplacerK(k int) Option {
	return func(opts *Options) {
		if k > 0 {
			opts.replacerK = k
		}
	}
}

// WithLeafMaxSize overrides the leaf fanout. Small values are only useful in
// tests that need to force splits and merges with a handful of keys.
func WithLeafMaxSize(n int) Option {
	return func(opts *Options) {
		if n >= 3 && n <= DefaultLeafMaxSize {
			opts.leafMaxSize = n
		}
	}
}

// WithInternalMaxSize overrides the internal fanout.
func WithInternalMaxSize(n int) Option {
	return func(opts *Options) {
		if n >= 3 && n <= DefaultInternalMaxSize {
			opts.internalMaxSize = n
		}
	}
}

// WithDetectionInterval sets how often the deadlock detector scans the lock
// queues. Zero disables the background detector.
func WithDetectionInterval(d time.Duration) Option {
	return func(opts *Options) {
		opts.detectionInterval = d
	}
}

// WithReadCacheSize sets the capacity of the disk manager's read-image cache.
// Values below 2 disable the cache.
func WithReadCacheSize(entries int) Option {
	return func(opts *Options) {
		if entries >= 0 {
			opts.readCacheSize = entries
		}
	}
}

// WithLogger routes internal diagnostics to the given logger.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		if l != nil {
			opts.logger = l
		}
	}
}
