package dedupe

// Option applies a configuration option to the in-memory Index.
type Option func(*inMemoryIndex)

// WithMaxSize sets the maximum number of keys to remember.
// If maxSize > 0 the oldest claim is evicted once the bound is reached.
// If maxSize <= 0 the index is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryIndex) {
		d.maxSize = maxSize
	}
}
