package framegraph

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	// DefaultTransientBudgetMB is the aliasing allocator's default byte
	// budget in megabytes.
	DefaultTransientBudgetMB = 256

	// MinTransientBudgetMB is the smallest allowed transient budget.
	MinTransientBudgetMB = 16

	// DefaultMergeLimit is the longest run of raster passes collapsed into
	// one hardware render pass.
	DefaultMergeLimit = 16

	// DefaultMaxPassesPerRun bounds how many passes one recording task
	// takes when parallel recording is enabled.
	DefaultMaxPassesPerRun = 32

	// DefaultFenceTimeout bounds cross-pipe fence waits during execution.
	DefaultFenceTimeout = 2 * time.Second
)

// Config tunes graph compilation and execution. Configuration is per graph
// instance, never process-wide, so concurrent graphs do not interfere.
// Zero-valued fields resolve to the defaults above.
type Config struct {
	// Workers sizes the worker pool for parallel recording. Zero or
	// negative uses GOMAXPROCS.
	Workers int

	// ParallelRecording records independent pass runs on the worker pool
	// and stitches the command buffers back in declaration order.
	ParallelRecording bool

	// Validation enables eager contract checks at declaration time and
	// ordering assertions at execution time. When disabled, declarations
	// are trusted.
	Validation bool

	// TransientBudgetMB caps the aliasing allocator. Exhaustion falls back
	// to pooled allocation, it never fails a pass.
	TransientBudgetMB int

	// MergeLimit caps how many raster passes one merge group absorbs.
	MergeLimit int

	// MaxPassesPerRun caps recording run length in parallel mode.
	MaxPassesPerRun int

	// FenceTimeout bounds cross-pipe fence waits.
	FenceTimeout time.Duration

	// Logger receives graph diagnostics. Nil uses the package logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration: validation on, parallel
// recording off.
func DefaultConfig() Config {
	return Config{
		Validation:        true,
		TransientBudgetMB: DefaultTransientBudgetMB,
		MergeLimit:        DefaultMergeLimit,
		MaxPassesPerRun:   DefaultMaxPassesPerRun,
		FenceTimeout:      DefaultFenceTimeout,
	}
}

// normalize resolves zero fields to defaults and clamps the budget.
func (c Config) normalize() Config {
	if c.TransientBudgetMB <= 0 {
		c.TransientBudgetMB = DefaultTransientBudgetMB
	}
	if c.TransientBudgetMB < MinTransientBudgetMB {
		c.TransientBudgetMB = MinTransientBudgetMB
	}
	if c.MergeLimit <= 0 {
		c.MergeLimit = DefaultMergeLimit
	}
	if c.MaxPassesPerRun <= 0 {
		c.MaxPassesPerRun = DefaultMaxPassesPerRun
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = DefaultFenceTimeout
	}
	return c
}

// Option adjusts graph configuration during creation.
//
// Example:
//
//	g, err := framegraph.New(device,
//	    framegraph.WithParallelRecording(true),
//	    framegraph.WithTransientBudget(128),
//	)
type Option func(*Config)

// WithWorkers sizes the worker pool for parallel recording.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithParallelRecording toggles parallel command recording.
func WithParallelRecording(enabled bool) Option {
	return func(c *Config) { c.ParallelRecording = enabled }
}

// WithValidation toggles the debug validation layer.
func WithValidation(enabled bool) Option {
	return func(c *Config) { c.Validation = enabled }
}

// WithTransientBudget caps the aliasing allocator, in megabytes.
func WithTransientBudget(megabytes int) Option {
	return func(c *Config) { c.TransientBudgetMB = megabytes }
}

// WithMergeLimit caps merge-group size.
func WithMergeLimit(n int) Option {
	return func(c *Config) { c.MergeLimit = n }
}

// WithMaxPassesPerRun caps recording run length in parallel mode.
func WithMaxPassesPerRun(n int) Option {
	return func(c *Config) { c.MaxPassesPerRun = n }
}

// WithFenceTimeout bounds cross-pipe fence waits.
func WithFenceTimeout(d time.Duration) Option {
	return func(c *Config) { c.FenceTimeout = d }
}

// WithLogger routes graph diagnostics to l instead of the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
