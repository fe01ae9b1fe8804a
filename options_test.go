package framegraph

import (
	"log/slog"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Validation {
		t.Error("DefaultConfig().Validation = false, want true")
	}
	if cfg.ParallelRecording {
		t.Error("DefaultConfig().ParallelRecording = true, want false")
	}
	if cfg.TransientBudgetMB != DefaultTransientBudgetMB {
		t.Errorf("TransientBudgetMB = %d, want %d", cfg.TransientBudgetMB, DefaultTransientBudgetMB)
	}
	if cfg.MergeLimit != DefaultMergeLimit {
		t.Errorf("MergeLimit = %d, want %d", cfg.MergeLimit, DefaultMergeLimit)
	}
	if cfg.MaxPassesPerRun != DefaultMaxPassesPerRun {
		t.Errorf("MaxPassesPerRun = %d, want %d", cfg.MaxPassesPerRun, DefaultMaxPassesPerRun)
	}
	if cfg.FenceTimeout != DefaultFenceTimeout {
		t.Errorf("FenceTimeout = %v, want %v", cfg.FenceTimeout, DefaultFenceTimeout)
	}
}

func TestConfigNormalize(t *testing.T) {
	var zero Config
	got := zero.normalize()
	if got.TransientBudgetMB != DefaultTransientBudgetMB {
		t.Errorf("zero TransientBudgetMB normalized to %d, want %d",
			got.TransientBudgetMB, DefaultTransientBudgetMB)
	}
	if got.MergeLimit != DefaultMergeLimit {
		t.Errorf("zero MergeLimit normalized to %d, want %d", got.MergeLimit, DefaultMergeLimit)
	}
	if got.FenceTimeout != DefaultFenceTimeout {
		t.Errorf("zero FenceTimeout normalized to %v, want %v", got.FenceTimeout, DefaultFenceTimeout)
	}

	tiny := Config{TransientBudgetMB: 1}.normalize()
	if tiny.TransientBudgetMB != MinTransientBudgetMB {
		t.Errorf("budget 1 clamped to %d, want %d", tiny.TransientBudgetMB, MinTransientBudgetMB)
	}

	neg := Config{MergeLimit: -3, MaxPassesPerRun: -1, FenceTimeout: -time.Second}.normalize()
	if neg.MergeLimit != DefaultMergeLimit || neg.MaxPassesPerRun != DefaultMaxPassesPerRun {
		t.Errorf("negative limits normalized to %d/%d, want defaults",
			neg.MergeLimit, neg.MaxPassesPerRun)
	}
	if neg.FenceTimeout != DefaultFenceTimeout {
		t.Errorf("negative FenceTimeout normalized to %v, want %v", neg.FenceTimeout, DefaultFenceTimeout)
	}
}

func TestOptionsApply(t *testing.T) {
	logger := slog.Default()
	cfg := DefaultConfig()
	for _, opt := range []Option{
		WithWorkers(8),
		WithParallelRecording(true),
		WithValidation(false),
		WithTransientBudget(64),
		WithMergeLimit(4),
		WithMaxPassesPerRun(16),
		WithFenceTimeout(5 * time.Second),
		WithLogger(logger),
	} {
		opt(&cfg)
	}

	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if !cfg.ParallelRecording {
		t.Error("ParallelRecording = false, want true")
	}
	if cfg.Validation {
		t.Error("Validation = true, want false")
	}
	if cfg.TransientBudgetMB != 64 {
		t.Errorf("TransientBudgetMB = %d, want 64", cfg.TransientBudgetMB)
	}
	if cfg.MergeLimit != 4 {
		t.Errorf("MergeLimit = %d, want 4", cfg.MergeLimit)
	}
	if cfg.MaxPassesPerRun != 16 {
		t.Errorf("MaxPassesPerRun = %d, want 16", cfg.MaxPassesPerRun)
	}
	if cfg.FenceTimeout != 5*time.Second {
		t.Errorf("FenceTimeout = %v, want 5s", cfg.FenceTimeout)
	}
	if cfg.Logger != logger {
		t.Error("Logger option did not stick")
	}
}

func TestGraphUsesNormalizedConfig(t *testing.T) {
	g, _ := newTestGraph(t, WithTransientBudget(1))
	if got := g.cfg.TransientBudgetMB; got != MinTransientBudgetMB {
		t.Errorf("graph budget = %d, want clamped %d", got, MinTransientBudgetMB)
	}
	if got := g.TransientStats().BudgetBytes; got != MinTransientBudgetMB*1024*1024 {
		t.Errorf("arena budget = %d bytes, want %d", got, MinTransientBudgetMB*1024*1024)
	}
}
