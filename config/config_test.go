package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Pool.AcquireTimeout())
	assert.Equal(t, 30*time.Second, cfg.Benchmark.Duration())
	assert.Equal(t, 100*time.Millisecond, cfg.Sampler.Interval())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	doc := `
partitions:
  - name: shard-a
    dsn: "file:a.db"
  - name: shard-b
    dsn: "file:b.db"
pool:
  driver: sqlite3
  sizes: [5, 10, 25]
  acquire_timeout_ms: 2500
benchmark:
  duration_seconds: 10
  warmup_seconds: 2
  iterations: 3
  patterns: [mixed, write_heavy]
analysis:
  max_latency_p99_ms: 80
  target_utilization: "50-90"
export:
  output_dir: /tmp/bench-out
  s3:
    bucket: results
    prefix: runs/
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"shard-a", "shard-b"}, cfg.PartitionNames())
	assert.Equal(t, map[string]string{"shard-a": "file:a.db", "shard-b": "file:b.db"}, cfg.PartitionDSNs())
	assert.Equal(t, []int{5, 10, 25}, cfg.Pool.Sizes)
	assert.Equal(t, 2500*time.Millisecond, cfg.Pool.AcquireTimeout())
	assert.Equal(t, 10*time.Second, cfg.Benchmark.Duration())
	assert.Equal(t, 2*time.Second, cfg.Benchmark.Warmup())
	assert.Equal(t, 3, cfg.Benchmark.Iterations)
	assert.Equal(t, []string{"mixed", "write_heavy"}, cfg.Benchmark.Patterns)
	assert.Equal(t, 80.0, cfg.Analysis.MaxLatencyP99Ms)
	assert.Equal(t, "results", cfg.Export.S3.Bucket)

	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Sampler.IntervalMs)
	assert.Equal(t, 0.3, cfg.Analysis.CostWeight)

	min, max, err := cfg.Analysis.UtilizationRange()
	require.NoError(t, err)
	assert.Equal(t, 50.0, min)
	assert.Equal(t, 90.0, max)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no partitions", func(c *Config) { c.Partitions = nil }},
		{"no sizes", func(c *Config) { c.Pool.Sizes = nil }},
		{"negative size", func(c *Config) { c.Pool.Sizes = []int{10, -1} }},
		{"zero timeout", func(c *Config) { c.Pool.AcquireTimeoutMs = 0 }},
		{"zero duration", func(c *Config) { c.Benchmark.DurationSeconds = 0 }},
		{"zero iterations", func(c *Config) { c.Benchmark.Iterations = 0 }},
		{"zero multiplier", func(c *Config) { c.Benchmark.ConcurrencyMultiplier = 0 }},
		{"no patterns", func(c *Config) { c.Benchmark.Patterns = nil }},
		{"unknown pattern", func(c *Config) { c.Benchmark.Patterns = []string{"bursty"} }},
		{"zero interval", func(c *Config) { c.Sampler.IntervalMs = 0 }},
		{"bad utilization", func(c *Config) { c.Analysis.TargetUtilization = "sixty-ish" }},
		{"inverted utilization", func(c *Config) { c.Analysis.TargetUtilization = "90-60" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestUtilizationRange(t *testing.T) {
	a := AnalysisConfig{TargetUtilization: "60-85"}
	min, max, err := a.UtilizationRange()
	require.NoError(t, err)
	assert.Equal(t, 60.0, min)
	assert.Equal(t, 85.0, max)

	a.TargetUtilization = "0-101"
	_, _, err = a.UtilizationRange()
	assert.Error(t, err)
}
