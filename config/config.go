// Package config loads and validates the benchmark configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"poolbench/workload"
)

// Config is the full benchmark configuration.
type Config struct {
	Partitions []PartitionConfig `yaml:"partitions"`
	Pool       PoolConfig        `yaml:"pool"`
	Benchmark  BenchmarkConfig   `yaml:"benchmark"`
	Sampler    SamplerConfig     `yaml:"sampler"`
	Analysis   AnalysisConfig    `yaml:"analysis"`
	Export     ExportConfig      `yaml:"export"`
}

// PartitionConfig names one pool partition and its data source.
type PartitionConfig struct {
	Name string `yaml:"name"`
	DSN  string `yaml:"dsn"`
}

// PoolConfig controls the pool under test.
type PoolConfig struct {
	Driver            string  `yaml:"driver"`
	Sizes             []int   `yaml:"sizes"`
	AcquireTimeoutMs  int     `yaml:"acquire_timeout_ms"`
	SimulateLatencyMs int     `yaml:"simulate_latency_ms"`
	SimulateFailures  float64 `yaml:"simulate_failures"`
}

// AcquireTimeout returns the acquire timeout as a duration.
func (p PoolConfig) AcquireTimeout() time.Duration {
	return time.Duration(p.AcquireTimeoutMs) * time.Millisecond
}

// SimulateLatency returns the upper bound of the simulated operation latency.
// Zero when simulation latency is not configured; callers fall back to their
// own default.
func (p PoolConfig) SimulateLatency() time.Duration {
	return time.Duration(p.SimulateLatencyMs) * time.Millisecond
}

// BenchmarkConfig controls the sweep loop.
type BenchmarkConfig struct {
	DurationSeconds       int      `yaml:"duration_seconds"`
	WarmupSeconds         int      `yaml:"warmup_seconds"`
	CooldownSeconds       int      `yaml:"cooldown_seconds"`
	Iterations            int      `yaml:"iterations"`
	Patterns              []string `yaml:"patterns"`
	ConcurrencyMultiplier int      `yaml:"concurrency_multiplier"`
	MaxConcurrency        int      `yaml:"max_concurrency"`
}

// Duration returns the measured phase length.
func (b BenchmarkConfig) Duration() time.Duration {
	return time.Duration(b.DurationSeconds) * time.Second
}

// Warmup returns the warmup phase length.
func (b BenchmarkConfig) Warmup() time.Duration {
	return time.Duration(b.WarmupSeconds) * time.Second
}

// Cooldown returns the between-iteration pause.
func (b BenchmarkConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownSeconds) * time.Second
}

// SamplerConfig controls pool-state sampling.
type SamplerConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// Interval returns the sampling interval as a duration.
func (s SamplerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// AnalysisConfig carries the sweet-spot thresholds.
type AnalysisConfig struct {
	MaxLatencyP99Ms   float64 `yaml:"max_latency_p99_ms"`
	MinThroughput     float64 `yaml:"min_throughput"`
	MaxErrorRate      float64 `yaml:"max_error_rate"`
	TargetUtilization string  `yaml:"target_utilization"`
	CostWeight        float64 `yaml:"cost_weight"`
	PerformanceWeight float64 `yaml:"performance_weight"`
}

// ExportConfig controls result artifacts.
type ExportConfig struct {
	OutputDir      string   `yaml:"output_dir"`
	PrometheusAddr string   `yaml:"prometheus_addr"`
	S3             S3Config `yaml:"s3"`
}

// S3Config enables uploading result artifacts when Bucket is set.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`
}

// Default returns a configuration with sensible defaults for a local sweep.
func Default() Config {
	return Config{
		Partitions: []PartitionConfig{{Name: "default", DSN: "file:poolbench.db?cache=shared"}},
		Pool: PoolConfig{
			Driver:           "sqlite3",
			Sizes:            []int{5, 10, 20, 50},
			AcquireTimeoutMs: 5000,
		},
		Benchmark: BenchmarkConfig{
			DurationSeconds:       30,
			WarmupSeconds:         5,
			CooldownSeconds:       2,
			Iterations:            1,
			Patterns:              []string{"read_heavy"},
			ConcurrencyMultiplier: 10,
			MaxConcurrency:        5000,
		},
		Sampler: SamplerConfig{IntervalMs: 100},
		Analysis: AnalysisConfig{
			MaxLatencyP99Ms:   50,
			MinThroughput:     100,
			MaxErrorRate:      1,
			TargetUtilization: "60-85",
			CostWeight:        0.3,
			PerformanceWeight: 0.7,
		},
		Export: ExportConfig{
			OutputDir:      "./output",
			PrometheusAddr: ":9100",
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for fatal mistakes before any work
// begins.
func (c Config) Validate() error {
	if len(c.Partitions) == 0 {
		return fmt.Errorf("config: at least one partition required")
	}
	if len(c.Pool.Sizes) == 0 {
		return fmt.Errorf("config: at least one pool size required")
	}
	for _, size := range c.Pool.Sizes {
		if size <= 0 {
			return fmt.Errorf("config: non-positive pool size %d", size)
		}
	}
	if c.Pool.AcquireTimeoutMs <= 0 {
		return fmt.Errorf("config: acquire_timeout_ms must be positive")
	}
	if c.Benchmark.DurationSeconds <= 0 {
		return fmt.Errorf("config: benchmark duration must be positive")
	}
	if c.Benchmark.Iterations <= 0 {
		return fmt.Errorf("config: iterations must be positive")
	}
	if c.Benchmark.ConcurrencyMultiplier <= 0 {
		return fmt.Errorf("config: concurrency_multiplier must be positive")
	}
	if len(c.Benchmark.Patterns) == 0 {
		return fmt.Errorf("config: at least one workload pattern required")
	}
	for _, name := range c.Benchmark.Patterns {
		if _, err := workload.LookupPattern(name); err != nil {
			return fmt.Errorf("config: %w (known: %s)", err, strings.Join(workload.PatternNames(), ", "))
		}
	}
	if c.Sampler.IntervalMs <= 0 {
		return fmt.Errorf("config: sampler interval_ms must be positive")
	}
	if _, _, err := c.Analysis.UtilizationRange(); err != nil {
		return err
	}
	return nil
}

// UtilizationRange parses the "min-max" target utilization string.
func (a AnalysisConfig) UtilizationRange() (min, max float64, err error) {
	parts := strings.SplitN(a.TargetUtilization, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: target_utilization %q is not of the form \"min-max\"", a.TargetUtilization)
	}
	min, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("config: target_utilization min: %w", err)
	}
	max, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("config: target_utilization max: %w", err)
	}
	if min < 0 || max > 100 || min >= max {
		return 0, 0, fmt.Errorf("config: target_utilization %q out of range", a.TargetUtilization)
	}
	return min, max, nil
}

// PartitionDSNs returns the partition name to DSN mapping.
func (c Config) PartitionDSNs() map[string]string {
	out := make(map[string]string, len(c.Partitions))
	for _, p := range c.Partitions {
		out[p.Name] = p.DSN
	}
	return out
}

// PartitionNames returns the partition names in config order.
func (c Config) PartitionNames() []string {
	out := make([]string, 0, len(c.Partitions))
	for _, p := range c.Partitions {
		out = append(out, p.Name)
	}
	return out
}
