// Package analysis scores the per-configuration results of a pool-size sweep
// and picks the size with the best performance/resource trade-off.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// ErrNoDataPoints is returned by Analyze on an empty input.
var ErrNoDataPoints = errors.New("analysis: no data points to analyze")

// DataPoint is the immutable result of benchmarking one pool size.
type DataPoint struct {
	PoolSize         int     `json:"pool_size"`
	PartitionCount   int     `json:"partition_count"`
	ThroughputOps    float64 `json:"throughput_ops"`
	LatencyP50Ms     float64 `json:"latency_p50_ms"`
	LatencyP90Ms     float64 `json:"latency_p90_ms"`
	LatencyP95Ms     float64 `json:"latency_p95_ms"`
	LatencyP99Ms     float64 `json:"latency_p99_ms"`
	LatencyP999Ms    float64 `json:"latency_p999_ms"`
	ErrorRatePercent float64 `json:"error_rate_percent"`
	AvgUtilization   float64 `json:"avg_utilization"`
	WorkloadPattern  string  `json:"workload_pattern"`
	AvgAcquireWaitMs float64 `json:"avg_acquire_wait_ms"`
	P99AcquireWaitMs float64 `json:"p99_acquire_wait_ms"`
	PeakWaiting      int     `json:"peak_waiting"`
	TotalCPUs        int     `json:"total_cpus"`
}

// ScoredConfiguration pairs a data point with its composite score.
type ScoredConfiguration struct {
	DataPoint DataPoint `json:"data_point"`
	Score     float64   `json:"score"`
}

// Trends are the diagnostic pool sizes computed across the sweep.
type Trends struct {
	DiminishingReturnsPoolSize   int `json:"diminishing_returns_pool_size"`
	LatencyInflectionPoolSize    int `json:"latency_inflection_pool_size"`
	ThroughputSaturationPoolSize int `json:"throughput_saturation_pool_size"`
}

// Result is the outcome of one Analyze call.
type Result struct {
	OptimalPoolSize      int                   `json:"optimal_pool_size"`
	OptimalScore         float64               `json:"optimal_score"`
	OptimalConfiguration DataPoint             `json:"optimal_configuration"`
	AllScores            []ScoredConfiguration `json:"all_scores"`
	Trends               Trends                `json:"trends"`
	Recommendations      []string              `json:"recommendations"`
}

// Thresholds are the sweet-spot constraints and weights.
type Thresholds struct {
	MaxLatencyP99Ms      float64
	MinThroughputOps     float64
	MaxErrorRatePercent  float64
	TargetUtilizationMin float64
	TargetUtilizationMax float64
	CostWeight           float64
	PerformanceWeight    float64
}

// Analyzer scores sweep results against a set of thresholds.
type Analyzer struct {
	thresholds Thresholds
	logger     *zap.Logger
}

// NewAnalyzer creates an analyzer. logger may be nil.
func NewAnalyzer(t Thresholds, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{thresholds: t, logger: logger}
}

// Analyze scores every data point, ranks them, and derives trend diagnostics
// and recommendations. Fails on empty input. Points are sorted ascending by
// pool size first, and only a strictly greater score displaces the current
// best, so ties resolve to the smallest pool size deterministically.
func (a *Analyzer) Analyze(points []DataPoint) (*Result, error) {
	if len(points) == 0 {
		return nil, ErrNoDataPoints
	}
	a.logger.Info("analyzing benchmark data points", zap.Int("count", len(points)))

	sorted := make([]DataPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PoolSize < sorted[j].PoolSize
	})

	scores := make([]ScoredConfiguration, 0, len(sorted))
	best := 0
	for i, dp := range sorted {
		sc := ScoredConfiguration{DataPoint: dp, Score: a.score(dp)}
		scores = append(scores, sc)
		if sc.Score > scores[best].Score {
			best = i
		}
	}
	bestConfig := scores[best]

	ranked := make([]ScoredConfiguration, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	trends := Trends{
		DiminishingReturnsPoolSize:   findDiminishingReturns(sorted),
		LatencyInflectionPoolSize:    findLatencyInflection(sorted),
		ThroughputSaturationPoolSize: findThroughputSaturation(sorted),
	}

	a.logger.Info("analysis complete",
		zap.Int("optimal_pool_size", bestConfig.DataPoint.PoolSize),
		zap.Float64("score", bestConfig.Score))

	return &Result{
		OptimalPoolSize:      bestConfig.DataPoint.PoolSize,
		OptimalScore:         bestConfig.Score,
		OptimalConfiguration: bestConfig.DataPoint,
		AllScores:            ranked,
		Trends:               trends,
		Recommendations:      a.recommendations(bestConfig, trends),
	}, nil
}

// score computes the composite score for one configuration. Each threshold
// breach counts as a violation and the final score is damped by
// 0.8^violations.
func (a *Analyzer) score(dp DataPoint) float64 {
	t := a.thresholds
	violations := 0

	var latencyScore float64
	if dp.LatencyP99Ms <= t.MaxLatencyP99Ms {
		latencyScore = 100 * (1 - dp.LatencyP99Ms/t.MaxLatencyP99Ms)
	} else {
		violations++
		latencyScore = math.Max(0, 50*(1-(dp.LatencyP99Ms-t.MaxLatencyP99Ms)/t.MaxLatencyP99Ms))
	}

	var throughputScore float64
	if dp.ThroughputOps >= t.MinThroughputOps {
		throughputScore = math.Min(100, 100*dp.ThroughputOps/(t.MinThroughputOps*2))
	} else {
		violations++
		throughputScore = math.Max(0, 100*dp.ThroughputOps/t.MinThroughputOps)
	}

	var errorScore float64
	if dp.ErrorRatePercent <= t.MaxErrorRatePercent {
		errorScore = 100 * (1 - dp.ErrorRatePercent/t.MaxErrorRatePercent)
	} else {
		violations++
		errorScore = math.Max(0, 50*(1-(dp.ErrorRatePercent-t.MaxErrorRatePercent)/t.MaxErrorRatePercent))
	}

	var utilizationScore float64
	switch {
	case dp.AvgUtilization >= t.TargetUtilizationMin && dp.AvgUtilization <= t.TargetUtilizationMax:
		utilizationScore = 100
	case dp.AvgUtilization < t.TargetUtilizationMin:
		utilizationScore = 50 * dp.AvgUtilization / t.TargetUtilizationMin
	default:
		utilizationScore = 50 * (1 - (dp.AvgUtilization-t.TargetUtilizationMax)/(100-t.TargetUtilizationMax))
	}

	// Rewards smaller pools that achieve equivalent results.
	efficiencyScore := 100 / math.Log10(float64(dp.PoolSize)+10)

	performance := latencyScore*0.4 + throughputScore*0.4 + errorScore*0.2
	resource := utilizationScore*0.6 + efficiencyScore*0.4

	score := performance*t.PerformanceWeight + resource*t.CostWeight
	return score * math.Pow(0.8, float64(violations))
}

// findDiminishingReturns reports the smaller size of the first adjacent pair
// whose throughput improvement falls under 10%, or the largest tested size.
func findDiminishingReturns(sorted []DataPoint) int {
	const threshold = 0.1
	for i := 1; i < len(sorted); i++ {
		prev, curr := sorted[i-1], sorted[i]
		if prev.ThroughputOps <= 0 {
			continue
		}
		improvement := (curr.ThroughputOps - prev.ThroughputOps) / prev.ThroughputOps
		if improvement < threshold {
			return prev.PoolSize
		}
	}
	return sorted[len(sorted)-1].PoolSize
}

// findLatencyInflection reports the first size whose p99 exceeds 1.2x the
// smallest tested size's p99, or the largest tested size.
func findLatencyInflection(sorted []DataPoint) int {
	const threshold = 1.2
	baseline := sorted[0]
	for _, dp := range sorted {
		if dp.LatencyP99Ms > baseline.LatencyP99Ms*threshold {
			return dp.PoolSize
		}
	}
	return sorted[len(sorted)-1].PoolSize
}

// findThroughputSaturation reports the first size reaching 95% of the maximum
// observed throughput.
func findThroughputSaturation(sorted []DataPoint) int {
	var max float64
	for _, dp := range sorted {
		if dp.ThroughputOps > max {
			max = dp.ThroughputOps
		}
	}
	saturation := max * 0.95
	for _, dp := range sorted {
		if dp.ThroughputOps >= saturation {
			return dp.PoolSize
		}
	}
	return sorted[len(sorted)-1].PoolSize
}

// recommendations renders the deterministic recommendation list for the best
// configuration and the trend diagnostics.
func (a *Analyzer) recommendations(best ScoredConfiguration, trends Trends) []string {
	optimal := best.DataPoint
	recs := []string{
		fmt.Sprintf("OPTIMAL: Use %d connections per partition for best balance of performance and resource utilization",
			optimal.PoolSize),
		fmt.Sprintf("This configuration achieves %.0f ops/sec with P99 latency of %.2f ms and %.1f%% utilization",
			optimal.ThroughputOps, optimal.LatencyP99Ms, optimal.AvgUtilization),
	}

	if trends.DiminishingReturnsPoolSize < optimal.PoolSize {
		recs = append(recs, fmt.Sprintf(
			"NOTE: Diminishing returns observed at %d connections - consider this for cost optimization",
			trends.DiminishingReturnsPoolSize))
	}

	if optimal.AvgUtilization > 85 {
		recs = append(recs,
			"WARNING: High utilization detected - consider increasing pool size for traffic spikes")
	} else if optimal.AvgUtilization < 50 {
		recs = append(recs,
			"INFO: Low utilization suggests potential for pool size reduction in steady-state")
	}

	if optimal.ErrorRatePercent > 0.1 {
		recs = append(recs, fmt.Sprintf(
			"WARNING: Error rate of %.2f%% detected - investigate connection timeouts or backend issues",
			optimal.ErrorRatePercent))
	}

	recs = append(recs, fmt.Sprintf(
		"For a setup with %d partitions: Total %d connections cluster-wide",
		optimal.PartitionCount, optimal.PoolSize*optimal.PartitionCount))

	return recs
}
