package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		MaxLatencyP99Ms:      50,
		MinThroughputOps:     100,
		MaxErrorRatePercent:  1,
		TargetUtilizationMin: 60,
		TargetUtilizationMax: 85,
		CostWeight:           0.3,
		PerformanceWeight:    0.7,
	}
}

func sweepPoints() []DataPoint {
	return []DataPoint{
		{PoolSize: 5, PartitionCount: 3, ThroughputOps: 100, LatencyP99Ms: 10, ErrorRatePercent: 0, AvgUtilization: 95, WorkloadPattern: "read_heavy"},
		{PoolSize: 20, PartitionCount: 3, ThroughputOps: 500, LatencyP99Ms: 8, ErrorRatePercent: 0, AvgUtilization: 75, WorkloadPattern: "read_heavy"},
		{PoolSize: 50, PartitionCount: 3, ThroughputOps: 520, LatencyP99Ms: 8.5, ErrorRatePercent: 0, AvgUtilization: 40, WorkloadPattern: "read_heavy"},
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	a := NewAnalyzer(defaultThresholds(), nil)
	_, err := a.Analyze(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoDataPoints))
}

func TestAnalyzePicksBalancedConfiguration(t *testing.T) {
	a := NewAnalyzer(defaultThresholds(), nil)

	res, err := a.Analyze(sweepPoints())
	require.NoError(t, err)

	// Pool size 20 wins: near-best throughput, lowest latency, utilization in
	// the target band. 5 is over-utilized and slow, 50 wastes connections.
	assert.Equal(t, 20, res.OptimalPoolSize)
	assert.Equal(t, 20, res.OptimalConfiguration.PoolSize)
	assert.InDelta(t, 91.6, res.OptimalScore, 0.1)
	assert.InDelta(t, res.OptimalScore, res.AllScores[0].Score, 1e-9)
	assert.Len(t, res.AllScores, 3)

	// Ranking is descending by score.
	for i := 1; i < len(res.AllScores); i++ {
		assert.GreaterOrEqual(t, res.AllScores[i-1].Score, res.AllScores[i].Score)
	}

	// Throughput gain from 20 to 50 is 4%, under the 10% threshold, so
	// returns diminish at 20.
	assert.Equal(t, 20, res.Trends.DiminishingReturnsPoolSize)

	require.NotEmpty(t, res.Recommendations)
	assert.Contains(t, res.Recommendations[0], "OPTIMAL: Use 20 connections per partition")
	assert.Contains(t, res.Recommendations[len(res.Recommendations)-1], "Total 60 connections cluster-wide")
}

func TestAnalyzeInputOrderIndependent(t *testing.T) {
	a := NewAnalyzer(defaultThresholds(), nil)

	points := sweepPoints()
	reversed := []DataPoint{points[2], points[0], points[1]}

	res1, err := a.Analyze(points)
	require.NoError(t, err)
	res2, err := a.Analyze(reversed)
	require.NoError(t, err)

	assert.Equal(t, res1.OptimalPoolSize, res2.OptimalPoolSize)
	assert.Equal(t, res1.Trends, res2.Trends)
}

func TestAnalyzeTieBreaksToSmallestPool(t *testing.T) {
	a := NewAnalyzer(defaultThresholds(), nil)

	// Identical metrics except pool size; the efficiency term already favors
	// the small pool, and a hypothetical exact tie resolves to it too.
	points := []DataPoint{
		{PoolSize: 40, ThroughputOps: 2000, LatencyP99Ms: 10, AvgUtilization: 70},
		{PoolSize: 10, ThroughputOps: 2000, LatencyP99Ms: 10, AvgUtilization: 70},
	}
	res, err := a.Analyze(points)
	require.NoError(t, err)
	assert.Equal(t, 10, res.OptimalPoolSize)
}

func TestScoreViolationPenalty(t *testing.T) {
	a := NewAnalyzer(defaultThresholds(), nil)

	clean := DataPoint{PoolSize: 10, ThroughputOps: 2000, LatencyP99Ms: 10, AvgUtilization: 70}
	breached := clean
	breached.LatencyP99Ms = 60 // over the 50ms threshold

	assert.Greater(t, a.score(clean), a.score(breached))
}

func TestScoreKnownValue(t *testing.T) {
	a := NewAnalyzer(defaultThresholds(), nil)

	// Hand-computed: latency 100*(1-12/50)=76, throughput min(100,100*4800/200)=100,
	// error 100, utilization 100 (71 in [60,85]), efficiency 100/log10(30)=67.70;
	// perf=0.4*76+0.4*100+0.2*100=90.4, res=0.6*100+0.4*67.70=87.08;
	// score=90.4*0.7+87.08*0.3=89.40, no violations.
	dp := DataPoint{PoolSize: 20, ThroughputOps: 4800, LatencyP99Ms: 12, ErrorRatePercent: 0, AvgUtilization: 71}
	assert.InDelta(t, 89.40, a.score(dp), 0.05)
}

func TestTrendsSingleDataPoint(t *testing.T) {
	a := NewAnalyzer(defaultThresholds(), nil)
	res, err := a.Analyze([]DataPoint{
		{PoolSize: 10, ThroughputOps: 1000, LatencyP99Ms: 5, AvgUtilization: 70},
	})
	require.NoError(t, err)

	// With one point every trend collapses to that size.
	assert.Equal(t, Trends{
		DiminishingReturnsPoolSize:   10,
		LatencyInflectionPoolSize:    10,
		ThroughputSaturationPoolSize: 10,
	}, res.Trends)
}

func TestLatencyInflection(t *testing.T) {
	points := []DataPoint{
		{PoolSize: 5, ThroughputOps: 1000, LatencyP99Ms: 10},
		{PoolSize: 10, ThroughputOps: 1500, LatencyP99Ms: 11},
		{PoolSize: 20, ThroughputOps: 1800, LatencyP99Ms: 13}, // > 10*1.2
	}
	assert.Equal(t, 20, findLatencyInflection(points))
}

func TestThroughputSaturation(t *testing.T) {
	points := []DataPoint{
		{PoolSize: 5, ThroughputOps: 1000},
		{PoolSize: 10, ThroughputOps: 4900}, // >= 0.95 * 5000
		{PoolSize: 20, ThroughputOps: 5000},
	}
	assert.Equal(t, 10, findThroughputSaturation(points))
}
