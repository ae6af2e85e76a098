// Package report renders a sweep's analysis result as a human-readable text
// summary and as a JSON artifact.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"poolbench/analysis"
)

// Render formats the analysis result as a plain-text report.
func Render(res *analysis.Result) string {
	var b strings.Builder
	sep := strings.Repeat("=", 70)

	fmt.Fprintln(&b, sep)
	fmt.Fprintln(&b, "CONNECTION POOL SWEET SPOT ANALYSIS")
	fmt.Fprintln(&b, sep)
	fmt.Fprintln(&b)

	opt := res.OptimalConfiguration
	fmt.Fprintln(&b, "OPTIMAL CONFIGURATION")
	fmt.Fprintf(&b, "  Pool size:          %d connections per partition\n", res.OptimalPoolSize)
	fmt.Fprintf(&b, "  Composite score:    %.1f / 100\n", res.OptimalScore)
	fmt.Fprintf(&b, "  Workload pattern:   %s\n", opt.WorkloadPattern)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "PERFORMANCE METRICS")
	fmt.Fprintf(&b, "  Throughput:         %.0f ops/sec\n", opt.ThroughputOps)
	fmt.Fprintf(&b, "  Latency P50:        %.2f ms\n", opt.LatencyP50Ms)
	fmt.Fprintf(&b, "  Latency P95:        %.2f ms\n", opt.LatencyP95Ms)
	fmt.Fprintf(&b, "  Latency P99:        %.2f ms\n", opt.LatencyP99Ms)
	fmt.Fprintf(&b, "  Error rate:         %.2f%%\n", opt.ErrorRatePercent)
	fmt.Fprintf(&b, "  Avg utilization:    %.1f%%\n", opt.AvgUtilization)
	fmt.Fprintf(&b, "  Avg acquire wait:   %.2f ms\n", opt.AvgAcquireWaitMs)
	fmt.Fprintf(&b, "  P99 acquire wait:   %.2f ms\n", opt.P99AcquireWaitMs)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "TRENDS")
	fmt.Fprintf(&b, "  Diminishing returns at:   %d connections\n", res.Trends.DiminishingReturnsPoolSize)
	fmt.Fprintf(&b, "  Latency inflection at:    %d connections\n", res.Trends.LatencyInflectionPoolSize)
	fmt.Fprintf(&b, "  Throughput saturation at: %d connections\n", res.Trends.ThroughputSaturationPoolSize)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "ALL CONFIGURATIONS (ranked)")
	for i, sc := range res.AllScores {
		fmt.Fprintf(&b, "  %2d. pool=%-4d score=%6.1f  %8.0f ops/s  p99=%7.2f ms  err=%.2f%%  util=%.1f%%\n",
			i+1, sc.DataPoint.PoolSize, sc.Score, sc.DataPoint.ThroughputOps,
			sc.DataPoint.LatencyP99Ms, sc.DataPoint.ErrorRatePercent, sc.DataPoint.AvgUtilization)
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "RECOMMENDATIONS")
	for _, rec := range res.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	fmt.Fprintln(&b, sep)

	return b.String()
}

// WriteJSON writes the analysis result and its raw data points to a
// timestamped JSON file in outputDir and returns the file path.
func WriteJSON(outputDir, runID string, res *analysis.Result, points []analysis.DataPoint) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	doc := struct {
		RunID       string               `json:"run_id"`
		GeneratedAt time.Time            `json:"generated_at"`
		Result      *analysis.Result     `json:"result"`
		DataPoints  []analysis.DataPoint `json:"data_points"`
	}{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Result:      res,
		DataPoints:  points,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	fileName := fmt.Sprintf("poolbench-analysis-%s.json", time.Now().Format("20060102-150405"))
	filePath := filepath.Join(outputDir, fileName)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return filePath, nil
}
