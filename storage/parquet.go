// Package storage persists sweep results: a Parquet dataset of benchmark data
// points and an optional S3 upload of result artifacts.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"poolbench/analysis"
)

// DataPointRow is the Parquet row schema for one benchmark data point.
type DataPointRow struct {
	RunID            string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp        int64   `parquet:"name=ts, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	PoolSize         int32   `parquet:"name=pool_size, type=INT32"`
	PartitionCount   int32   `parquet:"name=partition_count, type=INT32"`
	WorkloadPattern  string  `parquet:"name=workload_pattern, type=BYTE_ARRAY, convertedtype=UTF8"`
	ThroughputOps    float64 `parquet:"name=throughput_ops, type=DOUBLE"`
	LatencyP50Ms     float64 `parquet:"name=latency_p50_ms, type=DOUBLE"`
	LatencyP90Ms     float64 `parquet:"name=latency_p90_ms, type=DOUBLE"`
	LatencyP95Ms     float64 `parquet:"name=latency_p95_ms, type=DOUBLE"`
	LatencyP99Ms     float64 `parquet:"name=latency_p99_ms, type=DOUBLE"`
	LatencyP999Ms    float64 `parquet:"name=latency_p999_ms, type=DOUBLE"`
	ErrorRatePct     float64 `parquet:"name=error_rate_pct, type=DOUBLE"`
	AvgUtilization   float64 `parquet:"name=avg_utilization, type=DOUBLE"`
	AvgAcquireWaitMs float64 `parquet:"name=avg_acquire_wait_ms, type=DOUBLE"`
	P99AcquireWaitMs float64 `parquet:"name=p99_acquire_wait_ms, type=DOUBLE"`
	PeakWaiting      int32   `parquet:"name=peak_waiting, type=INT32"`
	TotalCPUs        int32   `parquet:"name=total_cpus, type=INT32"`
}

// ParquetWriter writes benchmark data points to one Parquet file per sweep.
type ParquetWriter struct {
	writer   *writer.ParquetWriter
	file     source.ParquetFile
	mutex    sync.Mutex
	filePath string
	runID    string
}

// NewParquetWriter creates the output directory and a timestamped result file.
func NewParquetWriter(outputDir, runID string) (*ParquetWriter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	fileName := fmt.Sprintf("poolbench-%s.parquet", timestamp)
	filePath := filepath.Join(outputDir, fileName)

	file, err := local.NewLocalFileWriter(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(file, new(DataPointRow), 4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &ParquetWriter{
		writer:   pw,
		file:     file,
		filePath: filePath,
		runID:    runID,
	}, nil
}

// WriteDataPoint appends one data point row.
func (pw *ParquetWriter) WriteDataPoint(dp analysis.DataPoint) error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	row := DataPointRow{
		RunID:            pw.runID,
		Timestamp:        time.Now().UnixMilli(),
		PoolSize:         int32(dp.PoolSize),
		PartitionCount:   int32(dp.PartitionCount),
		WorkloadPattern:  dp.WorkloadPattern,
		ThroughputOps:    dp.ThroughputOps,
		LatencyP50Ms:     dp.LatencyP50Ms,
		LatencyP90Ms:     dp.LatencyP90Ms,
		LatencyP95Ms:     dp.LatencyP95Ms,
		LatencyP99Ms:     dp.LatencyP99Ms,
		LatencyP999Ms:    dp.LatencyP999Ms,
		ErrorRatePct:     dp.ErrorRatePercent,
		AvgUtilization:   dp.AvgUtilization,
		AvgAcquireWaitMs: dp.AvgAcquireWaitMs,
		P99AcquireWaitMs: dp.P99AcquireWaitMs,
		PeakWaiting:      int32(dp.PeakWaiting),
		TotalCPUs:        int32(dp.TotalCPUs),
	}

	if err := pw.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write data point: %w", err)
	}
	return nil
}

// Close finalizes and closes the Parquet file.
func (pw *ParquetWriter) Close() error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	if err := pw.writer.WriteStop(); err != nil {
		return fmt.Errorf("failed to stop parquet writer: %w", err)
	}
	if err := pw.file.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return nil
}

// FilePath returns the path of the written file.
func (pw *ParquetWriter) FilePath() string {
	return pw.filePath
}
