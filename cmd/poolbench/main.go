package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"poolbench/analysis"
	"poolbench/bench"
	"poolbench/config"
	"poolbench/metrics"
	"poolbench/pool"
	"poolbench/report"
	"poolbench/storage"
	"poolbench/visualisation"
	"poolbench/workload"
)

var (
	configPath     = flag.String("config", "", "Path to YAML config file (defaults apply when empty)")
	simulate       = flag.Bool("simulate", false, "Use the in-memory pool and simulated operations instead of a database")
	outputDir      = flag.String("output", "", "Output directory for results (overrides config)")
	prometheusAddr = flag.String("prometheus-addr", "", "Prometheus metrics server address (overrides config)")
	dashboardPath  = flag.String("dashboard", "", "Write the Grafana dashboard JSON to this path and exit")
)

const (
	seededUserRows    = 10000
	seededProductRows = 1000
)

func main() {
	flag.Parse()

	if *dashboardPath != "" {
		if err := visualisation.SaveDashboard(visualisation.CreateBenchmarkDashboard(), *dashboardPath); err != nil {
			log.Fatalf("Failed to write dashboard: %v", err)
		}
		fmt.Printf("Dashboard saved to %s\n", *dashboardPath)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("benchmark failed", zap.Error(err))
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if *outputDir != "" {
		cfg.Export.OutputDir = *outputDir
	}
	if *prometheusAddr != "" {
		cfg.Export.PrometheusAddr = *prometheusAddr
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exporter := metrics.NewExporter(nil)
	go func() {
		logger.Info("starting prometheus server", zap.String("addr", cfg.Export.PrometheusAddr))
		if err := exporter.StartServer(cfg.Export.PrometheusAddr); err != nil {
			logger.Warn("prometheus server stopped", zap.Error(err))
		}
	}()

	p, executor, err := buildPool(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	agg := metrics.NewAggregator(exporter, logger)
	sampler := metrics.NewSampler(p, cfg.Sampler.Interval(), exporter, logger)
	probe := metrics.NewHostProbe()
	gen := workload.NewGenerator(p, executor, agg, cfg.Pool.AcquireTimeout(), logger)

	// A signal stops the in-flight phase; the sweep loop then observes ctx.
	go func() {
		<-ctx.Done()
		gen.Stop()
	}()

	runner := bench.NewRunner(cfg, p, gen, agg, sampler, probe, exporter, logger)
	points, runErr := runner.Run(ctx)
	if runErr != nil && len(points) == 0 {
		return runErr
	}
	if runErr != nil {
		logger.Warn("sweep ended early, analyzing partial results",
			zap.Error(runErr), zap.Int("data_points", len(points)))
	}

	utilMin, utilMax, err := cfg.Analysis.UtilizationRange()
	if err != nil {
		return err
	}
	analyzer := analysis.NewAnalyzer(analysis.Thresholds{
		MaxLatencyP99Ms:      cfg.Analysis.MaxLatencyP99Ms,
		MinThroughputOps:     cfg.Analysis.MinThroughput,
		MaxErrorRatePercent:  cfg.Analysis.MaxErrorRate,
		TargetUtilizationMin: utilMin,
		TargetUtilizationMax: utilMax,
		CostWeight:           cfg.Analysis.CostWeight,
		PerformanceWeight:    cfg.Analysis.PerformanceWeight,
	}, logger)

	result, err := analyzer.Analyze(points)
	if err != nil {
		return err
	}

	artifacts, err := writeArtifacts(cfg, runner.RunID(), result, points, logger)
	if err != nil {
		return err
	}
	if cfg.Export.S3.Bucket != "" {
		uploadArtifacts(context.Background(), cfg, artifacts, logger)
	}

	fmt.Print(report.Render(result))
	return nil
}

// buildPool picks the backend: an in-memory pool with simulated operations, or
// one database/sql pool per partition with real queries.
func buildPool(cfg config.Config, logger *zap.Logger) (pool.Pool, workload.Executor, error) {
	initial := cfg.Pool.Sizes[0]

	if *simulate || cfg.Pool.Driver == "" {
		p, err := pool.NewMemPool(cfg.PartitionNames(), initial, logger)
		if err != nil {
			return nil, nil, err
		}
		simLatency := cfg.Pool.SimulateLatency()
		if simLatency <= 0 {
			simLatency = 5 * time.Millisecond
		}
		executor := workload.SimulatedExecutor{
			MinLatency:  simLatency / 2,
			MaxLatency:  simLatency,
			FailureRate: cfg.Pool.SimulateFailures,
		}
		logger.Info("using in-memory pool with simulated operations")
		return p, executor, nil
	}

	p, err := pool.NewSQLPool(cfg.Pool.Driver, cfg.PartitionDSNs(), initial, logger)
	if err != nil {
		return nil, nil, err
	}
	executor := workload.SQLExecutor{
		UserRows:    seededUserRows,
		ProductRows: seededProductRows,
	}
	logger.Info("using sql pool", zap.String("driver", cfg.Pool.Driver))
	return p, executor, nil
}

func writeArtifacts(cfg config.Config, runID string, result *analysis.Result,
	points []analysis.DataPoint, logger *zap.Logger) ([]string, error) {
	pw, err := storage.NewParquetWriter(cfg.Export.OutputDir, runID)
	if err != nil {
		return nil, err
	}
	for _, dp := range points {
		if err := pw.WriteDataPoint(dp); err != nil {
			pw.Close()
			return nil, err
		}
	}
	if err := pw.Close(); err != nil {
		return nil, err
	}

	jsonPath, err := report.WriteJSON(cfg.Export.OutputDir, runID, result, points)
	if err != nil {
		return nil, err
	}

	logger.Info("results written",
		zap.String("parquet", pw.FilePath()),
		zap.String("json", jsonPath))
	return []string{pw.FilePath(), jsonPath}, nil
}

// uploadArtifacts pushes result files to the configured bucket. Upload
// failures are logged, never fatal; the local artifacts are the source of
// truth.
func uploadArtifacts(ctx context.Context, cfg config.Config, paths []string, logger *zap.Logger) {
	uploader, err := storage.NewUploader(ctx, storage.UploaderConfig{
		Bucket:          cfg.Export.S3.Bucket,
		Region:          cfg.Export.S3.Region,
		Endpoint:        cfg.Export.S3.Endpoint,
		Prefix:          cfg.Export.S3.Prefix,
		AccessKeyID:     os.Getenv("POOLBENCH_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("POOLBENCH_S3_SECRET_ACCESS_KEY"),
	}, logger)
	if err != nil {
		logger.Warn("upload disabled", zap.Error(err))
		return
	}
	for _, path := range paths {
		if _, err := uploader.UploadFile(ctx, path); err != nil {
			logger.Warn("upload failed", zap.String("path", path), zap.Error(err))
		}
	}
}
