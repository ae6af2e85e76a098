// Package visualisation generates a Grafana dashboard JSON for the live
// benchmark metrics exposed on /metrics.
package visualisation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// GrafanaDashboard is the import payload for the Grafana API.
type GrafanaDashboard struct {
	Dashboard DashboardConfig `json:"dashboard"`
	FolderID  int             `json:"folderId"`
	Overwrite bool            `json:"overwrite"`
}

// DashboardConfig is the dashboard body.
type DashboardConfig struct {
	ID            interface{} `json:"id"`
	Title         string      `json:"title"`
	Tags          []string    `json:"tags"`
	Style         string      `json:"style"`
	Timezone      string      `json:"timezone"`
	Panels        []Panel     `json:"panels"`
	Time          TimeRange   `json:"time"`
	Refresh       string      `json:"refresh"`
	SchemaVersion int         `json:"schemaVersion"`
	Version       int         `json:"version"`
}

// Panel is one dashboard panel.
type Panel struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Type        string      `json:"type"`
	GridPos     GridPos     `json:"gridPos"`
	Targets     []Target    `json:"targets"`
	FieldConfig FieldConfig `json:"fieldConfig"`
}

// GridPos is a panel's grid position.
type GridPos struct {
	H int `json:"h"`
	W int `json:"w"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Target is one PromQL query.
type Target struct {
	Expr         string `json:"expr"`
	LegendFormat string `json:"legendFormat,omitempty"`
	RefID        string `json:"refId"`
}

// FieldConfig holds default field settings.
type FieldConfig struct {
	Defaults Defaults `json:"defaults"`
}

// Defaults are the default field settings for a panel.
type Defaults struct {
	Color Color  `json:"color"`
	Unit  string `json:"unit"`
}

// Color selects the palette mode.
type Color struct {
	Mode string `json:"mode"`
}

// TimeRange is the dashboard's default window.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func timeseries(id int, title, unit string, pos GridPos, targets ...Target) Panel {
	return Panel{
		ID:      id,
		Title:   title,
		Type:    "timeseries",
		GridPos: pos,
		Targets: targets,
		FieldConfig: FieldConfig{
			Defaults: Defaults{
				Color: Color{Mode: "palette-classic"},
				Unit:  unit,
			},
		},
	}
}

// CreateBenchmarkDashboard builds the pool benchmark dashboard.
func CreateBenchmarkDashboard() *GrafanaDashboard {
	panels := []Panel{
		timeseries(1, "Operations per Second", "ops",
			GridPos{H: 8, W: 12, X: 0, Y: 0},
			Target{
				Expr:         `sum by (kind) (rate(poolbench_operations_total[1m]))`,
				LegendFormat: "{{kind}}",
				RefID:        "A",
			}),
		timeseries(2, "Operation Latency", "ms",
			GridPos{H: 8, W: 12, X: 12, Y: 0},
			Target{
				Expr:         `histogram_quantile(0.50, sum by (le) (rate(poolbench_operation_latency_ms_bucket[1m])))`,
				LegendFormat: "P50",
				RefID:        "A",
			},
			Target{
				Expr:         `histogram_quantile(0.95, sum by (le) (rate(poolbench_operation_latency_ms_bucket[1m])))`,
				LegendFormat: "P95",
				RefID:        "B",
			},
			Target{
				Expr:         `histogram_quantile(0.99, sum by (le) (rate(poolbench_operation_latency_ms_bucket[1m])))`,
				LegendFormat: "P99",
				RefID:        "C",
			}),
		timeseries(3, "Acquire Wait", "ms",
			GridPos{H: 8, W: 12, X: 0, Y: 8},
			Target{
				Expr:         `histogram_quantile(0.99, rate(poolbench_acquire_wait_ms_bucket[1m]))`,
				LegendFormat: "P99 wait",
				RefID:        "A",
			}),
		timeseries(4, "Error Rate", "ops",
			GridPos{H: 8, W: 12, X: 12, Y: 8},
			Target{
				Expr:         `sum by (kind) (rate(poolbench_operations_total{status="error"}[1m]))`,
				LegendFormat: "{{kind}} errors",
				RefID:        "A",
			}),
		timeseries(5, "Pool Connections", "short",
			GridPos{H: 8, W: 12, X: 0, Y: 16},
			Target{
				Expr:         `poolbench_pool_connections`,
				LegendFormat: "{{partition}} {{state}}",
				RefID:        "A",
			}),
		timeseries(6, "Pool Utilization", "percent",
			GridPos{H: 8, W: 12, X: 12, Y: 16},
			Target{
				Expr:         `poolbench_pool_utilization_pct`,
				LegendFormat: "{{partition}}",
				RefID:        "A",
			}),
		timeseries(7, "Host CPU", "percent",
			GridPos{H: 6, W: 12, X: 0, Y: 24},
			Target{
				Expr:  `poolbench_cpu_utilization_pct`,
				RefID: "A",
			}),
		timeseries(8, "Host Memory", "percent",
			GridPos{H: 6, W: 12, X: 12, Y: 24},
			Target{
				Expr:  `poolbench_memory_usage_pct`,
				RefID: "A",
			}),
	}

	return &GrafanaDashboard{
		Dashboard: DashboardConfig{
			ID:            nil,
			Title:         "Connection Pool Benchmark",
			Tags:          []string{"poolbench", "benchmark", "performance"},
			Style:         "dark",
			Timezone:      "browser",
			SchemaVersion: 30,
			Version:       1,
			Refresh:       "10s",
			Time:          TimeRange{From: "now-1h", To: "now"},
			Panels:        panels,
		},
		FolderID:  0,
		Overwrite: true,
	}
}

// SaveDashboard writes the dashboard JSON to outputPath.
func SaveDashboard(dashboard *GrafanaDashboard, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(dashboard, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write dashboard file: %w", err)
	}
	return nil
}
