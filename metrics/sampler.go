package metrics

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"poolbench/pool"
)

// Snapshot is one timed capture of pool state, summed across partitions.
// Captures are best-effort: the sampler does not lock the pool, so counters
// from different partitions may be a tick apart.
type Snapshot struct {
	Timestamp    time.Time
	TotalActive  int
	TotalIdle    int
	TotalMax     int
	TotalWaiting int
	Partitions   map[string]pool.Stats
}

// Utilization returns active/max as a percentage, 0 when max is 0.
func (s Snapshot) Utilization() float64 {
	if s.TotalMax == 0 {
		return 0
	}
	return float64(s.TotalActive) / float64(s.TotalMax) * 100
}

// PartitionStatistics summarizes one partition across all snapshots.
type PartitionStatistics struct {
	Partition       string
	MinActive       int
	AvgActive       float64
	MaxActive       int
	AvgUtilization  float64
	PeakUtilization float64
}

// SamplerStatistics is the fold of every retained snapshot.
type SamplerStatistics struct {
	Samples         int
	MinActive       int
	AvgActive       float64
	MaxActive       int
	MinIdle         int
	AvgIdle         float64
	MaxIdle         int
	PeakWaiting     int
	AvgUtilization  float64
	PeakUtilization float64
	Partitions      map[string]PartitionStatistics
}

// Sampler polls the pool's stat interface on a fixed interval and retains a
// time-ordered snapshot sequence. The sampler goroutine is the only writer;
// Statistics and Snapshots may be called concurrently with ongoing capture.
type Sampler struct {
	pool     pool.Pool
	interval time.Duration
	exporter *Exporter
	logger   *zap.Logger

	mu        sync.RWMutex
	snapshots []Snapshot
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewSampler creates a sampler polling the pool every interval. exporter may
// be nil.
func NewSampler(p pool.Pool, interval time.Duration, exporter *Exporter, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{pool: p, interval: interval, exporter: exporter, logger: logger}
}

// Start begins recurring capture. Calling Start on a running sampler is a
// no-op with a warning.
func (s *Sampler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("sampler already running")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	s.logger.Info("sampler started", zap.Duration("interval", s.interval))

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.capture()
		for {
			select {
			case <-ticker.C:
				s.capture()
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts future ticks and waits for the sampling goroutine to exit.
// Idempotent; a no-op when not running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.mu.RLock()
	n := len(s.snapshots)
	s.mu.RUnlock()
	s.logger.Info("sampler stopped", zap.Int("snapshots", n))
}

// IsRunning reports whether capture is active.
func (s *Sampler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// capture queries every partition and appends one snapshot. A failed stat
// call is logged and the whole tick skipped; the schedule continues and prior
// snapshots stay intact.
func (s *Sampler) capture() {
	snap := Snapshot{
		Timestamp:  time.Now(),
		Partitions: make(map[string]pool.Stats),
	}
	for _, name := range s.pool.Partitions() {
		st, err := s.pool.Stats(name)
		if err != nil {
			s.logger.Error("pool stat capture failed, skipping tick",
				zap.String("partition", name), zap.Error(err))
			return
		}
		snap.TotalActive += st.Active
		snap.TotalIdle += st.Idle
		snap.TotalMax += st.Max
		snap.TotalWaiting += st.Waiting
		snap.Partitions[name] = st
		if s.exporter != nil {
			s.exporter.UpdatePool(name, st)
		}
	}

	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

// Clear discards all retained snapshots.
func (s *Sampler) Clear() {
	s.mu.Lock()
	s.snapshots = nil
	s.mu.Unlock()
}

// Snapshots returns a copy of the retained snapshot sequence.
func (s *Sampler) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Statistics folds the retained snapshots into a summary. Zero-valued when no
// snapshots were captured.
func (s *Sampler) Statistics() SamplerStatistics {
	snaps := s.Snapshots()
	stats := SamplerStatistics{Partitions: make(map[string]PartitionStatistics)}
	if len(snaps) == 0 {
		return stats
	}

	stats.Samples = len(snaps)
	stats.MinActive = snaps[0].TotalActive
	stats.MinIdle = snaps[0].TotalIdle
	var sumActive, sumIdle, sumUtil float64

	type partAcc struct {
		min, max  int
		sumActive float64
		sumUtil   float64
		peakUtil  float64
		count     int
	}
	parts := make(map[string]*partAcc)

	for _, snap := range snaps {
		if snap.TotalActive < stats.MinActive {
			stats.MinActive = snap.TotalActive
		}
		if snap.TotalActive > stats.MaxActive {
			stats.MaxActive = snap.TotalActive
		}
		if snap.TotalIdle < stats.MinIdle {
			stats.MinIdle = snap.TotalIdle
		}
		if snap.TotalIdle > stats.MaxIdle {
			stats.MaxIdle = snap.TotalIdle
		}
		if snap.TotalWaiting > stats.PeakWaiting {
			stats.PeakWaiting = snap.TotalWaiting
		}
		util := snap.Utilization()
		if util > stats.PeakUtilization {
			stats.PeakUtilization = util
		}
		sumActive += float64(snap.TotalActive)
		sumIdle += float64(snap.TotalIdle)
		sumUtil += util

		for name, st := range snap.Partitions {
			acc, ok := parts[name]
			if !ok {
				acc = &partAcc{min: st.Active, max: st.Active}
				parts[name] = acc
			}
			if st.Active < acc.min {
				acc.min = st.Active
			}
			if st.Active > acc.max {
				acc.max = st.Active
			}
			u := st.Utilization()
			if u > acc.peakUtil {
				acc.peakUtil = u
			}
			acc.sumActive += float64(st.Active)
			acc.sumUtil += u
			acc.count++
		}
	}

	n := float64(len(snaps))
	stats.AvgActive = sumActive / n
	stats.AvgIdle = sumIdle / n
	stats.AvgUtilization = sumUtil / n

	for name, acc := range parts {
		stats.Partitions[name] = PartitionStatistics{
			Partition:       name,
			MinActive:       acc.min,
			AvgActive:       acc.sumActive / float64(acc.count),
			MaxActive:       acc.max,
			AvgUtilization:  acc.sumUtil / float64(acc.count),
			PeakUtilization: acc.peakUtil,
		}
	}
	return stats
}
