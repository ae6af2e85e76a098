// Package workload drives synthetic read/write load against the pool under
// test and feeds every outcome into the metrics aggregator.
package workload

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownPattern is returned when a workload pattern name is not in the
// table. This is a configuration failure and is raised before any worker
// starts.
var ErrUnknownPattern = errors.New("workload: unknown pattern")

// Pattern is a named read/write probability mix. An operation is a read when a
// uniform draw in [0,1) falls below ReadRatio.
type Pattern struct {
	Name      string
	ReadRatio float64
}

// IsRead reports whether a uniform draw selects a read operation.
func (p Pattern) IsRead(draw float64) bool {
	return draw < p.ReadRatio
}

var patterns = map[string]float64{
	"read_heavy":  0.8,
	"write_heavy": 0.2,
	"mixed":       0.5,
	"read_only":   1.0,
	"write_only":  0.0,
}

// LookupPattern resolves a pattern name to its read ratio. Names match
// case-insensitively so config files may carry READ_HEAVY or read_heavy.
func LookupPattern(name string) (Pattern, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	ratio, ok := patterns[key]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %q", ErrUnknownPattern, name)
	}
	return Pattern{Name: key, ReadRatio: ratio}, nil
}

// PatternNames lists the known pattern names, sorted.
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
