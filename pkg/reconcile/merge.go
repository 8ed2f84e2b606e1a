package reconcile

import (
	"fmt"
	"time"

	"github.com/flappah/netatmo2wow/pkg/models"
)

// DefaultTolerance is the largest timestamp gap for two records to count
// as the same sampling instant. The vendor samples every 5 minutes, so
// it must stay below half of that.
const DefaultTolerance = 2 * time.Minute

// MergeMode selects what happens to records without a counterpart
type MergeMode int

const (
	// MergeIntersection drops every record that has no counterpart on
	// the other side. A sparse module shrinks the working series for all
	// modules folded after it.
	MergeIntersection MergeMode = iota

	// MergeUnion keeps unmatched records from both sides
	MergeUnion
)

// ParseMergeMode maps a configuration value to a MergeMode
func ParseMergeMode(s string) (MergeMode, error) {
	switch s {
	case "", "intersection":
		return MergeIntersection, nil
	case "union":
		return MergeUnion, nil
	default:
		return MergeIntersection, fmt.Errorf("invalid merge mode: %s (valid: intersection, union)", s)
	}
}

func (m MergeMode) String() string {
	if m == MergeUnion {
		return "union"
	}
	return "intersection"
}

// MergeSeries folds incoming into baseline. A baseline record matches an
// incoming record when their timestamps differ by strictly less than
// tolerance. Matched incoming records keep their own fields and take the
// remaining ones from their baseline matches; when several baseline
// records match, later ones in baseline order win over earlier ones.
//
// In MergeIntersection mode the output holds exactly the matched
// incoming records, in incoming order. In MergeUnion mode unmatched
// incoming and baseline records are kept as well and the output is
// sorted by timestamp.
//
// Neither argument is modified.
func MergeSeries(baseline, incoming []models.Measurement, tolerance time.Duration, mode MergeMode) []models.Measurement {
	tol := tolerance.Milliseconds()
	result := make([]models.Measurement, 0, len(incoming))

	var baselineUsed []bool
	if mode == MergeUnion {
		baselineUsed = make([]bool, len(baseline))
	}

	for _, n := range incoming {
		var (
			matched bool
			acc     models.Measurement
		)

		for i, m := range baseline {
			if abs(m.Timestamp-n.Timestamp) >= tol {
				continue
			}
			if matched {
				acc = models.Merged(acc, m)
			} else {
				acc = models.Merged(models.Measurement{}, m)
				matched = true
			}
			if baselineUsed != nil {
				baselineUsed[i] = true
			}
		}

		if matched {
			n.Merge(acc)
			result = append(result, n)
		} else if mode == MergeUnion {
			result = append(result, n)
		}
	}

	if mode == MergeUnion {
		for i, m := range baseline {
			if !baselineUsed[i] {
				result = append(result, m)
			}
		}
		models.SortByTimestamp(result)
	}

	return result
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
