// Package fracindex allocates floating-point order keys for shared ordered
// lists. Inserting between two neighbors takes the midpoint of their keys, so
// a single item can be placed without rewriting the keys of every other item.
//
// Repeated bisection between the same two neighbors eventually produces
// deltas too small to represent reliably. Callers are expected to run
// DetectPrecisionCollapse after each insertion and, on a positive result,
// rewrite all affected keys in one atomic pass using ReindexToIntegers
// instead of continuing to bisect.
//
// All functions are pure; the package holds no state.
package fracindex

import (
	"fmt"
	"sort"
)

// CollapseThreshold is the smallest usable gap between two adjacent order
// keys. Deltas below this are treated as precision collapse.
const CollapseThreshold = 1e-6

// GenerateBetween returns an order key strictly between prev and next.
//
// A nil bound means "no neighbor on that side":
//   - both nil: first item in an empty list, key 0
//   - prev nil: insert at the head, key next-1
//   - next nil: insert at the tail, key prev+1
//   - both set: requires prev < next, returns the midpoint
func GenerateBetween(prev, next *float64) (float64, error) {
	switch {
	case prev == nil && next == nil:
		return 0, nil
	case prev == nil:
		return *next - 1, nil
	case next == nil:
		return *prev + 1, nil
	}
	if *prev >= *next {
		return 0, fmt.Errorf("generate order key: prev (%v) must be less than next (%v)", *prev, *next)
	}
	return (*prev + *next) / 2, nil
}

// DetectPrecisionCollapse reports whether any two adjacent keys (by sorted
// value) are closer than CollapseThreshold.
func DetectPrecisionCollapse(keys []float64) bool {
	if len(keys) < 2 {
		return false
	}
	sorted := make([]float64, len(keys))
	copy(sorted, keys)
	sort.Float64s(sorted)

	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] < CollapseThreshold {
			return true
		}
	}
	return false
}

// ReindexToIntegers maps each key to its dense integer rank 0..n-1.
//
// The output is positionally aligned with the input: out[i] is the rank of
// keys[i], not the i-th smallest rank. Ties are broken by input position so
// collapsed (equal) keys still receive distinct ranks.
func ReindexToIntegers(keys []float64) []float64 {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})

	out := make([]float64, len(keys))
	for rank, pos := range order {
		out[pos] = float64(rank)
	}
	return out
}
