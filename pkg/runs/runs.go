// Package runs works with maximal runs of equal labels in ordered sequences.
package runs

// Run is a maximal contiguous block of equal labels: indexes [Start, End).
type Run[T comparable] struct {
	Value T
	Start int
	End   int
}

// Len returns the number of elements in the run.
func (r Run[T]) Len() int {
	return r.End - r.Start
}

// Detect splits labels into maximal runs of equal values.
func Detect[T comparable](labels []T) []Run[T] {
	if len(labels) == 0 {
		return nil
	}

	result := make([]Run[T], 0, 8)
	start := 0
	for i := 1; i <= len(labels); i++ {
		if i == len(labels) || labels[i] != labels[start] {
			result = append(result, Run[T]{Value: labels[start], Start: start, End: i})
			start = i
		}
	}
	return result
}

// Smooth clears runs shorter than minLen (and runs already equal to null),
// then forward fills the cleared positions from the previous valid label and
// backward fills any leading gap. The input slice is not modified.
//
// ok is false when no run survives; the returned labels are then all null.
func Smooth[T comparable](labels []T, minLen int, null T) (smoothed []T, ok bool) {
	smoothed = make([]T, len(labels))
	copy(smoothed, labels)

	for _, r := range Detect(labels) {
		if r.Value == null || r.Len() < minLen {
			for i := r.Start; i < r.End; i++ {
				smoothed[i] = null
			}
		}
	}

	firstValid := -1
	for i, v := range smoothed {
		if v != null {
			firstValid = i
			break
		}
	}
	if firstValid < 0 {
		return smoothed, false
	}

	// forward fill
	for i := firstValid + 1; i < len(smoothed); i++ {
		if smoothed[i] == null {
			smoothed[i] = smoothed[i-1]
		}
	}
	// backward fill of the leading gap
	for i := 0; i < firstValid; i++ {
		smoothed[i] = smoothed[firstValid]
	}

	return smoothed, true
}
