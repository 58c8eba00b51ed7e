// Package testutil carries float comparison helpers for the reconstruction
// tests, where almost every observable is a floating point quantity.
package testutil

import (
	"math"
	"testing"
)

// AssertInDelta checks that got is within tol of want and treats NaN as a
// failure. Exact equality is reserved for counts and identifiers.
func AssertInDelta(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (±%v)", name, got, want, tol)
	}
}
