package facematch

import (
	"fmt"
	"math"

	"github.com/kozaktomas/face-gate/internal/identity"
)

// UnknownLabel is the label reported when no enrolled identity is close enough.
const UnknownLabel = "unknown"

// MatchResult is the outcome of a nearest-identity search.
type MatchResult struct {
	Label    string  // identity id, or UnknownLabel
	Name     string  // display name of the matched identity, empty when unknown
	Distance float64 // distance to the nearest candidate, +Inf when there are none
}

// IsUnknown reports whether no identity was accepted.
func (r MatchResult) IsUnknown() bool {
	return r.Label == UnknownLabel
}

// EuclideanDistance computes the L2 distance between two embeddings.
// Vectors of different length are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// FindBestMatch returns the candidate nearest to probe.
// Ties keep the earliest candidate in iteration order. The match is rejected
// (UnknownLabel) when there are no candidates or the minimum distance is not
// strictly below threshold.
func FindBestMatch(probe []float32, candidates []identity.EnrolledIdentity, threshold float64) MatchResult {
	best := -1
	bestDistance := math.Inf(1)

	for i := range candidates {
		d := EuclideanDistance(probe, candidates[i].Embedding)
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if best < 0 || bestDistance >= threshold {
		return MatchResult{Label: UnknownLabel, Distance: bestDistance}
	}

	return MatchResult{
		Label:    candidates[best].ID,
		Name:     candidates[best].Name,
		Distance: bestDistance,
	}
}

// DuplicateIdentityError is returned when an enrollment probe matches an existing identity.
type DuplicateIdentityError struct {
	ID       string
	Name     string
	Distance float64
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("face already enrolled as %q (id %s, distance %.3f)", e.Name, e.ID, e.Distance)
}

// CheckDuplicate runs the matcher over the current population and fails when the
// probe would be accepted as one of them.
func CheckDuplicate(probe []float32, candidates []identity.EnrolledIdentity, threshold float64) error {
	m := FindBestMatch(probe, candidates, threshold)
	if m.IsUnknown() {
		return nil
	}
	return &DuplicateIdentityError{ID: m.Label, Name: m.Name, Distance: m.Distance}
}
