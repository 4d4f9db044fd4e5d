package liveness

import "math"

// Point is a 2D landmark position in image coordinates.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Mouth landmarks in the 68-point face model.
const (
	LandmarkMouthLeft     = 48
	LandmarkMouthRight    = 54
	LandmarkInnerUpperLip = 62
	LandmarkInnerLowerLip = 66
	LandmarkCount68       = 68
	mouthProgressScale    = 400.0
)

// MouthOpenRatio returns the vertical gap between the inner lips divided by the
// mouth width. ok is false when the landmarks are not a full 68-point set or the mouth has no width.
func MouthOpenRatio(landmarks []Point) (ratio float64, ok bool) {
	if len(landmarks) < LandmarkCount68 {
		return 0, false
	}

	upper := landmarks[LandmarkInnerUpperLip]
	lower := landmarks[LandmarkInnerLowerLip]
	left := landmarks[LandmarkMouthLeft]
	right := landmarks[LandmarkMouthRight]

	width := math.Hypot(right.X-left.X, right.Y-left.Y)
	if width == 0 {
		return 0, false
	}

	gap := math.Abs(lower.Y - upper.Y)
	return gap / width, true
}
