package lerp

import "sort"

// Curve maps normalized progression in [0,1] to an interpolation factor.
// The output may leave [0,1] (bounce, elastic).
type Curve func(t float64) float64

func Linear(t float64) float64 { return t }

func EaseIn(t float64) float64 { return t * t }

func EaseOut(t float64) float64 { return t * (2 - t) }

// EaseInOut is the smoothstep polynomial.
func EaseInOut(t float64) float64 { return t * t * (3 - 2*t) }

// Constant ignores progression.
func Constant(v float64) Curve {
	return func(float64) float64 { return v }
}

// Keyframe is one control point of a keyframed curve. Tangents are slopes
// (value per unit of time).
type Keyframe struct {
	Time       float64
	Value      float64
	InTangent  float64
	OutTangent float64
}

// Keyframes builds a curve that passes through every key and blends between
// neighbours with cubic Hermite segments. Outside the first/last key the
// curve holds the end value. An empty key set yields Linear.
func Keyframes(keys ...Keyframe) Curve {
	if len(keys) == 0 {
		return Linear
	}
	ks := append([]Keyframe(nil), keys...)
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].Time < ks[j].Time })

	return func(t float64) float64 {
		if t <= ks[0].Time {
			return ks[0].Value
		}
		last := ks[len(ks)-1]
		if t >= last.Time {
			return last.Value
		}
		i := sort.Search(len(ks), func(i int) bool { return ks[i].Time > t }) - 1
		k0, k1 := ks[i], ks[i+1]
		dt := k1.Time - k0.Time
		if dt <= 0 {
			return k1.Value
		}
		s := (t - k0.Time) / dt
		s2 := s * s
		s3 := s2 * s
		h00 := 2*s3 - 3*s2 + 1
		h10 := s3 - 2*s2 + s
		h01 := -2*s3 + 3*s2
		h11 := s3 - s2
		return h00*k0.Value + h10*dt*k0.OutTangent + h01*k1.Value + h11*dt*k1.InTangent
	}
}
