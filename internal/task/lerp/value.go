package lerp

// Value is a scalar or multi-component value. Components are interpolated
// independently.
type Value []float64

func Scalar(v float64) Value     { return Value{v} }
func Vec2(x, y float64) Value    { return Value{x, y} }
func Vec3(x, y, z float64) Value { return Value{x, y, z} }

func (v Value) Clone() Value { return append(Value(nil), v...) }

// X returns the first component (0 for an empty value).
func (v Value) X() float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// Interpolate returns from + t*(to-from) componentwise. t is not clamped, so
// overshooting curves extrapolate. t == 0 and t == 1 return exact copies of
// from and to.
func Interpolate(from, to Value, t float64) Value {
	switch t {
	case 0:
		return from.Clone()
	case 1:
		return to.Clone()
	}
	out := make(Value, len(from))
	for i := range from {
		out[i] = from[i] + t*(to[i]-from[i])
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
