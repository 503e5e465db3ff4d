package pricing

// All monetary arithmetic is integer minor units. Rounding is half away
// from zero at each multiplication step, never at the end.

// divRoundHalfAway divides num by den (den > 0) rounding half away from
// zero.
func divRoundHalfAway(num, den int64) int64 {
	if num < 0 {
		return (num - den/2) / den
	}
	return (num + den/2) / den
}

// percentOf applies a whole-number percentage to a minor-unit amount.
func percentOf(base, percent int64) int64 {
	return divRoundHalfAway(base*percent, 100)
}

// basisPointsOf applies a basis-point rate to a minor-unit amount.
func basisPointsOf(base, bp int64) int64 {
	if bp == 0 {
		return 0
	}
	return divRoundHalfAway(base*bp, 10000)
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
