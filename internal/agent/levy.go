package agent

import "math"

// levyStep draws one heavy-tailed step length via the Mantegna method
// for a symmetric alpha-stable distribution (spec.md §4.6 "Search
// policy"), using the per-agent exploration RNG (never the engine's
// fire/channel RNGs, per spec.md §9).
func levyStep(rng uniformSource, alpha float64) float64 {
	num := math.Gamma(1+alpha) * math.Sin(math.Pi*alpha/2)
	den := math.Gamma((1+alpha)/2) * alpha * math.Pow(2, (alpha-1)/2)
	sigmaU := math.Pow(num/den, 1/alpha)

	u := gaussian(rng, sigmaU)
	v := gaussian(rng, 1)
	if v == 0 {
		v = 1e-12
	}
	return u / math.Pow(math.Abs(v), 1/alpha)
}

// uniformSource is the minimal interface levyStep needs from the
// per-agent RNG, so this file's signatures do not import
// math/rand/v2.
type uniformSource interface {
	Float64() float64
}

func gaussian(r uniformSource, sigma float64) float64 {
	u1 := r.Float64()
	u2 := r.Float64()
	if u1 <= 0 {
		u1 = 1e-12
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return z * sigma
}
