// Package bandit implements multi-armed bandit strategy selection using
// Thompson Sampling over Beta posteriors, with epsilon-greedy and contextual
// variants.
package bandit

import (
	"math"
	"math/rand"
	"time"
)

// BetaArm is the bandit state for one strategy: a Beta posterior plus pull
// and reward totals. Alpha and Beta never drop below 1.
type BetaArm struct {
	Name        string    `json:"name"`
	Alpha       float64   `json:"alpha"`
	Beta        float64   `json:"beta"`
	Pulls       int       `json:"total_pulls"`
	TotalReward float64   `json:"total_reward"`
	LastPulled  time.Time `json:"last_pulled,omitempty"`
}

// NewBetaArm creates an arm with a uniform Beta(1,1) prior.
func NewBetaArm(name string) *BetaArm {
	return &BetaArm{Name: name, Alpha: 1, Beta: 1}
}

// Mean returns the expected value of the posterior.
func (a *BetaArm) Mean() float64 {
	return a.Alpha / (a.Alpha + a.Beta)
}

// Variance returns the variance of the posterior.
func (a *BetaArm) Variance() float64 {
	total := a.Alpha + a.Beta
	return (a.Alpha * a.Beta) / (total * total * (total + 1))
}

// AverageReward returns mean raw reward per pull.
func (a *BetaArm) AverageReward() float64 {
	if a.Pulls == 0 {
		return 0
	}
	return a.TotalReward / float64(a.Pulls)
}

// Sample draws one value from the posterior.
func (a *BetaArm) Sample(rng *rand.Rand) float64 {
	return sampleBeta(rng, a.Alpha, a.Beta)
}

// sampleBeta draws from Beta(alpha, beta) as Ga/(Ga+Gb).
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	ga := sampleGamma(rng, alpha)
	gb := sampleGamma(rng, beta)
	if ga+gb == 0 {
		return 0.5
	}
	return ga / (ga + gb)
}

// sampleGamma draws from Gamma(shape, 1) using the Marsaglia-Tsang method.
// Shapes below 1 are boosted via Gamma(shape+1) and a uniform power.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
