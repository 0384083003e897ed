package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ZVal returns the two-tailed Z-value associated with a specific confidence interval.
// The interval is a number from 0 to 100 percent.
func ZVal(confidenceInterval float64) float64 {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: 1,
	}
	area := (1 + (confidenceInterval / 100)) / 2
	zValue := dist.Quantile(area)
	return zValue
}

// Winrate is the outcome summary of an evaluation match series
// between a candidate model and the current best. Draws count half.
type Winrate struct {
	Wins   float64
	Losses float64
	Draws  float64
}

func (w Winrate) Games() float64 {
	return w.Wins + w.Losses + w.Draws
}

// Rate returns the candidate's score fraction, 0.5 with no games.
func (w Winrate) Rate() float64 {
	n := w.Games()
	if n == 0 {
		return 0.5
	}
	return (w.Wins + 0.5*w.Draws) / n
}

// Interval returns the half-width of the win-rate confidence interval
// at the given percent confidence, using the normal approximation.
func (w Winrate) Interval(confidence float64) float64 {
	n := w.Games()
	if n == 0 {
		return 1
	}
	p := w.Rate()
	return ZVal(confidence) * math.Sqrt(p*(1-p)/n)
}

// BeatsThreshold reports whether the whole confidence interval sits
// above the threshold: the gating question "is the candidate really
// stronger", answered conservatively.
func (w Winrate) BeatsThreshold(threshold, confidence float64) bool {
	return w.Rate()-w.Interval(confidence) > threshold
}

// EloDelta converts a score fraction into an Elo difference. Clamped
// to ±1000 so an undefeated short series reports something printable
// instead of infinity.
func EloDelta(rate float64) float64 {
	if rate >= 1 {
		return 1000
	}
	if rate <= 0 {
		return -1000
	}
	elo := -400 * math.Log10(1/rate-1)
	return math.Max(-1000, math.Min(1000, elo))
}
