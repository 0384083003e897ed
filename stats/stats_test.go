package stats

import (
	"testing"

	"github.com/matryer/is"
)

func TestRunningStat(t *testing.T) {
	is := is.New(t)
	type tc struct {
		rewards []int
		mean    float64
		stdev   float64
	}
	cases := []tc{
		{[]int{10, 12, 23, 23, 16, 23, 21, 16}, 18, 5.2372293656638},
		{[]int{14, 35, 71, 124, 10, 24, 55, 33, 87, 19}, 47.2, 36.937785531891},
		{[]int{1}, 1, 0},
		{[]int{}, 0, 0},
		{[]int{1, 1}, 1, 0},
	}
	for _, c := range cases {
		s := &Statistic{}
		for _, r := range c.rewards {
			s.Push(float64(r))
		}
		is.True(FuzzyEqual(s.Mean(), c.mean))
		is.True(FuzzyEqual(s.Stdev(), c.stdev))
	}
}

func TestMinMax(t *testing.T) {
	is := is.New(t)
	s := &Statistic{}
	for _, v := range []float64{3, -1, 7, 2} {
		s.Push(v)
	}
	is.Equal(s.Min(), -1.0)
	is.Equal(s.Max(), 7.0)
	is.Equal(s.Last(), 2.0)
}

func TestZVal(t *testing.T) {
	is := is.New(t)
	is.True(FuzzyEqual(ZVal(95), 1.959963984540054))
}

func TestWinrate(t *testing.T) {
	is := is.New(t)

	w := Winrate{}
	is.True(FuzzyEqual(w.Rate(), 0.5))
	is.True(!w.BeatsThreshold(0.5, 95))

	// 60 wins out of 100 clears 0.5 at 95% confidence...
	w = Winrate{Wins: 60, Losses: 40}
	is.True(FuzzyEqual(w.Rate(), 0.6))
	is.True(w.BeatsThreshold(0.5, 95))

	// ...but 6 out of 10 does not.
	w = Winrate{Wins: 6, Losses: 4}
	is.True(!w.BeatsThreshold(0.5, 95))

	// Draws count half.
	w = Winrate{Wins: 4, Losses: 4, Draws: 2}
	is.True(FuzzyEqual(w.Rate(), 0.5))
}

func TestEloDelta(t *testing.T) {
	is := is.New(t)
	is.True(FuzzyEqual(EloDelta(0.5), 0))
	is.True(EloDelta(0.6) > 70 && EloDelta(0.6) < 71)
	is.Equal(EloDelta(1), 1000.0)
	is.Equal(EloDelta(0), -1000.0)
}
