package mastery

import "math"

// MaxScore is the top of the mastery scale.
const MaxScore = 10.0

// Score is the Laplace-smoothed share of correct answers on a 0..10 scale,
// rounded to two decimals. A fresh record scores 5. The value strictly
// increases with correct and strictly decreases with incorrect before
// rounding, so rounding can only flatten steps, never reverse them.
func Score(correct, incorrect int) float64 {
	if correct < 0 {
		correct = 0
	}
	if incorrect < 0 {
		incorrect = 0
	}
	raw := MaxScore * float64(correct+1) / float64(correct+incorrect+2)
	return round2(raw)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Bands are the fixed distribution buckets, lowest first.
var Bands = []string{"0", "1-2", "3-4", "5-6", "7-8", "9-10"}

// Band places a score into its distribution bucket.
func Band(score float64) string {
	switch {
	case score < 1:
		return Bands[0]
	case score < 3:
		return Bands[1]
	case score < 5:
		return Bands[2]
	case score < 7:
		return Bands[3]
	case score < 9:
		return Bands[4]
	}
	return Bands[5]
}
