package progression

import "math"

// XPPerLevelStep scales the level curve: level = floor(sqrt(xp/100)) + 1.
const XPPerLevelStep = 100

// LevelFor is the single xp -> level derivation. Nothing else computes levels.
func LevelFor(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return isqrt(xp/XPPerLevelStep) + 1
}

// XPForLevel is the minimum xp at which LevelFor reports level.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	n := level - 1
	return XPPerLevelStep * n * n
}

func isqrt(n int) int {
	if n < 2 {
		return n
	}
	x := int(math.Sqrt(float64(n)))
	for x*x > n {
		x--
	}
	for (x+1)*(x+1) <= n {
		x++
	}
	return x
}
