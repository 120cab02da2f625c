package progression

import "testing"

func TestLevelFor(t *testing.T) {
	cases := map[int]int{
		-5:    1,
		0:     1,
		99:    1,
		100:   2,
		250:   2,
		399:   2,
		400:   3,
		900:   4,
		10000: 11,
	}
	for xp, want := range cases {
		if got := LevelFor(xp); got != want {
			t.Fatalf("LevelFor(%d)=%d want %d", xp, got, want)
		}
	}
}

func TestXPForLevel_Boundaries(t *testing.T) {
	for l := 1; l <= 200; l++ {
		xp := XPForLevel(l)
		if got := LevelFor(xp); got != l {
			t.Fatalf("LevelFor(XPForLevel(%d)=%d)=%d", l, xp, got)
		}
		if l > 1 {
			if got := LevelFor(xp - 1); got != l-1 {
				t.Fatalf("LevelFor(%d)=%d want %d", xp-1, got, l-1)
			}
		}
	}
}

func TestLevelFor_Monotonic(t *testing.T) {
	prev := LevelFor(0)
	for xp := 1; xp < 50000; xp += 7 {
		l := LevelFor(xp)
		if l < prev {
			t.Fatalf("level dropped at xp=%d: %d < %d", xp, l, prev)
		}
		prev = l
	}
}
