package eligibility

import (
	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/progression"
)

type RequirementStatus struct {
	Requirement catalog.Requirement `json:"requirement"`
	Current     int                 `json:"current"`
	Target      int                 `json:"target"`
	Met         bool                `json:"met"`
}

type AchievementStatus struct {
	Achievement  catalog.Achievement `json:"achievement"`
	Progress     float64             `json:"progress"`
	Requirements []RequirementStatus `json:"requirements"`
	Unlocked     bool                `json:"unlocked"`
	Claimed      bool                `json:"claimed"`
}

// EvaluateAchievements scores every achievement. Progress is the mean of
// the per-requirement fractions, each clamped to [0,1]; Unlocked needs all
// requirements met at once.
func EvaluateAchievements(p progression.Player, cat *catalog.Catalog) []AchievementStatus {
	out := make([]AchievementStatus, 0, len(cat.Achievements))
	for _, a := range cat.Achievements {
		st := AchievementStatus{
			Achievement: a,
			Unlocked:    true,
			Claimed:     p.HasAchievement(a.ID),
		}
		sum := 0.0
		for _, r := range a.Requirements {
			have, need := progression.Measure(p, cat, r)
			met := have >= need
			st.Requirements = append(st.Requirements, RequirementStatus{
				Requirement: r,
				Current:     have,
				Target:      need,
				Met:         met,
			})
			if !met {
				st.Unlocked = false
			}
			sum += clamp01(float64(have) / float64(need))
		}
		if n := len(a.Requirements); n > 0 {
			st.Progress = sum / float64(n)
		} else {
			st.Unlocked = false
		}
		out = append(out, st)
	}
	return out
}

// NewlyUnlocked filters statuses down to unlocked achievements not yet claimed.
func NewlyUnlocked(statuses []AchievementStatus) []AchievementStatus {
	var out []AchievementStatus
	for _, s := range statuses {
		if s.Unlocked && !s.Claimed {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
