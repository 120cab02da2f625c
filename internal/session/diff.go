package session

import "lorebound.gg/internal/progression"

// Diff lists what a dispatch changed so observers can pick what to animate.
type Diff struct {
	XPGained            int                             `json:"xp_gained,omitempty"`
	LevelFrom           int                             `json:"level_from,omitempty"`
	LevelTo             int                             `json:"level_to,omitempty"`
	TraitsAdded         []string                        `json:"traits_added,omitempty"`
	QuestsCompleted     []string                        `json:"quests_completed,omitempty"`
	ZonesUnlocked       []string                        `json:"zones_unlocked,omitempty"`
	CurrentZone         string                          `json:"current_zone,omitempty"`
	StoryChoices        []progression.StoryChoiceRecord `json:"story_choices,omitempty"`
	AchievementsClaimed []string                        `json:"achievements_claimed,omitempty"`
	NFTsEarned          []string                        `json:"nfts_earned,omitempty"`
}

func (d Diff) LeveledUp() bool { return d.LevelTo > d.LevelFrom }

func (d Diff) Empty() bool {
	return d.XPGained == 0 && !d.LeveledUp() && d.CurrentZone == "" &&
		len(d.TraitsAdded) == 0 && len(d.QuestsCompleted) == 0 &&
		len(d.ZonesUnlocked) == 0 && len(d.StoryChoices) == 0 &&
		len(d.AchievementsClaimed) == 0 && len(d.NFTsEarned) == 0
}

// DiffPlayers compares two states of the same player.
func DiffPlayers(before, after progression.Player) Diff {
	d := Diff{
		XPGained:            after.XP - before.XP,
		TraitsAdded:         added(before.Traits, after.Traits),
		QuestsCompleted:     added(before.CompletedQuestIDs, after.CompletedQuestIDs),
		ZonesUnlocked:       added(before.UnlockedZoneIDs, after.UnlockedZoneIDs),
		AchievementsClaimed: added(before.AchievementIDs, after.AchievementIDs),
		NFTsEarned:          added(before.NFTIDs, after.NFTIDs),
	}
	if after.Level != before.Level {
		d.LevelFrom, d.LevelTo = before.Level, after.Level
	}
	if after.CurrentZoneID != before.CurrentZoneID {
		d.CurrentZone = after.CurrentZoneID
	}
	if n := len(before.StoryChoiceLog); len(after.StoryChoiceLog) > n {
		d.StoryChoices = append(d.StoryChoices, after.StoryChoiceLog[n:]...)
	}
	return d
}

func added(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, s := range before {
		seen[s] = true
	}
	var out []string
	for _, s := range after {
		if !seen[s] {
			out = append(out, s)
		}
	}
	return out
}
