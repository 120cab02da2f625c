package progression

import "slices"

type StoryChoiceRecord struct {
	QuestID  string `json:"quest_id"`
	ChoiceID string `json:"choice_id"`
}

// Player is the progression aggregate for one wallet. The engine treats
// values as immutable: transforms return a Clone with the change applied.
type Player struct {
	WalletID          string              `json:"wallet_id"`
	Level             int                 `json:"level"`
	XP                int                 `json:"xp"`
	Traits            []string            `json:"traits"`
	CompletedQuestIDs []string            `json:"completed_quests"`
	UnlockedZoneIDs   []string            `json:"unlocked_zones"`
	CurrentZoneID     string              `json:"current_zone"`
	StoryChoiceLog    []StoryChoiceRecord `json:"story_choices"`
	AchievementIDs    []string            `json:"achievements"`
	NFTIDs            []string            `json:"nfts"`
}

// NewPlayer returns the default player created on first connection.
func NewPlayer(walletID, startZoneID string) Player {
	return Player{
		WalletID:          walletID,
		Level:             1,
		Traits:            []string{},
		CompletedQuestIDs: []string{},
		UnlockedZoneIDs:   []string{startZoneID},
		CurrentZoneID:     startZoneID,
		StoryChoiceLog:    []StoryChoiceRecord{},
		AchievementIDs:    []string{},
		NFTIDs:            []string{},
	}
}

// Clone deep-copies p. Nil slices come back empty so encodings are stable.
func (p Player) Clone() Player {
	out := p
	out.Traits = cloneStrings(p.Traits)
	out.CompletedQuestIDs = cloneStrings(p.CompletedQuestIDs)
	out.UnlockedZoneIDs = cloneStrings(p.UnlockedZoneIDs)
	out.StoryChoiceLog = append([]StoryChoiceRecord{}, p.StoryChoiceLog...)
	out.AchievementIDs = cloneStrings(p.AchievementIDs)
	out.NFTIDs = cloneStrings(p.NFTIDs)
	return out
}

func cloneStrings(s []string) []string {
	return append([]string{}, s...)
}

// Equal reports whether p and o hold the same state. Nil and empty slices
// compare equal.
func (p Player) Equal(o Player) bool {
	return p.WalletID == o.WalletID &&
		p.Level == o.Level &&
		p.XP == o.XP &&
		p.CurrentZoneID == o.CurrentZoneID &&
		slices.Equal(p.Traits, o.Traits) &&
		slices.Equal(p.CompletedQuestIDs, o.CompletedQuestIDs) &&
		slices.Equal(p.UnlockedZoneIDs, o.UnlockedZoneIDs) &&
		slices.Equal(p.StoryChoiceLog, o.StoryChoiceLog) &&
		slices.Equal(p.AchievementIDs, o.AchievementIDs) &&
		slices.Equal(p.NFTIDs, o.NFTIDs)
}

func (p Player) HasTrait(id string) bool       { return slices.Contains(p.Traits, id) }
func (p Player) HasCompleted(id string) bool   { return slices.Contains(p.CompletedQuestIDs, id) }
func (p Player) HasZone(id string) bool        { return slices.Contains(p.UnlockedZoneIDs, id) }
func (p Player) HasAchievement(id string) bool { return slices.Contains(p.AchievementIDs, id) }
func (p Player) HasNFT(id string) bool         { return slices.Contains(p.NFTIDs, id) }

// Normalize repairs a player read back from a ledger: level is re-derived,
// duplicate ids are dropped, the start zone is restored and an invalid
// current zone falls back to the start zone.
func Normalize(p Player, startZoneID string) Player {
	out := p.Clone()
	if out.XP < 0 {
		out.XP = 0
	}
	out.Level = LevelFor(out.XP)
	out.Traits = dedupe(out.Traits)
	out.CompletedQuestIDs = dedupe(out.CompletedQuestIDs)
	out.UnlockedZoneIDs = dedupe(out.UnlockedZoneIDs)
	out.AchievementIDs = dedupe(out.AchievementIDs)
	out.NFTIDs = dedupe(out.NFTIDs)
	if startZoneID != "" && !out.HasZone(startZoneID) {
		out.UnlockedZoneIDs = append([]string{startZoneID}, out.UnlockedZoneIDs...)
	}
	if !out.HasZone(out.CurrentZoneID) {
		out.CurrentZoneID = startZoneID
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
