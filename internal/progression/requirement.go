package progression

import "lorebound.gg/internal/catalog"

// Measure reports how far p is toward r: have counts the player's current
// value, need is the threshold (at least 1). r is met when have >= need.
func Measure(p Player, rules Rules, r catalog.Requirement) (have, need int) {
	need = r.Target
	switch r.Kind {
	case catalog.ReqQuestsCompleted:
		have = len(p.CompletedQuestIDs)
	case catalog.ReqUniqueTraits:
		have = len(p.Traits)
	case catalog.ReqZonesUnlocked:
		have = len(p.UnlockedZoneIDs)
	case catalog.ReqLevelReached:
		have = p.Level
	case catalog.ReqStoryChoicesMade:
		have = len(p.StoryChoiceLog)
	case catalog.ReqHasTrait:
		need = 1
		if p.HasTrait(r.Ref) {
			have = 1
		}
	case catalog.ReqZoneQuestsCompleted:
		for _, id := range p.CompletedQuestIDs {
			if q, ok := rules.Quest(id); ok && q.ZoneID == r.Ref {
				have++
			}
		}
	}
	if need < 1 {
		need = 1
	}
	return have, need
}

// Met reports whether every requirement holds at once.
func Met(p Player, rules Rules, reqs []catalog.Requirement) bool {
	for _, r := range reqs {
		if have, need := Measure(p, rules, r); have < need {
			return false
		}
	}
	return true
}
