// Package eligibility answers read-only questions about what a player can
// do next. Every result follows catalog declaration order.
package eligibility

import (
	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/progression"
)

// AvailableQuests lists quests the player could complete now.
func AvailableQuests(p progression.Player, cat *catalog.Catalog) []catalog.Quest {
	var out []catalog.Quest
	for _, q := range cat.Quests {
		if questAvailable(p, q) {
			out = append(out, q)
		}
	}
	return out
}

func questAvailable(p progression.Player, q catalog.Quest) bool {
	if p.HasCompleted(q.ID) || !p.HasZone(q.ZoneID) {
		return false
	}
	if p.Level < q.RequiredLevel {
		return false
	}
	for _, id := range q.RequiredTraitIDs {
		if !p.HasTrait(id) {
			return false
		}
	}
	return true
}

type ZoneSets struct {
	Unlocked  []catalog.Zone `json:"unlocked"`
	Reachable []catalog.Zone `json:"reachable"`
}

// ReachableZones splits zones into those already unlocked and the locked
// ones whose level and trait preconditions the player now meets.
func ReachableZones(p progression.Player, cat *catalog.Catalog) ZoneSets {
	var out ZoneSets
	for _, z := range cat.Zones {
		if p.HasZone(z.ID) {
			out.Unlocked = append(out.Unlocked, z)
			continue
		}
		if zoneReachable(p, z) {
			out.Reachable = append(out.Reachable, z)
		}
	}
	return out
}

func zoneReachable(p progression.Player, z catalog.Zone) bool {
	if p.Level < z.RequiredLevel {
		return false
	}
	for _, id := range z.RequiredTraitIDs {
		if !p.HasTrait(id) {
			return false
		}
	}
	return true
}

type QuestStatus string

const (
	QuestLocked    QuestStatus = "locked"
	QuestAvailable QuestStatus = "available"
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
)

// QuestState places questID on Locked -> Available -> Active -> Completed.
// Active is an ephemeral session marker passed in by the caller.
func QuestState(p progression.Player, cat *catalog.Catalog, questID string, active bool) QuestStatus {
	if p.HasCompleted(questID) {
		return QuestCompleted
	}
	q, ok := cat.Quest(questID)
	if !ok || !questAvailable(p, q) {
		return QuestLocked
	}
	if active {
		return QuestActive
	}
	return QuestAvailable
}
