package catalog

import (
	"fmt"
	"strings"
)

// Rarity orders traits and achievements: common < rare < epic < legendary.
type Rarity int

const (
	Common Rarity = iota
	Rare
	Epic
	Legendary
)

var rarityNames = [...]string{"common", "rare", "epic", "legendary"}

func (r Rarity) String() string {
	if r < Common || r > Legendary {
		return fmt.Sprintf("rarity(%d)", int(r))
	}
	return rarityNames[r]
}

func ParseRarity(s string) (Rarity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range rarityNames {
		if name == s {
			return Rarity(i), nil
		}
	}
	return Common, fmt.Errorf("unknown rarity %q", s)
}

func (r Rarity) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Rarity) UnmarshalText(b []byte) error {
	v, err := ParseRarity(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

type Trait struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Rarity      Rarity `json:"rarity"`
}

type Zone struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Lore             string   `json:"lore,omitempty"`
	Start            bool     `json:"start,omitempty"`
	RequiredLevel    int      `json:"required_level,omitempty"`
	RequiredTraitIDs []string `json:"required_traits,omitempty"`
	QuestIDs         []string `json:"quests,omitempty"`
}

// Objective is one step of a quest. Progress is tracked by the session
// in [0, Max]; the objective is met once progress reaches Max.
type Objective struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Max         int    `json:"max"`
}

type StoryChoice struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Consequences []Reward `json:"consequences,omitempty"`
}

type Quest struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	ZoneID           string        `json:"zone"`
	Objectives       []Objective   `json:"objectives,omitempty"`
	Rewards          []Reward      `json:"rewards,omitempty"`
	RequiredLevel    int           `json:"required_level,omitempty"`
	RequiredTraitIDs []string      `json:"required_traits,omitempty"`
	StoryChoices     []StoryChoice `json:"story_choices,omitempty"`
}

// Choice returns the story choice with the given id.
func (q Quest) Choice(id string) (StoryChoice, bool) {
	for _, c := range q.StoryChoices {
		if c.ID == id {
			return c, true
		}
	}
	return StoryChoice{}, false
}

func (q Quest) Objective(id string) (Objective, bool) {
	for _, o := range q.Objectives {
		if o.ID == id {
			return o, true
		}
	}
	return Objective{}, false
}

type RequirementKind string

const (
	ReqQuestsCompleted     RequirementKind = "quests_completed"
	ReqUniqueTraits        RequirementKind = "unique_traits"
	ReqZonesUnlocked       RequirementKind = "zones_unlocked"
	ReqHasTrait            RequirementKind = "has_trait"
	ReqZoneQuestsCompleted RequirementKind = "zone_quests_completed"
	ReqLevelReached        RequirementKind = "level_reached"
	ReqStoryChoicesMade    RequirementKind = "story_choices_made"
)

// Requirement is one predicate of an achievement. Ref names the trait
// (has_trait) or zone (zone_quests_completed) the predicate is about.
type Requirement struct {
	Kind   RequirementKind `json:"type"`
	Target int             `json:"target,omitempty"`
	Ref    string          `json:"ref,omitempty"`
}

type Achievement struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Category     string        `json:"category,omitempty"`
	Rarity       Rarity        `json:"rarity"`
	Requirements []Requirement `json:"requirements"`
	Rewards      []Reward      `json:"rewards,omitempty"`
	Title        string        `json:"title,omitempty"`
}

// LevelReward lists the grants applied once when a player reaches Level.
type LevelReward struct {
	Level   int      `json:"level"`
	Rewards []Reward `json:"rewards"`
}
