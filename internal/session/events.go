package session

import (
	"errors"
	"fmt"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/eligibility"
	"lorebound.gg/internal/progression"
)

type EventKind string

const (
	// Session-only events: they move quests between Available and Active
	// and track objective progress, but never touch the durable player.
	EventStartQuest       EventKind = "start_quest"
	EventAdvanceObjective EventKind = "advance_objective"
	EventChooseStory      EventKind = "choose_story"

	// Durable events run through the progression engine.
	EventCompleteQuest   EventKind = "complete_quest"
	EventGrantExperience EventKind = "grant_experience"
	EventUnlockZone      EventKind = "unlock_zone"
	EventEnterZone       EventKind = "enter_zone"
)

var ErrBadEvent = errors.New("bad event")

// Event is one player action. Which fields matter depends on Kind.
type Event struct {
	Kind        EventKind `json:"type"`
	QuestID     string    `json:"quest_id,omitempty"`
	ObjectiveID string    `json:"objective_id,omitempty"`
	ChoiceID    string    `json:"choice_id,omitempty"`
	ZoneID      string    `json:"zone_id,omitempty"`
	Amount      int       `json:"amount,omitempty"`
}

func (e Event) Durable() bool {
	switch e.Kind {
	case EventCompleteQuest, EventGrantExperience, EventUnlockZone, EventEnterZone:
		return true
	}
	return false
}

// Validate checks that the fields Kind needs are present.
func (e Event) Validate() error {
	switch e.Kind {
	case EventStartQuest, EventCompleteQuest:
		if e.QuestID == "" {
			return fmt.Errorf("%w: %s needs quest_id", ErrBadEvent, e.Kind)
		}
	case EventAdvanceObjective:
		if e.QuestID == "" || e.ObjectiveID == "" {
			return fmt.Errorf("%w: %s needs quest_id and objective_id", ErrBadEvent, e.Kind)
		}
	case EventChooseStory:
		if e.QuestID == "" || e.ChoiceID == "" {
			return fmt.Errorf("%w: %s needs quest_id and choice_id", ErrBadEvent, e.Kind)
		}
	case EventGrantExperience:
		if e.Amount < 0 {
			return fmt.Errorf("%w: %w", ErrBadEvent, progression.ErrNegativeExperience)
		}
	case EventUnlockZone, EventEnterZone:
		if e.ZoneID == "" {
			return fmt.Errorf("%w: %s needs zone_id", ErrBadEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadEvent, e.Kind)
	}
	return nil
}

// Apply runs a durable event through the engine, then claims every
// achievement the result unlocks, repeating until nothing new unlocks, so
// an achievement earned by another achievement's reward lands in the same
// step. The journal replays through this same function.
func Apply(e *progression.Engine, cat *catalog.Catalog, p progression.Player, ev Event) (progression.Outcome, []string, error) {
	var (
		out progression.Outcome
		err error
	)
	switch ev.Kind {
	case EventCompleteQuest:
		out, err = e.CompleteQuest(p, ev.QuestID, ev.ChoiceID)
	case EventGrantExperience:
		out, err = e.GrantExperience(p, ev.Amount)
	case EventUnlockZone:
		out, err = e.UnlockReachableZone(p, ev.ZoneID)
	case EventEnterZone:
		out, err = e.EnterZone(p, ev.ZoneID)
	default:
		return progression.Outcome{Player: p}, nil, fmt.Errorf("%w: %s is not durable", ErrBadEvent, ev.Kind)
	}
	if err != nil {
		return progression.Outcome{Player: p}, nil, err
	}

	var claimed []string
	for {
		newly := eligibility.NewlyUnlocked(eligibility.EvaluateAchievements(out.Player, cat))
		if len(newly) == 0 {
			break
		}
		for _, st := range newly {
			o, err := e.ClaimAchievement(out.Player, st.Achievement.ID)
			if err != nil {
				return progression.Outcome{Player: p}, nil, err
			}
			out.Player = o.Player
			out.Grants = append(out.Grants, o.Grants...)
			claimed = append(claimed, st.Achievement.ID)
		}
	}
	return out, claimed, nil
}
