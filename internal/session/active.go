package session

import (
	"lorebound.gg/internal/eligibility"
	"lorebound.gg/internal/progression"
)

// applySessionEvent handles the events that only move a quest between
// Available and Active or track its objectives. Nothing here is persisted.
func (s *Store) applySessionEvent(ev Event) error {
	switch ev.Kind {
	case EventStartQuest:
		if _, ok := s.active[ev.QuestID]; ok {
			return nil
		}
		if st := eligibility.QuestState(s.player, s.cat, ev.QuestID, false); st != eligibility.QuestAvailable {
			return &progression.QuestStateError{QuestID: ev.QuestID, Reason: "cannot start: " + string(st)}
		}
		q, _ := s.cat.Quest(ev.QuestID)
		aq := &ActiveQuest{QuestID: q.ID, Objectives: make(map[string]int, len(q.Objectives))}
		for _, o := range q.Objectives {
			aq.Objectives[o.ID] = 0
		}
		s.active[q.ID] = aq
		s.activeOrder = append(s.activeOrder, q.ID)
		return nil

	case EventAdvanceObjective:
		aq := s.active[ev.QuestID]
		if aq == nil {
			return &progression.QuestStateError{QuestID: ev.QuestID, Reason: "not active"}
		}
		q, _ := s.cat.Quest(ev.QuestID)
		o, ok := q.Objective(ev.ObjectiveID)
		if !ok {
			return &progression.QuestStateError{QuestID: ev.QuestID, Reason: "unknown objective " + ev.ObjectiveID}
		}
		delta := ev.Amount
		if delta == 0 {
			delta = 1
		}
		v := aq.Objectives[o.ID] + delta
		if v < 0 {
			v = 0
		}
		if v > o.Max {
			v = o.Max
		}
		aq.Objectives[o.ID] = v
		return nil

	case EventChooseStory:
		aq := s.active[ev.QuestID]
		if aq == nil {
			return &progression.QuestStateError{QuestID: ev.QuestID, Reason: "not active"}
		}
		q, _ := s.cat.Quest(ev.QuestID)
		if _, ok := q.Choice(ev.ChoiceID); !ok {
			return &progression.QuestStateError{QuestID: ev.QuestID, Reason: "unknown story choice " + ev.ChoiceID}
		}
		aq.ChoiceID = ev.ChoiceID
		return nil
	}
	return ErrBadEvent
}

func (s *Store) deactivate(questID string) {
	if _, ok := s.active[questID]; !ok {
		return
	}
	delete(s.active, questID)
	for i, id := range s.activeOrder {
		if id == questID {
			s.activeOrder = append(s.activeOrder[:i:i], s.activeOrder[i+1:]...)
			break
		}
	}
}

// activeList copies the active quests in the order they were started.
func (s *Store) activeList() []ActiveQuest {
	if len(s.activeOrder) == 0 {
		return nil
	}
	out := make([]ActiveQuest, 0, len(s.activeOrder))
	for _, id := range s.activeOrder {
		out = append(out, s.active[id].clone())
	}
	return out
}
