package progression

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuestState  = errors.New("invalid quest state")
	ErrInvalidZoneState   = errors.New("invalid zone state")
	ErrNegativeExperience = errors.New("negative experience")
	ErrUnknownTrait       = errors.New("unknown trait")
	ErrAchievementLocked  = errors.New("achievement locked")
)

// QuestStateError explains why a quest transition was refused.
type QuestStateError struct {
	QuestID string
	Reason  string
}

func (e *QuestStateError) Error() string {
	return fmt.Sprintf("%v: quest %s: %s", ErrInvalidQuestState, e.QuestID, e.Reason)
}

func (e *QuestStateError) Unwrap() error { return ErrInvalidQuestState }

type ZoneStateError struct {
	ZoneID string
	Reason string
}

func (e *ZoneStateError) Error() string {
	return fmt.Sprintf("%v: zone %s: %s", ErrInvalidZoneState, e.ZoneID, e.Reason)
}

func (e *ZoneStateError) Unwrap() error { return ErrInvalidZoneState }
