package session

import (
	"time"

	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
)

type NotificationKind string

const (
	NotifyState   NotificationKind = "state"
	NotifyWarning NotificationKind = "warning"
	NotifyMinted  NotificationKind = "minted"
)

type WarningCode string

const (
	WarnLedgerUnavailable WarningCode = "ledger_unavailable"
	WarnMintFailure       WarningCode = "mint_failure"
)

// Warning is a non-fatal problem from background work. Progress already
// shown to the player stays in place.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Notification is what observers receive: a state change after every
// accepted dispatch or initialize, or a warning/receipt from background work.
type Notification struct {
	Kind         NotificationKind    `json:"kind"`
	Seq          uint64              `json:"seq"`
	WalletID     string              `json:"wallet_id"`
	Event        *Event              `json:"event,omitempty"`
	Player       *progression.Player `json:"player,omitempty"`
	Diff         *Diff               `json:"diff,omitempty"`
	Grants       []progression.Grant `json:"grants,omitempty"`
	Achievements []string            `json:"achievements,omitempty"`
	Active       []ActiveQuest       `json:"active,omitempty"`
	Warning      *Warning            `json:"warning,omitempty"`
	Receipt      *mint.Receipt       `json:"receipt,omitempty"`
}

// Observer receives notifications on the store goroutine. Notify must not
// block; hand off to a buffered channel if work is needed.
type Observer interface {
	Notify(Notification)
}

type ObserverFunc func(Notification)

func (f ObserverFunc) Notify(n Notification) { f(n) }

// ActiveQuest is the session-only tracking of a started quest.
type ActiveQuest struct {
	QuestID    string         `json:"quest_id"`
	Objectives map[string]int `json:"objectives"`
	ChoiceID   string         `json:"choice_id,omitempty"`
}

func (a ActiveQuest) clone() ActiveQuest {
	out := a
	out.Objectives = make(map[string]int, len(a.Objectives))
	for k, v := range a.Objectives {
		out.Objectives[k] = v
	}
	return out
}

// JournalEntry records one accepted durable change. Init entries carry the
// starting player; event entries carry the resolved event. Digest is the
// player digest after the entry applies.
type JournalEntry struct {
	Seq       uint64              `json:"seq"`
	SessionID string              `json:"session_id"`
	WalletID  string              `json:"wallet_id"`
	Kind      string              `json:"kind"`
	Event     *Event              `json:"event,omitempty"`
	Player    *progression.Player `json:"player,omitempty"`
	Digest    string              `json:"digest"`
	At        time.Time           `json:"at"`
}

const (
	JournalInit  = "init"
	JournalEvent = "event"
)

// JournalLogger is implemented in internal/persistence/log.
type JournalLogger interface {
	WriteEntry(entry JournalEntry) error
}
