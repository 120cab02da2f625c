package protocol

import (
	"context"
	"errors"

	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/session"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"

	// Progression rules.
	ErrBadRequest         = "E_BAD_REQUEST"
	ErrInvalidQuestState  = "E_INVALID_QUEST_STATE"
	ErrInvalidZoneState   = "E_INVALID_ZONE_STATE"
	ErrNegativeExperience = "E_NEGATIVE_EXPERIENCE"

	// Session and infrastructure.
	ErrNotInitialized    = "E_NOT_INITIALIZED"
	ErrLedgerUnavailable = "E_LEDGER_UNAVAILABLE"
	ErrMintFailure       = "E_MINT_FAILURE"
	ErrTimeout           = "E_TIMEOUT"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrRateLimit:          {},
	ErrBadRequest:         {},
	ErrInvalidQuestState:  {},
	ErrInvalidZoneState:   {},
	ErrNegativeExperience: {},
	ErrNotInitialized:     {},
	ErrLedgerUnavailable:  {},
	ErrMintFailure:        {},
	ErrTimeout:            {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an error from the session layer to a wire code. nil maps to "".
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, progression.ErrNegativeExperience):
		return ErrNegativeExperience
	case errors.Is(err, session.ErrBadEvent):
		return ErrBadRequest
	case errors.Is(err, progression.ErrInvalidQuestState):
		return ErrInvalidQuestState
	case errors.Is(err, progression.ErrInvalidZoneState):
		return ErrInvalidZoneState
	case errors.Is(err, session.ErrNotInitialized):
		return ErrNotInitialized
	case errors.Is(err, session.ErrLedgerUnavailable):
		return ErrLedgerUnavailable
	case errors.Is(err, mint.ErrMintFailure):
		return ErrMintFailure
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}
	return ErrInternal
}
