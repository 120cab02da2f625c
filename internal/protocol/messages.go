package protocol

import (
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/session"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	WalletID        string            `json:"wallet_id"`
	ClientName      string            `json:"client_name,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	WalletID        string       `json:"wallet_id"`
	Ephemeral       bool         `json:"ephemeral,omitempty"`
	CatalogDigest   string       `json:"catalog_digest"`
	View            session.View `json:"view"`
}

// ACT (client -> server): one player action, acknowledged by ACK.
type ActMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ActID           string        `json:"act_id"`
	Action          session.Event `json:"action"`
}

type AckMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	AckFor          string          `json:"ack_for"`
	Accepted        bool            `json:"accepted"`
	Code            string          `json:"code,omitempty"`
	Message         string          `json:"message,omitempty"`
	Seq             uint64          `json:"seq,omitempty"`
	Result          *session.Result `json:"result,omitempty"`
}

// STATE (server -> client) after every accepted change.
type StateMsg struct {
	Type            string                `json:"type"`
	ProtocolVersion string                `json:"protocol_version"`
	Seq             uint64                `json:"seq"`
	Event           *session.Event        `json:"event,omitempty"`
	Player          *progression.Player   `json:"player"`
	Diff            *session.Diff         `json:"diff,omitempty"`
	Grants          []progression.Grant   `json:"grants,omitempty"`
	Achievements    []string              `json:"achievements,omitempty"`
	Active          []session.ActiveQuest `json:"active,omitempty"`
}

// WARNING (server -> client): background work failed; progress stands.
type WarningMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// MINTED (server -> client): an earned collectible was minted.
type MintedMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Seq             uint64       `json:"seq"`
	Receipt         mint.Receipt `json:"receipt"`
}

// FromNotification builds the frame for a store notification, or returns
// nil when the notification has nothing to send.
func FromNotification(n session.Notification) any {
	switch n.Kind {
	case session.NotifyState:
		if n.Player == nil {
			return nil
		}
		return StateMsg{
			Type:            TypeState,
			ProtocolVersion: Version,
			Seq:             n.Seq,
			Event:           n.Event,
			Player:          n.Player,
			Diff:            n.Diff,
			Grants:          n.Grants,
			Achievements:    n.Achievements,
			Active:          n.Active,
		}
	case session.NotifyWarning:
		if n.Warning == nil {
			return nil
		}
		return WarningMsg{
			Type:            TypeWarning,
			ProtocolVersion: Version,
			Seq:             n.Seq,
			Code:            warningCode(n.Warning.Code),
			Message:         n.Warning.Message,
		}
	case session.NotifyMinted:
		if n.Receipt == nil {
			return nil
		}
		return MintedMsg{Type: TypeMinted, ProtocolVersion: Version, Seq: n.Seq, Receipt: *n.Receipt}
	}
	return nil
}

func warningCode(c session.WarningCode) string {
	switch c {
	case session.WarnLedgerUnavailable:
		return ErrLedgerUnavailable
	case session.WarnMintFailure:
		return ErrMintFailure
	}
	return ErrInternal
}

// SUBSCRIBE (admin observer -> server): follow a connected wallet's
// notifications. Sending another SUBSCRIBE switches wallets.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WalletID        string `json:"wallet_id"`
}

// ObserverBootstrap answers the admin observer bootstrap request.
type ObserverBootstrap struct {
	ProtocolVersion string   `json:"protocol_version"`
	CatalogDigest   string   `json:"catalog_digest"`
	Wallets         []string `json:"wallets"`
}
