package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/protocol"
	"lorebound.gg/internal/session"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip turns a Go value into the generic form the validator expects.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func parse(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("sample: %v", err)
	}
	return v
}

func TestSchemas_ValidateSamples(t *testing.T) {
	hello := compile(t, "hello.schema.json")
	act := compile(t, "act.schema.json")

	valid := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}
	invalid := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err == nil {
			t.Fatalf("expected rejection of %v", v)
		}
	}

	valid(hello, parse(t, `{"type":"HELLO","protocol_version":"1.0","wallet_id":"0xabc","client_name":"bot","capabilities":{"max_queue":8}}`))
	valid(hello, roundTrip(t, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, WalletID: "0xabc"}))
	invalid(hello, parse(t, `{"type":"HELLO","protocol_version":"1.0","wallet_id":""}`))

	valid(act, parse(t, `{"type":"ACT","protocol_version":"1.0","act_id":"A1","action":{"type":"complete_quest","quest_id":"forest_discovery","choice_id":"peaceful_approach"}}`))
	valid(act, roundTrip(t, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ActID: "A2",
		Action: session.Event{Kind: session.EventAdvanceObjective, QuestID: "ancient_runes", ObjectiveID: "collect_runes", Amount: 2},
	}))
	invalid(act, parse(t, `{"type":"ACT","protocol_version":"1.0","act_id":"A3","action":{"type":"complete_quest"}}`))
	invalid(act, parse(t, `{"type":"ACT","protocol_version":"1.0","act_id":"A4","action":{"type":"grant_experience","amount":-5}}`))
	invalid(act, parse(t, `{"type":"ACT","protocol_version":"1.0","act_id":"A5","action":{"type":"teleport"}}`))
}

func TestSchemas_ServerFrames(t *testing.T) {
	ack := compile(t, "ack.schema.json")
	state := compile(t, "state.schema.json")
	warning := compile(t, "warning.schema.json")

	rejected := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: "A1", Code: protocol.ErrInvalidQuestState, Message: "already completed"}
	if err := ack.Validate(roundTrip(t, rejected)); err != nil {
		t.Fatalf("ack: %v", err)
	}
	rejected.Code = ""
	if err := ack.Validate(roundTrip(t, rejected)); err == nil {
		t.Fatalf("rejected ack without code accepted")
	}

	p := progression.NewPlayer("0xabc", "forest_echoes")
	ev := session.Event{Kind: session.EventGrantExperience, Amount: 10}
	frame := protocol.FromNotification(session.Notification{Kind: session.NotifyState, Seq: 2, Player: &p, Event: &ev, Diff: &session.Diff{XPGained: 10}})
	if _, ok := frame.(protocol.StateMsg); !ok {
		t.Fatalf("frame=%T", frame)
	}
	if err := state.Validate(roundTrip(t, frame)); err != nil {
		t.Fatalf("state: %v", err)
	}

	frame = protocol.FromNotification(session.Notification{Kind: session.NotifyWarning, Seq: 3, Warning: &session.Warning{Code: session.WarnMintFailure, Message: "nft not minted"}})
	w, ok := frame.(protocol.WarningMsg)
	if !ok || w.Code != protocol.ErrMintFailure {
		t.Fatalf("frame=%+v", frame)
	}
	if err := warning.Validate(roundTrip(t, frame)); err != nil {
		t.Fatalf("warning: %v", err)
	}

	if protocol.FromNotification(session.Notification{Kind: session.NotifyMinted}) != nil {
		t.Fatalf("minted notification without receipt produced a frame")
	}
}
