package log

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/session"
)

func TestJournalLogger_RoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewJournalLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }
	var finished []string
	l.OnClose(func(path string) { finished = append(finished, path) })

	p := progression.NewPlayer("w1", "forest_echoes")
	entries := []session.JournalEntry{
		{Seq: 1, SessionID: "s", WalletID: "w1", Kind: session.JournalInit, Player: &p, Digest: progression.Digest(p)},
		{Seq: 2, SessionID: "s", WalletID: "w1", Kind: session.JournalEvent, Event: &session.Event{Kind: session.EventGrantExperience, Amount: 50}, Digest: "d2"},
	}
	if err := l.WriteEntry(entries[0]); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteEntry(entries[1]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "journal"), JournalPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v, want one per hour", files)
	}
	if len(finished) != 2 || finished[0] != files[0] || finished[1] != files[1] {
		t.Fatalf("finished segments=%v want %v", finished, files)
	}
	var got []session.JournalEntry
	for _, f := range files {
		if err := ScanJournal(f, func(e session.JournalEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("scan %s: %v", f, err)
		}
	}
	if len(got) != 2 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("got=%+v", got)
	}
	if got[0].Player == nil || !got[0].Player.Equal(p) {
		t.Fatalf("player=%+v", got[0].Player)
	}
	if got[1].Event == nil || got[1].Event.Amount != 50 {
		t.Fatalf("event=%+v", got[1].Event)
	}
}

func TestMintAuditLogger_AsRecorder(t *testing.T) {
	dir := t.TempDir()
	audit := NewMintAuditLogger(dir)
	m := mint.NewLocal("", audit)
	if _, err := m.Mint(context.Background(), "w1", catalog.NFTDescriptor{ID: "crown"}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := audit.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := ListFiles(filepath.Join(dir, "mints"), MintPrefix)
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
}
