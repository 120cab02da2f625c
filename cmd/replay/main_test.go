package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/session"
)

type memJournal struct {
	mu      sync.Mutex
	entries []session.JournalEntry
}

func (j *memJournal) WriteEntry(e session.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func recordSession(t *testing.T, cat *catalog.Catalog, wallet string, events []session.Event) []session.JournalEntry {
	t.Helper()
	j := &memJournal{}
	s := session.New(session.Config{}, cat, ledger.NewMemory(), nil)
	s.SetJournal(j)
	go func() { _ = s.Run(context.Background()) }()
	defer s.Close()
	ctx := context.Background()
	if _, err := s.Initialize(ctx, wallet); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, ev := range events {
		if _, err := s.Dispatch(ctx, ev); err != nil {
			t.Fatalf("dispatch %+v: %v", ev, err)
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]session.JournalEntry(nil), j.entries...)
}

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(filepath.Join("..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func TestReplayVerifiesRecordedSession(t *testing.T) {
	cat := loadCatalog(t)
	entries := recordSession(t, cat, "w1", []session.Event{
		{Kind: session.EventStartQuest, QuestID: "forest_discovery"},
		{Kind: session.EventChooseStory, QuestID: "forest_discovery", ChoiceID: "peaceful_approach"},
		{Kind: session.EventCompleteQuest, QuestID: "forest_discovery"},
		{Kind: session.EventUnlockZone, ZoneID: "crystal_caverns"},
		{Kind: session.EventEnterZone, ZoneID: "crystal_caverns"},
	})

	r := newReplayer(cat, "")
	for _, e := range entries {
		if err := r.apply(e); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if r.checked != len(entries) {
		t.Fatalf("checked=%d want %d", r.checked, len(entries))
	}
	p, ok := r.latest("w1")
	if !ok || p.CurrentZoneID != "crystal_caverns" || !p.HasTrait("peaceful_soul") {
		t.Fatalf("replayed player=%+v", p)
	}
}

func TestReplayDetectsTampering(t *testing.T) {
	cat := loadCatalog(t)
	entries := recordSession(t, cat, "w1", []session.Event{
		{Kind: session.EventGrantExperience, Amount: 40},
	})
	entries[1].Event.Amount = 41

	r := newReplayer(cat, "")
	if err := r.apply(entries[0]); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := r.apply(entries[1]); err == nil {
		t.Fatalf("expected digest mismatch")
	}
}

func TestReplayWalletFilterAndOrphans(t *testing.T) {
	cat := loadCatalog(t)
	a := recordSession(t, cat, "a", []session.Event{{Kind: session.EventGrantExperience, Amount: 5}})
	b := recordSession(t, cat, "b", []session.Event{{Kind: session.EventGrantExperience, Amount: 7}})

	r := newReplayer(cat, "b")
	for _, e := range append(a, b...) {
		if err := r.apply(e); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if r.checked != 2 || r.skipped != 2 {
		t.Fatalf("checked=%d skipped=%d", r.checked, r.skipped)
	}

	// An event whose init is not in the journal is skipped, not failed.
	orphan := newReplayer(cat, "")
	if err := orphan.apply(b[1]); err != nil || orphan.skipped != 1 {
		t.Fatalf("orphan: err=%v skipped=%d", err, orphan.skipped)
	}
}
