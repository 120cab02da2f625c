package ledger

import (
	"context"
	"errors"
	"testing"

	"lorebound.gg/internal/progression"
)

func TestMemory_LoadSave(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Load(ctx, "w1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	p := progression.NewPlayer("w1", "start")
	if err := m.Save(ctx, "w1", p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := m.Load(ctx, "w1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(p) {
		t.Fatalf("got %+v want %+v", got, p)
	}

	// Mutating the loaded copy must not leak into the store.
	got.Traits = append(got.Traits, "x")
	again, _ := m.Load(ctx, "w1")
	if again.HasTrait("x") {
		t.Fatalf("store aliased caller slice")
	}
}

func TestMemory_SaveIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := progression.NewPlayer("w1", "start")
	for i := 0; i < 3; i++ {
		if err := m.Save(ctx, "w1", p); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if m.Writes() != 1 {
		t.Fatalf("writes=%d", m.Writes())
	}
	p.XP = 10
	_ = m.Save(ctx, "w1", p)
	if m.Writes() != 2 {
		t.Fatalf("writes=%d", m.Writes())
	}
}

func TestMemory_FailureInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")
	m.FailLoads(boom)
	m.FailSaves(boom)
	if _, err := m.Load(ctx, "w1"); !errors.Is(err, boom) {
		t.Fatalf("load err=%v", err)
	}
	if err := m.Save(ctx, "w1", progression.NewPlayer("w1", "s")); !errors.Is(err, boom) {
		t.Fatalf("save err=%v", err)
	}
	m.FailLoads(nil)
	if _, err := m.Load(ctx, "w1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load err=%v", err)
	}
}
