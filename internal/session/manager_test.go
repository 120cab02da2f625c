package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
)

func TestManager_SharesStorePerWallet(t *testing.T) {
	l := ledger.NewMemory()
	m := NewManager(Config{Logger: quietLogger()}, testCatalog(t), l, nil)
	defer m.Close()
	ctx := testCtx(t)

	a, err := m.Open(ctx, "w1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, err := m.Open(ctx, "w1")
	if err != nil {
		t.Fatalf("open again: %v", err)
	}
	if a != b {
		t.Fatalf("same wallet got different stores")
	}
	if _, err := m.Open(ctx, "w2"); err != nil {
		t.Fatalf("open w2: %v", err)
	}
	if got := m.Wallets(); len(got) != 2 || got[0] != "w1" || got[1] != "w2" {
		t.Fatalf("wallets=%v", got)
	}

	if _, err := a.Dispatch(ctx, Event{Kind: EventGrantExperience, Amount: 120}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	m.Release("w1")
	if _, ok := m.Get("w1"); !ok {
		t.Fatalf("store closed while still referenced")
	}
	m.Release("w1")
	if _, ok := m.Get("w1"); ok {
		t.Fatalf("store still open after last release")
	}
	if _, err := a.Dispatch(ctx, Event{Kind: EventGrantExperience, Amount: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("released store still accepts events: %v", err)
	}

	c, err := m.Open(ctx, "w1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if v.Player.XP != 120 || v.Player.Level != 2 {
		t.Fatalf("reopened player=%+v", v.Player)
	}
}

func TestManager_LedgerDownStillOpens(t *testing.T) {
	l := ledger.NewMemory()
	l.FailLoads(errors.New("timeout"))
	m := NewManager(Config{Logger: quietLogger()}, testCatalog(t), l, nil)
	defer m.Close()

	s, err := m.Open(testCtx(t), "w1")
	if !errors.Is(err, ErrLedgerUnavailable) || s == nil {
		t.Fatalf("store=%v err=%v", s, err)
	}
}

func TestManager_ClosedRejectsOpen(t *testing.T) {
	m := NewManager(Config{Logger: quietLogger()}, testCatalog(t), ledger.NewMemory(), nil)
	m.Close()
	m.Close()
	if _, err := m.Open(testCtx(t), "w1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v", err)
	}
}

// gatedLedger holds Load for one wallet until gate closes.
type gatedLedger struct {
	*ledger.Memory
	wallet  string
	loading chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedLedger) Load(ctx context.Context, walletID string) (progression.Player, error) {
	if walletID == g.wallet {
		g.once.Do(func() { close(g.loading) })
		select {
		case <-g.gate:
		case <-ctx.Done():
			return progression.Player{}, ctx.Err()
		}
	}
	return g.Memory.Load(ctx, walletID)
}

func TestManager_SlowLoadDoesNotBlockOtherWallets(t *testing.T) {
	l := &gatedLedger{Memory: ledger.NewMemory(), wallet: "slow", loading: make(chan struct{}), gate: make(chan struct{})}
	m := NewManager(Config{Logger: quietLogger(), LedgerTimeout: 5 * time.Second}, testCatalog(t), l, nil)
	defer m.Close()
	ctx := testCtx(t)

	slow := make(chan *Store, 1)
	go func() {
		s, err := m.Open(ctx, "slow")
		if err != nil {
			t.Errorf("open slow: %v", err)
		}
		slow <- s
	}()
	select {
	case <-l.loading:
	case <-time.After(2 * time.Second):
		t.Fatalf("slow load never started")
	}

	fastCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if _, err := m.Open(fastCtx, "fast"); err != nil {
		t.Fatalf("open fast while another wallet loads: %v", err)
	}
	if got := m.Wallets(); len(got) != 2 || got[0] != "fast" || got[1] != "slow" {
		t.Fatalf("wallets=%v", got)
	}
	if _, ok := m.Acquire("slow"); ok {
		t.Fatalf("acquired a store that is still loading")
	}

	second := make(chan *Store, 1)
	go func() {
		s, _ := m.Open(ctx, "slow")
		second <- s
	}()
	close(l.gate)

	first := <-slow
	if got := <-second; got == nil || got != first {
		t.Fatalf("concurrent opens of one wallet got different stores")
	}
	m.Release("slow")
	m.Release("slow")
	m.Release("fast")
	if got := m.Wallets(); len(got) != 0 {
		t.Fatalf("wallets after release=%v", got)
	}
}

// blockingMinter holds every mint until gate closes.
type blockingMinter struct {
	started chan struct{}
	gate    chan struct{}
	done    atomic.Bool
}

func (b *blockingMinter) Mint(ctx context.Context, walletID string, nft catalog.NFTDescriptor) (mint.Receipt, error) {
	b.started <- struct{}{}
	defer b.done.Store(true)
	select {
	case <-b.gate:
		return mint.Receipt{ID: "r1", WalletID: walletID, NFTID: nft.ID}, nil
	case <-ctx.Done():
		return mint.Receipt{}, ctx.Err()
	}
}

func TestManager_ReleaseDoesNotWaitForMints(t *testing.T) {
	bm := &blockingMinter{started: make(chan struct{}, 1), gate: make(chan struct{})}
	m := NewManager(Config{Logger: quietLogger(), MintTimeout: 10 * time.Second}, testCatalog(t), ledger.NewMemory(), bm)
	ctx := testCtx(t)

	s, err := m.Open(ctx, "a")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	if _, err := m.Open(ctx, "b"); err != nil {
		t.Fatalf("open b: %v", err)
	}
	if _, err := s.Dispatch(ctx, Event{Kind: EventCompleteQuest, QuestID: "relic"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	select {
	case <-bm.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("mint never started")
	}

	released := make(chan struct{})
	go func() {
		m.Release("a")
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatalf("Release waited for an in-flight mint")
	}
	if got := m.Wallets(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("wallets=%v", got)
	}

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatalf("Close returned before the mint finished")
	case <-time.After(100 * time.Millisecond):
	}
	close(bm.gate)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not return after the mint finished")
	}
	if !bm.done.Load() {
		t.Fatalf("mint not drained by Close")
	}
}

// slowSaveLedger holds saves while armed until gate closes.
type slowSaveLedger struct {
	*ledger.Memory
	armed  atomic.Bool
	saving chan struct{}
	gate   chan struct{}
}

func (l *slowSaveLedger) Save(ctx context.Context, walletID string, p progression.Player) error {
	if l.armed.Load() {
		select {
		case l.saving <- struct{}{}:
		default:
		}
		select {
		case <-l.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.Memory.Save(ctx, walletID, p)
}

func TestManager_ReopenWaitsForPreviousClose(t *testing.T) {
	l := &slowSaveLedger{Memory: ledger.NewMemory(), saving: make(chan struct{}, 1), gate: make(chan struct{})}
	m := NewManager(Config{Logger: quietLogger(), PersistTimeout: 5 * time.Second}, testCatalog(t), l, nil)
	defer m.Close()
	ctx := testCtx(t)

	s, err := m.Open(ctx, "w1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	l.armed.Store(true)
	if _, err := s.Dispatch(ctx, Event{Kind: EventGrantExperience, Amount: 120}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	select {
	case <-l.saving:
	case <-time.After(2 * time.Second):
		t.Fatalf("save never started")
	}

	go m.Release("w1")
	deadline := time.Now().Add(time.Second)
	for len(m.Wallets()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("wallet still listed while closing: %v", m.Wallets())
		}
		time.Sleep(5 * time.Millisecond)
	}

	reopened := make(chan *Store, 1)
	go func() {
		s2, err := m.Open(ctx, "w1")
		if err != nil {
			t.Errorf("reopen: %v", err)
		}
		reopened <- s2
	}()
	select {
	case <-reopened:
		t.Fatalf("reopened before the previous save landed")
	case <-time.After(100 * time.Millisecond):
	}

	close(l.gate)
	var s2 *Store
	select {
	case s2 = <-reopened:
	case <-time.After(2 * time.Second):
		t.Fatalf("reopen never finished")
	}
	if s2 == nil || s2 == s {
		t.Fatalf("reopen returned the closed store")
	}
	v, err := s2.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if v.Player.XP != 120 {
		t.Fatalf("reopened player lost the pending save: %+v", v.Player)
	}
	m.Release("w1")
}
