package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
)

type managed struct {
	store *Store
	refs  int

	// ready closes once Initialize returns; err is set before that.
	ready chan struct{}
	err   error
}

func (e *managed) isReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Manager runs one Store per connected wallet. Connections to the same
// wallet share a store; it closes when the last one releases it.
//
// mu only guards the maps. Ledger loads, store shutdown and mints all run
// outside it, so a slow wallet never holds up another.
type Manager struct {
	cfg     Config
	cat     *catalog.Catalog
	ledger  ledger.Adapter
	minter  mint.Service
	journal JournalLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mints  sync.WaitGroup

	mu        sync.Mutex
	stores    map[string]*managed
	closing   map[string]chan struct{}
	closed    bool
	closeOnce sync.Once
}

func NewManager(cfg Config, cat *catalog.Catalog, l ledger.Adapter, m mint.Service) *Manager {
	cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		cat:     cat,
		ledger:  l,
		minter:  m,
		ctx:     ctx,
		cancel:  cancel,
		stores:  map[string]*managed{},
		closing: map[string]chan struct{}{},
	}
}

// SetJournal applies to stores opened afterwards.
func (m *Manager) SetJournal(j JournalLogger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = j
}

func (m *Manager) Catalog() *catalog.Catalog { return m.cat }

// Open returns the wallet's store, starting and initializing it on first
// use. Each successful Open must be paired with Release. An error wrapping
// ErrLedgerUnavailable still returns a usable (ephemeral) store.
//
// Concurrent opens of one wallet share a single initialization. An open
// racing the wallet's last Release waits for that store to finish saving
// before loading again.
func (m *Manager) Open(ctx context.Context, walletID string) (*Store, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if done, ok := m.closing[walletID]; ok {
			m.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if e, ok := m.stores[walletID]; ok {
			e.refs++
			m.mu.Unlock()
			return m.await(ctx, walletID, e)
		}

		s := New(m.cfg, m.cat, m.ledger, m.minter)
		s.SetJournal(m.journal)
		s.mints = &m.mints
		e := &managed{store: s, refs: 1, ready: make(chan struct{})}
		m.stores[walletID] = e
		m.wg.Add(1)
		m.mu.Unlock()

		go func() {
			defer m.wg.Done()
			_ = s.Run(m.ctx)
		}()
		_, err := s.Initialize(ctx, walletID)
		e.err = err
		if err != nil && !errors.Is(err, ErrLedgerUnavailable) {
			m.mu.Lock()
			if m.stores[walletID] == e {
				delete(m.stores, walletID)
			}
			m.mu.Unlock()
			close(e.ready)
			s.Close()
			return nil, err
		}
		close(e.ready)
		return s, err
	}
}

// await waits for another caller's initialization of e. The caller already
// holds a reference.
func (m *Manager) await(ctx context.Context, walletID string, e *managed) (*Store, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		m.release(walletID, e)
		return nil, ctx.Err()
	}
	if e.err != nil && !errors.Is(e.err, ErrLedgerUnavailable) {
		// The opener already dropped the entry.
		return nil, e.err
	}
	return e.store, e.err
}

// Acquire takes a reference on an already open, initialized store without
// opening a new one. A true result must be paired with Release.
func (m *Manager) Acquire(walletID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.stores[walletID]
	if !ok || m.closed || !e.isReady() {
		return nil, false
	}
	e.refs++
	return e.store, true
}

func (m *Manager) Get(walletID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.stores[walletID]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Release drops one reference. The last release closes the store and waits
// for its pending save, so a following Open reads fresh state. Other
// wallets are not blocked meanwhile.
func (m *Manager) Release(walletID string) {
	m.mu.Lock()
	e := m.stores[walletID]
	m.mu.Unlock()
	if e != nil {
		m.release(walletID, e)
	}
}

func (m *Manager) release(walletID string, e *managed) {
	m.mu.Lock()
	if m.stores[walletID] != e {
		m.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.stores, walletID)
	done := make(chan struct{})
	m.closing[walletID] = done
	m.mu.Unlock()

	e.store.Close()

	m.mu.Lock()
	if m.closing[walletID] == done {
		delete(m.closing, walletID)
	}
	m.mu.Unlock()
	close(done)
}

// Wallets lists wallets with an open store, sorted.
func (m *Manager) Wallets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.stores))
	for id := range m.stores {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close shuts every store down, waits for their loops and for stores still
// closing, then drains in-flight mints.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		stores := m.stores
		m.stores = map[string]*managed{}
		closing := make([]chan struct{}, 0, len(m.closing))
		for _, done := range m.closing {
			closing = append(closing, done)
		}
		m.mu.Unlock()
		for _, e := range stores {
			e.store.Close()
		}
		for _, done := range closing {
			<-done
		}
		m.cancel()
		m.wg.Wait()
		m.mints.Wait()
	})
}
