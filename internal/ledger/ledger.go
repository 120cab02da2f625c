// Package ledger defines where player progress is persisted between sessions.
// Backends live in internal/persistence; Memory serves tests and ephemeral play.
package ledger

import (
	"context"
	"errors"
	"sync"

	"lorebound.gg/internal/progression"
)

// ErrNotFound is returned by Load when the wallet has no saved player.
var ErrNotFound = errors.New("ledger: player not found")

// Adapter loads and saves players. Save must be idempotent: saving state
// equal to what is stored is a no-op.
type Adapter interface {
	Load(ctx context.Context, walletID string) (progression.Player, error)
	Save(ctx context.Context, walletID string, p progression.Player) error
}

// Memory is an in-process Adapter with failure injection.
type Memory struct {
	mu       sync.Mutex
	players  map[string]progression.Player
	writes   int
	loadErr  error
	saveErr  error
	saveHook func(walletID string, p progression.Player)
}

func NewMemory() *Memory {
	return &Memory{players: map[string]progression.Player{}}
}

func (m *Memory) Load(ctx context.Context, walletID string) (progression.Player, error) {
	if err := ctx.Err(); err != nil {
		return progression.Player{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return progression.Player{}, m.loadErr
	}
	p, ok := m.players[walletID]
	if !ok {
		return progression.Player{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, walletID string, p progression.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.saveErr != nil {
		err := m.saveErr
		m.mu.Unlock()
		return err
	}
	if cur, ok := m.players[walletID]; ok && cur.Equal(p) {
		m.mu.Unlock()
		return nil
	}
	m.players[walletID] = p.Clone()
	m.writes++
	hook := m.saveHook
	m.mu.Unlock()
	if hook != nil {
		hook(walletID, p)
	}
	return nil
}

// Put seeds a stored player without counting a write.
func (m *Memory) Put(walletID string, p progression.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[walletID] = p.Clone()
}

// Writes counts saves that changed stored state.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FailLoads makes every Load return err until called again with nil.
func (m *Memory) FailLoads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// OnSave registers a callback run after every effective write.
func (m *Memory) OnSave(fn func(walletID string, p progression.Player)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveHook = fn
}
