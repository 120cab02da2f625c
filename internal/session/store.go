package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/eligibility"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
)

var (
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrNotInitialized    = errors.New("session not initialized")
	ErrClosed            = errors.New("session closed")
)

type Config struct {
	LedgerTimeout  time.Duration
	PersistTimeout time.Duration
	MintTimeout    time.Duration
	Logger         *log.Logger
}

func (c *Config) normalize() {
	if c.LedgerTimeout <= 0 {
		c.LedgerTimeout = 3 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 5 * time.Second
	}
	if c.MintTimeout <= 0 {
		c.MintTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

// View is a read-only picture of the session for presentation layers.
type View struct {
	SessionID       string                          `json:"session_id"`
	WalletID        string                          `json:"wallet_id"`
	Seq             uint64                          `json:"seq"`
	Ephemeral       bool                            `json:"ephemeral,omitempty"`
	Player          progression.Player              `json:"player"`
	Active          []ActiveQuest                   `json:"active,omitempty"`
	AvailableQuests []catalog.Quest                 `json:"available_quests"`
	Zones           eligibility.ZoneSets            `json:"zones"`
	Achievements    []eligibility.AchievementStatus `json:"achievements"`
}

// Result is returned to the dispatching caller.
type Result struct {
	Seq          uint64              `json:"seq"`
	Player       progression.Player  `json:"player"`
	Diff         Diff                `json:"diff"`
	Grants       []progression.Grant `json:"grants,omitempty"`
	Achievements []string            `json:"achievements,omitempty"`
	Active       []ActiveQuest       `json:"active,omitempty"`
}

type initReq struct {
	ctx      context.Context
	walletID string
	resp     chan initResp
}

type initResp struct {
	view View
	err  error
}

type dispatchReq struct {
	ev   Event
	resp chan dispatchResp
}

type dispatchResp struct {
	res Result
	err error
}

type snapshotReq struct {
	resp chan View
}

type observerEntry struct {
	id  int
	obs Observer
}

// Store is the single owner of the live player. Every read and write of
// the player happens on the Run goroutine; callers talk to it through
// request channels, so dispatches are applied strictly one at a time.
type Store struct {
	cfg       Config
	cat       *catalog.Catalog
	engine    *progression.Engine
	ledger    ledger.Adapter
	minter    mint.Service
	journal   JournalLogger
	logger    *log.Logger
	sessionID string

	// Loop-owned state.
	walletID    string
	player      progression.Player
	initialized bool
	ephemeral   bool
	seq         uint64
	active      map[string]*ActiveQuest
	activeOrder []string

	initCh     chan initReq
	dispatchCh chan dispatchReq
	snapshotCh chan snapshotReq
	results    chan bgResult
	stop       chan struct{}
	done       chan struct{}
	running    atomic.Bool
	closeOnce  sync.Once

	saver *saver
	// mints tracks detached mint calls. Close does not wait for them; the
	// Manager shares one group across stores and drains it at shutdown.
	mints *sync.WaitGroup

	obsMu     sync.RWMutex
	observers []observerEntry
	nextObsID int
}

// New builds a store. minter may be nil, in which case nft rewards are
// recorded on the player but never minted.
func New(cfg Config, cat *catalog.Catalog, l ledger.Adapter, m mint.Service) *Store {
	cfg.normalize()
	s := &Store{
		cfg:        cfg,
		cat:        cat,
		engine:     progression.NewEngine(cat),
		ledger:     l,
		minter:     m,
		logger:     cfg.Logger,
		sessionID:  uuid.NewString(),
		active:     map[string]*ActiveQuest{},
		initCh:     make(chan initReq, 8),
		dispatchCh: make(chan dispatchReq, 64),
		snapshotCh: make(chan snapshotReq, 8),
		results:    make(chan bgResult, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		mints:      new(sync.WaitGroup),
	}
	s.saver = newSaver(l, cfg.PersistTimeout, cfg.Logger, s.report)
	return s
}

// SetJournal must be called before Run.
func (s *Store) SetJournal(j JournalLogger) { s.journal = j }

func (s *Store) SessionID() string { return s.sessionID }

// Run serves requests until ctx ends or Close is called.
func (s *Store) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session: Run called twice")
	}
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.initCh:
			s.handleInit(req)
		case req := <-s.dispatchCh:
			s.handleDispatch(req)
		case req := <-s.snapshotCh:
			req.resp <- s.view()
		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

// Close stops the loop, then waits for pending saves. Mints already in
// flight finish on their own timeout and their results are dropped.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.running.Load() {
			<-s.done
		}
		s.saver.close()
	})
}

// Initialize loads walletID's player, or creates the default one. When the
// ledger cannot be reached the store still installs a default player for
// this session and returns an error wrapping ErrLedgerUnavailable; that
// player is never saved, so it cannot overwrite real progress.
func (s *Store) Initialize(ctx context.Context, walletID string) (View, error) {
	if walletID == "" {
		return View{}, fmt.Errorf("%w: empty wallet id", ErrBadEvent)
	}
	req := initReq{ctx: ctx, walletID: walletID, resp: make(chan initResp, 1)}
	select {
	case s.initCh <- req:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.stop:
		return View{}, ErrClosed
	}
	select {
	case r := <-req.resp:
		return r.view, r.err
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.done:
		return View{}, ErrClosed
	}
}

// Dispatch applies ev and returns what changed. Engine refusals come back
// as errors and leave the session untouched.
func (s *Store) Dispatch(ctx context.Context, ev Event) (Result, error) {
	if err := ev.Validate(); err != nil {
		return Result{}, err
	}
	req := dispatchReq{ev: ev, resp: make(chan dispatchResp, 1)}
	select {
	case s.dispatchCh <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.stop:
		return Result{}, ErrClosed
	}
	select {
	case r := <-req.resp:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
		return Result{}, ErrClosed
	}
}

// Snapshot returns the current view. Before Initialize the view is empty.
func (s *Store) Snapshot(ctx context.Context) (View, error) {
	req := snapshotReq{resp: make(chan View, 1)}
	select {
	case s.snapshotCh <- req:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.stop:
		return View{}, ErrClosed
	}
	select {
	case v := <-req.resp:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.done:
		return View{}, ErrClosed
	}
}

// Flush waits until every save queued so far has been attempted.
func (s *Store) Flush(ctx context.Context) error {
	return s.saver.waitFlushed(ctx)
}

// Subscribe registers o for every future notification. The returned func
// unsubscribes; calling it more than once is harmless.
func (s *Store) Subscribe(o Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, observerEntry{id: id, obs: o})
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			defer s.obsMu.Unlock()
			for i, e := range s.observers {
				if e.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(n Notification) {
	s.obsMu.RLock()
	obs := make([]Observer, 0, len(s.observers))
	for _, e := range s.observers {
		obs = append(obs, e.obs)
	}
	s.obsMu.RUnlock()
	for _, o := range obs {
		o.Notify(n)
	}
}

func (s *Store) handleInit(req initReq) {
	ctx, cancel := context.WithTimeout(req.ctx, s.cfg.LedgerTimeout)
	loaded, err := s.ledger.Load(ctx, req.walletID)
	cancel()

	var p progression.Player
	var retErr error
	repaired := false
	s.ephemeral = false
	switch {
	case err == nil:
		raw := loaded.Clone()
		loaded.WalletID = req.walletID
		p = s.engine.Normalize(loaded)
		repaired = !raw.Equal(p)
	case errors.Is(err, ledger.ErrNotFound):
		p = s.engine.NewPlayer(req.walletID)
	default:
		p = s.engine.NewPlayer(req.walletID)
		s.ephemeral = true
		retErr = fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		s.logger.Printf("session=%s wallet=%s ledger load failed, playing ephemeral: %v", s.sessionID, req.walletID, err)
	}

	s.walletID = req.walletID
	s.player = p
	s.initialized = true
	s.active = map[string]*ActiveQuest{}
	s.activeOrder = nil
	s.seq++

	if repaired || errors.Is(err, ledger.ErrNotFound) {
		s.persist()
	}
	s.writeJournal(JournalEntry{Kind: JournalInit, Player: &p})

	s.notify(Notification{Kind: NotifyState, Seq: s.seq, WalletID: s.walletID, Player: &p})
	if retErr != nil {
		s.notify(Notification{
			Kind:     NotifyWarning,
			Seq:      s.seq,
			WalletID: s.walletID,
			Warning:  &Warning{Code: WarnLedgerUnavailable, Message: retErr.Error()},
		})
	}
	req.resp <- initResp{view: s.view(), err: retErr}
}

func (s *Store) handleDispatch(req dispatchReq) {
	if !s.initialized {
		req.resp <- dispatchResp{err: ErrNotInitialized}
		return
	}
	ev := req.ev
	if !ev.Durable() {
		if err := s.applySessionEvent(ev); err != nil {
			req.resp <- dispatchResp{err: err}
			return
		}
		s.seq++
		p := s.player
		active := s.activeList()
		s.notify(Notification{Kind: NotifyState, Seq: s.seq, WalletID: s.walletID, Event: &ev, Player: &p, Active: active})
		req.resp <- dispatchResp{res: Result{Seq: s.seq, Player: p, Active: active}}
		return
	}

	if ev.Kind == EventCompleteQuest && ev.ChoiceID == "" {
		if aq := s.active[ev.QuestID]; aq != nil {
			ev.ChoiceID = aq.ChoiceID
		}
	}
	before := s.player
	out, claimed, err := Apply(s.engine, s.cat, before, ev)
	if err != nil {
		req.resp <- dispatchResp{err: err}
		return
	}
	s.player = out.Player
	if ev.Kind == EventCompleteQuest {
		s.deactivate(ev.QuestID)
	}
	s.seq++
	diff := DiffPlayers(before, out.Player)

	s.persist()
	for _, g := range out.NFTs() {
		s.startMint(s.walletID, s.seq, *g.Reward.NFT)
	}
	s.writeJournal(JournalEntry{Kind: JournalEvent, Event: &ev})

	p := s.player
	active := s.activeList()
	s.notify(Notification{
		Kind:         NotifyState,
		Seq:          s.seq,
		WalletID:     s.walletID,
		Event:        &ev,
		Player:       &p,
		Diff:         &diff,
		Grants:       out.Grants,
		Achievements: claimed,
		Active:       active,
	})
	req.resp <- dispatchResp{res: Result{
		Seq:          s.seq,
		Player:       p,
		Diff:         diff,
		Grants:       out.Grants,
		Achievements: claimed,
		Active:       active,
	}}
}

func (s *Store) handleResult(r bgResult) {
	n := Notification{Seq: r.seq, WalletID: r.walletID}
	switch {
	case r.saveErr != nil:
		n.Kind = NotifyWarning
		n.Warning = &Warning{Code: WarnLedgerUnavailable, Message: fmt.Sprintf("progress not saved: %v", r.saveErr)}
	case r.mintErr != nil:
		n.Kind = NotifyWarning
		n.Warning = &Warning{Code: WarnMintFailure, Message: fmt.Sprintf("nft %s not minted: %v", r.nftID, r.mintErr)}
	case r.receipt != nil:
		n.Kind = NotifyMinted
		n.Receipt = r.receipt
	default:
		return
	}
	s.notify(n)
}

func (s *Store) persist() {
	if s.ephemeral {
		return
	}
	s.saver.enqueue(saveJob{walletID: s.walletID, player: s.player.Clone(), seq: s.seq})
}

func (s *Store) writeJournal(e JournalEntry) {
	if s.journal == nil {
		return
	}
	e.Seq = s.seq
	e.SessionID = s.sessionID
	e.WalletID = s.walletID
	e.Digest = progression.Digest(s.player)
	e.At = time.Now().UTC()
	if err := s.journal.WriteEntry(e); err != nil {
		s.logger.Printf("session=%s journal seq=%d: %v", s.sessionID, e.Seq, err)
	}
}

func (s *Store) view() View {
	if !s.initialized {
		return View{SessionID: s.sessionID}
	}
	return View{
		SessionID:       s.sessionID,
		WalletID:        s.walletID,
		Seq:             s.seq,
		Ephemeral:       s.ephemeral,
		Player:          s.player.Clone(),
		Active:          s.activeList(),
		AvailableQuests: eligibility.AvailableQuests(s.player, s.cat),
		Zones:           eligibility.ReachableZones(s.player, s.cat),
		Achievements:    eligibility.EvaluateAchievements(s.player, s.cat),
	}
}
