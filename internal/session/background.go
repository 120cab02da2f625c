package session

import (
	"context"
	"log"
	"sync"
	"time"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
)

type saveJob struct {
	walletID string
	player   progression.Player
	seq      uint64
}

type bgResult struct {
	walletID string
	seq      uint64
	saveErr  error
	nftID    string
	mintErr  error
	receipt  *mint.Receipt
}

// saver persists players on one goroutine. Only the newest pending state is
// kept: each save carries the full player, so it subsumes older ones. A save
// already in flight is never cancelled.
type saver struct {
	ledger  ledger.Adapter
	timeout time.Duration
	logger  *log.Logger
	report  func(bgResult)

	mu      sync.Mutex
	pending *saveJob
	closed  bool

	wake  chan struct{}
	flush chan chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup
}

func newSaver(l ledger.Adapter, timeout time.Duration, logger *log.Logger, report func(bgResult)) *saver {
	s := &saver{
		ledger:  l,
		timeout: timeout,
		logger:  logger,
		report:  report,
		wake:    make(chan struct{}, 1),
		flush:   make(chan chan struct{}, 8),
		stop:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *saver) enqueue(job saveJob) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = &job
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *saver) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case <-s.wake:
			s.drain()
		case ack := <-s.flush:
			s.drain()
			close(ack)
		}
	}
}

func (s *saver) drain() {
	for {
		s.mu.Lock()
		job := s.pending
		s.pending = nil
		s.mu.Unlock()
		if job == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.ledger.Save(ctx, job.walletID, job.player)
		cancel()
		if err != nil {
			s.logger.Printf("save wallet=%s seq=%d: %v", job.walletID, job.seq, err)
			s.report(bgResult{walletID: job.walletID, seq: job.seq, saveErr: err})
		}
	}
}

// waitFlushed blocks until everything enqueued before the call is saved.
func (s *saver) waitFlushed(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case s.flush <- ack:
	case <-s.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *saver) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
	s.wg.Wait()
}

// startMint fires one mint in the background. It is not tied to any
// dispatch and finishes or fails on its own timeout.
func (s *Store) startMint(walletID string, seq uint64, nft catalog.NFTDescriptor) {
	if s.minter == nil {
		s.logger.Printf("mint skipped wallet=%s nft=%s: no minting service", walletID, nft.ID)
		return
	}
	s.mints.Add(1)
	go func() {
		defer s.mints.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MintTimeout)
		r, err := s.minter.Mint(ctx, walletID, nft)
		cancel()
		res := bgResult{walletID: walletID, seq: seq, nftID: nft.ID}
		if err != nil {
			s.logger.Printf("mint wallet=%s nft=%s: %v", walletID, nft.ID, err)
			res.mintErr = err
		} else {
			s.logger.Printf("minted wallet=%s nft=%s receipt=%s", walletID, nft.ID, r.ID)
			res.receipt = &r
		}
		s.report(res)
	}()
}

// report hands a background result to the store loop. Results arriving
// after the loop stopped are dropped; they were already logged.
func (s *Store) report(r bgResult) {
	select {
	case s.results <- r:
	case <-s.stop:
	case <-s.done:
	}
}
