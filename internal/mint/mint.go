// Package mint turns nft rewards into receipts. Minting is a side effect:
// progression never waits on it and never rolls back when it fails.
package mint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lorebound.gg/internal/catalog"
)

var ErrMintFailure = errors.New("mint failure")

type Receipt struct {
	ID       string    `json:"id"`
	WalletID string    `json:"wallet_id"`
	NFTID    string    `json:"nft_id"`
	URI      string    `json:"uri,omitempty"`
	MintedAt time.Time `json:"minted_at"`
}

type Service interface {
	Mint(ctx context.Context, walletID string, nft catalog.NFTDescriptor) (Receipt, error)
}

// Recorder keeps issued receipts, e.g. the sqlite ledger's mints table.
type Recorder interface {
	RecordMint(ctx context.Context, r Receipt) error
}

// Local issues receipts in-process.
type Local struct {
	baseURI  string
	recorder Recorder
	now      func() time.Time

	mu      sync.Mutex
	failErr error
	issued  []Receipt
}

func NewLocal(baseURI string, recorder Recorder) *Local {
	return &Local{
		baseURI:  strings.TrimRight(baseURI, "/"),
		recorder: recorder,
		now:      time.Now,
	}
}

func (l *Local) Mint(ctx context.Context, walletID string, nft catalog.NFTDescriptor) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrMintFailure, err)
	}
	l.mu.Lock()
	failErr := l.failErr
	l.mu.Unlock()
	if failErr != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrMintFailure, failErr)
	}
	if nft.ID == "" {
		return Receipt{}, fmt.Errorf("%w: empty nft id", ErrMintFailure)
	}

	r := Receipt{
		ID:       uuid.NewString(),
		WalletID: walletID,
		NFTID:    nft.ID,
		URI:      nft.URI,
		MintedAt: l.now().UTC(),
	}
	if r.URI == "" && l.baseURI != "" {
		r.URI = l.baseURI + "/" + nft.ID + "/" + r.ID
	}
	if l.recorder != nil {
		if err := l.recorder.RecordMint(ctx, r); err != nil {
			return Receipt{}, fmt.Errorf("%w: record: %v", ErrMintFailure, err)
		}
	}
	l.mu.Lock()
	l.issued = append(l.issued, r)
	l.mu.Unlock()
	return r, nil
}

// Fail makes subsequent mints fail with err; nil restores normal operation.
func (l *Local) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

// Issued returns the receipts minted so far.
func (l *Local) Issued() []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Receipt(nil), l.issued...)
}
