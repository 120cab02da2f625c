package mint

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"lorebound.gg/internal/catalog"
)

// ObjectStore is the bucket surface Bucket writes through; r2s3.Client
// satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, objectKey, contentType string, body []byte) error
	ObjectURL(objectKey string) string
}

// metadata is the NFT metadata document stored per receipt.
type metadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Owner       string    `json:"owner"`
	NFTID       string    `json:"nft_id"`
	ReceiptID   string    `json:"receipt_id"`
	MintedAt    time.Time `json:"minted_at"`
}

// Bucket mints by publishing the metadata document to object storage; the
// receipt URI points at the stored object.
type Bucket struct {
	store    ObjectStore
	prefix   string
	recorder Recorder
	now      func() time.Time
}

func NewBucket(store ObjectStore, prefix string, recorder Recorder) *Bucket {
	return &Bucket{store: store, prefix: prefix, recorder: recorder, now: time.Now}
}

func (b *Bucket) Mint(ctx context.Context, walletID string, nft catalog.NFTDescriptor) (Receipt, error) {
	if nft.ID == "" {
		return Receipt{}, fmt.Errorf("%w: empty nft id", ErrMintFailure)
	}
	r := Receipt{
		ID:       uuid.NewString(),
		WalletID: walletID,
		NFTID:    nft.ID,
		MintedAt: b.now().UTC(),
	}
	name := nft.Name
	if name == "" {
		name = nft.ID
	}
	doc, err := json.Marshal(metadata{
		Name:        name,
		Description: nft.Description,
		Image:       nft.URI,
		Owner:       walletID,
		NFTID:       nft.ID,
		ReceiptID:   r.ID,
		MintedAt:    r.MintedAt,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrMintFailure, err)
	}
	key := path.Join(b.prefix, walletID, nft.ID+"-"+r.ID+".json")
	if err := b.store.PutObject(ctx, key, "application/json", doc); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrMintFailure, err)
	}
	r.URI = b.store.ObjectURL(key)
	if b.recorder != nil {
		if err := b.recorder.RecordMint(ctx, r); err != nil {
			return Receipt{}, fmt.Errorf("%w: record: %v", ErrMintFailure, err)
		}
	}
	return r, nil
}
