// Package snapshot stores one zstd-compressed gob snapshot per player and
// exposes the directory as a ledger.
package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/progression"
)

const Version = 1

// Header is written as a JSON line ahead of the gob body so tools can
// inspect a snapshot without decoding the player.
type Header struct {
	Version       int       `json:"version"`
	WalletID      string    `json:"wallet_id"`
	Digest        string    `json:"digest"`
	CatalogDigest string    `json:"catalog_digest,omitempty"`
	Level         int       `json:"level"`
	XP            int       `json:"xp"`
	SavedAt       time.Time `json:"saved_at"`
}

type SnapshotV1 struct {
	Header        Header
	Player        progression.Player
	CatalogDigest string
}

// WriteSnapshot writes to a temporary file and renames it over path, so a
// reader never sees a partial snapshot.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := encode(tmp, snap); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// FileLedger keeps players as <dir>/players/<wallet>.snap.zst. Written
// files are handed to OnWrite, typically a bucket mirror.
type FileLedger struct {
	dir           string
	catalogDigest string
	onWrite       func(path string)
	onStale       func(path string, snap SnapshotV1)

	mu sync.Mutex
}

func NewFileLedger(dir, catalogDigest string) *FileLedger {
	return &FileLedger{dir: dir, catalogDigest: catalogDigest}
}

// OnWrite must be set before the ledger is used.
func (l *FileLedger) OnWrite(fn func(path string)) { l.onWrite = fn }

// OnStale is called on Load for snapshots saved under another catalog,
// before the player is handed out. Must be set before use.
func (l *FileLedger) OnStale(fn func(path string, snap SnapshotV1)) { l.onStale = fn }

func (l *FileLedger) Path(walletID string) string {
	return filepath.Join(l.dir, "players", url.PathEscape(walletID)+".snap.zst")
}

func (l *FileLedger) Load(ctx context.Context, walletID string) (progression.Player, error) {
	if err := ctx.Err(); err != nil {
		return progression.Player{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	path := l.Path(walletID)
	snap, err := ReadSnapshot(path)
	if errors.Is(err, os.ErrNotExist) {
		return progression.Player{}, ledger.ErrNotFound
	}
	if err != nil {
		return progression.Player{}, err
	}
	if l.onStale != nil && snap.CatalogDigest != "" && snap.CatalogDigest != l.catalogDigest {
		l.onStale(path, snap)
	}
	return snap.Player, nil
}

// Save rewrites the file unless its header already carries p's digest and
// the current catalog digest.
func (l *FileLedger) Save(ctx context.Context, walletID string, p progression.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	digest := progression.Digest(p)
	path := l.Path(walletID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, err := ReadHeader(path); err == nil && h.Digest == digest && h.CatalogDigest == l.catalogDigest {
		return nil
	}
	snap := SnapshotV1{
		Header: Header{
			Version:       Version,
			WalletID:      walletID,
			Digest:        digest,
			CatalogDigest: l.catalogDigest,
			Level:         p.Level,
			XP:            p.XP,
			SavedAt:       time.Now().UTC(),
		},
		Player:        p.Clone(),
		CatalogDigest: l.catalogDigest,
	}
	if err := WriteSnapshot(path, snap); err != nil {
		return err
	}
	if l.onWrite != nil {
		l.onWrite(path)
	}
	return nil
}

// Wallets lists the wallets with a snapshot on disk, sorted.
func (l *FileLedger) Wallets() ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(l.dir, "players"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name, ok := strings.CutSuffix(e.Name(), ".snap.zst")
		if !ok || e.IsDir() {
			continue
		}
		if id, err := url.PathUnescape(name); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}
