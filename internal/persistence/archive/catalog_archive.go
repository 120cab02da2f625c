package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lorebound.gg/internal/persistence/snapshot"
)

type CatalogArchiveMeta struct {
	CatalogDigest string `json:"catalog_digest"`
	WalletID      string `json:"wallet_id"`
	Level         int    `json:"level"`
	XP            int    `json:"xp"`
	Snapshot      string `json:"snapshot"`
	CreatedAt     string `json:"created_at"`
}

// ArchiveStaleSnapshot copies a player snapshot saved under a different
// catalog into dataDir/archives/catalog_<digest[:12]>/ before the player is
// loaded under new content. Snapshots without a catalog digest, or saved
// under currentDigest, are left alone, as is a player already archived
// with the same state.
func ArchiveStaleSnapshot(dataDir, snapshotPath string, snap snapshot.SnapshotV1, currentDigest string) (archivedPath string, archived bool, err error) {
	if snap.CatalogDigest == "" || snap.CatalogDigest == currentDigest {
		return "", false, nil
	}
	tag := snap.CatalogDigest
	if len(tag) > 12 {
		tag = tag[:12]
	}
	archiveDir := filepath.Join(dataDir, "archives", fmt.Sprintf("catalog_%s", tag))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if h, err := snapshot.ReadHeader(dst); err == nil && h.Digest == snap.Header.Digest {
		return dst, false, nil
	}
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := CatalogArchiveMeta{
		CatalogDigest: snap.CatalogDigest,
		WalletID:      snap.Header.WalletID,
		Level:         snap.Player.Level,
		XP:            snap.Player.XP,
		Snapshot:      filepath.Base(dst),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(dst+".meta.json", b, 0o644)
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
