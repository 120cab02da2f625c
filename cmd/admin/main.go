package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lorebound.gg/internal/persistence/archive"
	"lorebound.gg/internal/persistence/ledgerdb"
	"lorebound.gg/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "archives":
			archivesCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "flush":
			flushCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the wallets that have a player snapshot under -data.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	wallets, err := snapshot.NewFileLedger(*dataDir, "").Wallets()
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, w := range wallets {
		fmt.Println(w)
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	full := fs.Bool("full", false, "print the whole player, not just the header")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin inspect [-full] <path.snap.zst>")
		os.Exit(2)
	}
	path := fs.Arg(0)
	if !*full {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(snap)
}

func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	metas, err := readArchiveMetas(filepath.Join(*dataDir, "archives"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read archives:", err)
		os.Exit(1)
	}
	for _, m := range metas {
		fmt.Printf("%s wallet=%s level=%d xp=%d catalog=%s at=%s\n", m.Snapshot, m.WalletID, m.Level, m.XP, m.CatalogDigest, m.CreatedAt)
	}
}

func readArchiveMetas(dir string) ([]archive.CatalogArchiveMeta, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "catalog_*", "*.meta.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]archive.CatalogArchiveMeta, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var m archive.CatalogArchiveMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// importCmd copies every file-ledger player into the sqlite ledger.
func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory holding players/*.snap.zst")
	dbPath := fs.String("db", "", "sqlite ledger path (default: <data>/ledger/ledger.sqlite)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "ledger", "ledger.sqlite")
	}
	db, err := ledgerdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	n, err := importSnapshots(context.Background(), snapshot.NewFileLedger(*dataDir, ""), db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d players into %s\n", n, path)
}

func importSnapshots(ctx context.Context, src *snapshot.FileLedger, dst *ledgerdb.SQLiteLedger) (int, error) {
	wallets, err := src.Wallets()
	if err != nil {
		return 0, err
	}
	for i, w := range wallets {
		p, err := src.Load(ctx, w)
		if err != nil {
			return i, fmt.Errorf("load %s: %w", w, err)
		}
		if err := dst.Save(ctx, w, p); err != nil {
			return i, fmt.Errorf("save %s: %w", w, err)
		}
	}
	return len(wallets), nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
