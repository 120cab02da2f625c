package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"lorebound.gg/internal/persistence/ledgerdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite ledger path (default: <data>/ledger/ledger.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "players"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	wallet := ""
	if fs.NArg() > 1 {
		wallet = strings.TrimSpace(fs.Arg(1))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "ledger", "ledger.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "ledger db:", err)
		os.Exit(1)
	}
	if *limit <= 0 {
		*limit = 20
	}
	ctx := context.Background()

	switch q {
	case "players":
		db := openLedger(path)
		defer db.Close()
		rows, err := db.Players(ctx, *limit)
		exitOn("query", err)
		for _, r := range rows {
			printJSON(r)
		}
	case "player":
		requireWallet(wallet, q)
		db := openLedger(path)
		defer db.Close()
		p, err := db.Load(ctx, wallet)
		exitOn("load", err)
		printJSON(p)
	case "mints":
		requireWallet(wallet, q)
		db := openLedger(path)
		defer db.Close()
		rs, err := db.Mints(ctx, wallet)
		exitOn("query", err)
		for _, r := range rs {
			printJSON(r)
		}
	case "journal":
		requireWallet(wallet, q)
		raw := openRaw(path)
		defer raw.Close()
		rows, err := raw.QueryContext(ctx,
			`SELECT session_id,seq,kind,COALESCE(event_type,''),digest,at FROM journal WHERE wallet_id = ? ORDER BY at DESC, seq DESC LIMIT ?`, wallet, *limit)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				SessionID string `json:"session_id"`
				Seq       int64  `json:"seq"`
				Kind      string `json:"kind"`
				EventType string `json:"event_type,omitempty"`
				Digest    string `json:"digest"`
				At        string `json:"at"`
			}
			exitOn("scan", rows.Scan(&r.SessionID, &r.Seq, &r.Kind, &r.EventType, &r.Digest, &r.At))
			printJSON(r)
		}
		exitOn("rows", rows.Err())
	case "catalogs":
		raw := openRaw(path)
		defer raw.Close()
		rows, err := raw.QueryContext(ctx, `SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		exitOn("query", err)
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			exitOn("scan", rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt))
			printJSON(r)
		}
		exitOn("rows", rows.Err())
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want players, player <wallet>, mints <wallet>, journal <wallet>, catalogs)")
		os.Exit(2)
	}
}

func openLedger(path string) *ledgerdb.SQLiteLedger {
	db, err := ledgerdb.OpenSQLite(path)
	exitOn("open", err)
	return db
}

// openRaw opens the ledger read-only for queries ledgerdb does not expose.
func openRaw(path string) *sql.DB {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	exitOn("open", err)
	return db
}

func requireWallet(wallet, q string) {
	if wallet == "" {
		fmt.Fprintf(os.Stderr, "usage: admin db %s <wallet>\n", q)
		os.Exit(2)
	}
}

func exitOn(what string, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, what+":", err)
		os.Exit(1)
	}
}
