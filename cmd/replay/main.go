package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"lorebound.gg/internal/catalog"
	persistlog "lorebound.gg/internal/persistence/log"
	"lorebound.gg/internal/persistence/snapshot"
	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/session"
)

func main() {
	var (
		journalDir = flag.String("journal", "./data/journal", "journal dir containing journal-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "catalog config directory")
		wallet     = flag.String("wallet", "", "only replay this wallet (optional)")
		snapPath   = flag.String("snapshot", "", "player snapshot to compare the replayed player against (optional)")
	)
	flag.Parse()

	cat, err := catalog.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalog:", err)
		os.Exit(1)
	}

	files, err := persistlog.ListFiles(*journalDir, persistlog.JournalPrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *journalDir)
		os.Exit(1)
	}

	r := newReplayer(cat, *wallet)
	for _, path := range files {
		if err := persistlog.ScanJournal(path, r.apply); err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", path, err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: sessions=%d entries=%d skipped=%d catalog=%s\n", len(r.sessions), r.checked, r.skipped, cat.Digest())

	if *snapPath == "" {
		return
	}
	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	p, ok := r.latest(snap.Header.WalletID)
	if !ok {
		fmt.Fprintf(os.Stderr, "wallet %s not in journal\n", snap.Header.WalletID)
		os.Exit(1)
	}
	if progression.Digest(p) != snap.Header.Digest {
		fmt.Fprintf(os.Stderr, "snapshot mismatch wallet=%s replayed=%s snapshot=%s\n", snap.Header.WalletID, progression.Digest(p), snap.Header.Digest)
		os.Exit(1)
	}
	fmt.Printf("snapshot matches wallet=%s level=%d xp=%d\n", snap.Header.WalletID, p.Level, p.XP)
}

type sessionState struct {
	walletID string
	player   progression.Player
	lastSeq  uint64
	order    int
}

// replayer re-applies journal entries per session and checks each digest.
type replayer struct {
	cat    *catalog.Catalog
	engine *progression.Engine
	wallet string

	sessions map[string]*sessionState
	checked  int
	skipped  int
}

func newReplayer(cat *catalog.Catalog, wallet string) *replayer {
	return &replayer{
		cat:      cat,
		engine:   progression.NewEngine(cat),
		wallet:   wallet,
		sessions: map[string]*sessionState{},
	}
}

func (r *replayer) apply(e session.JournalEntry) error {
	if r.wallet != "" && e.WalletID != r.wallet {
		r.skipped++
		return nil
	}
	switch e.Kind {
	case session.JournalInit:
		if e.Player == nil {
			return fmt.Errorf("session %s seq=%d: init without player", e.SessionID, e.Seq)
		}
		if got := progression.Digest(*e.Player); got != e.Digest {
			return fmt.Errorf("session %s seq=%d: init digest mismatch got=%s want=%s", e.SessionID, e.Seq, got, e.Digest)
		}
		r.sessions[e.SessionID] = &sessionState{walletID: e.WalletID, player: *e.Player, lastSeq: e.Seq, order: len(r.sessions)}
	case session.JournalEvent:
		st := r.sessions[e.SessionID]
		if st == nil {
			// The session began in a segment outside this journal.
			r.skipped++
			return nil
		}
		if e.Event == nil {
			return fmt.Errorf("session %s seq=%d: event entry without event", e.SessionID, e.Seq)
		}
		if e.Seq <= st.lastSeq {
			return fmt.Errorf("session %s: seq %d after %d", e.SessionID, e.Seq, st.lastSeq)
		}
		out, _, err := session.Apply(r.engine, r.cat, st.player, *e.Event)
		if err != nil {
			return fmt.Errorf("session %s seq=%d: %w", e.SessionID, e.Seq, err)
		}
		if got := progression.Digest(out.Player); got != e.Digest {
			return fmt.Errorf("session %s seq=%d: digest mismatch got=%s want=%s", e.SessionID, e.Seq, got, e.Digest)
		}
		st.player = out.Player
		st.lastSeq = e.Seq
	default:
		return fmt.Errorf("session %s seq=%d: unknown entry kind %q", e.SessionID, e.Seq, e.Kind)
	}
	r.checked++
	return nil
}

// latest returns the player of walletID's most recently started session.
func (r *replayer) latest(walletID string) (progression.Player, bool) {
	var states []*sessionState
	for _, st := range r.sessions {
		if st.walletID == walletID {
			states = append(states, st)
		}
	}
	if len(states) == 0 {
		return progression.Player{}, false
	}
	sort.Slice(states, func(i, j int) bool { return states[i].order < states[j].order })
	return states[len(states)-1].player, true
}
