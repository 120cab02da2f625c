package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/config"
	"lorebound.gg/internal/session"
	"lorebound.gg/internal/transport/api"
	"lorebound.gg/internal/transport/observer"
	"lorebound.gg/internal/transport/ws"
	"lorebound.gg/internal/tuning"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "catalog config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dotenvPath  = flag.String("env_file", ".env", "dotenv file to load before reading the environment (missing is fine)")
		enablePprof = flag.Bool("pprof", false, "serve /debug/pprof/ on the main listener")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	env, err := config.Load(*dotenvPath)
	if err != nil {
		logger.Fatalf("load env: %v", err)
	}

	cat, err := catalog.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}
	logger.Printf("catalog digest=%s zones=%d quests=%d traits=%d achievements=%d",
		cat.Digest(), len(cat.Zones), len(cat.Quests), len(cat.Traits), len(cat.Achievements))

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	r2Mirror, err := buildR2MirrorRuntime(env.R2, *dataDir, tune.Session.PersistQueue, logger)
	if err != nil {
		logger.Fatalf("init r2 mirror: %v", err)
	}

	be, err := openBackends(env, *dataDir, cat, tune, r2Mirror, logger)
	if err != nil {
		logger.Fatalf("open backends: %v", err)
	}
	logger.Printf("ledger=%s mint=%s journal=%v", env.Ledger, env.Mint, be.journal != nil)

	mgr := session.NewManager(session.Config{
		LedgerTimeout:  tune.Session.LedgerTimeout(),
		PersistTimeout: tune.Session.PersistTimeout(),
		MintTimeout:    tune.Session.MintTimeout(),
		Logger:         logger,
	}, cat, be.ledger, be.minter)
	if be.journal != nil {
		mgr.SetJournal(be.journal)
	}

	ctx, cancel := signalContext()
	defer cancel()

	wsSrv := ws.NewServer(mgr, ws.Config{
		MaxQueue:         tune.Server.MaxQueue,
		ObserverQueue:    tune.Session.MaxObserverQueue,
		MaxClientXPGrant: tune.Server.MaxClientXPGrant,
		ReadTimeout:      tune.Server.ReadTimeout(),
		WriteTimeout:     tune.Server.WriteTimeout(),
		AllowedOrigins:   env.AllowedOrigins,
	}, logger)
	apiSrv := api.NewServer(mgr, api.Config{
		MaxClientXPGrant: tune.Server.MaxClientXPGrant,
		RequestTimeout:   tune.Session.LedgerTimeout() + tune.Session.PersistTimeout(),
	}, logger)

	mux := http.NewServeMux()
	apiSrv.Register(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("GET /metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, mgr, wsSrv, be, r2Mirror)
	})

	enableAdminHTTP := env.EnableAdminHTTP || !env.Production()
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("GET /admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !observer.IsLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				CatalogDigest string   `json:"catalog_digest"`
				Ledger        string   `json:"ledger"`
				Mint          string   `json:"mint"`
				Wallets       []string `json:"wallets"`
				WS            ws.Stats `json:"ws"`
			}{
				CatalogDigest: cat.Digest(),
				Ledger:        env.Ledger,
				Mint:          env.Mint,
				Wallets:       mgr.Wallets(),
				WS:            wsSrv.Stats(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("POST /admin/v1/flush/{wallet}", func(rw http.ResponseWriter, r *http.Request) {
			if !observer.IsLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			store, ok := mgr.Acquire(r.PathValue("wallet"))
			if !ok {
				http.Error(rw, "wallet not connected", http.StatusNotFound)
				return
			}
			defer mgr.Release(r.PathValue("wallet"))
			ctx2, cancel2 := context.WithTimeout(r.Context(), tune.Session.PersistTimeout())
			defer cancel2()
			rw.Header().Set("Content-Type", "application/json")
			if err := store.Flush(ctx2); err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
		})

		obsSrv := observer.NewServer(mgr, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (LB_ENABLE_ADMIN_HTTP=false)")
	}
	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}

	// Stores flush their pending saves on close; backends close after them.
	mgr.Close()
	be.Close()
	r2Mirror.Close()
	logger.Printf("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func writeMetrics(rw http.ResponseWriter, mgr *session.Manager, wsSrv *ws.Server, be *backends, mirror *r2MirrorRuntime) {
	// Minimal Prometheus exposition format.
	st := wsSrv.Stats()
	fmt.Fprintf(rw, "# HELP lorebound_sessions Open wallet sessions.\n")
	fmt.Fprintf(rw, "# TYPE lorebound_sessions gauge\n")
	fmt.Fprintf(rw, "lorebound_sessions %d\n", len(mgr.Wallets()))

	fmt.Fprintf(rw, "# HELP lorebound_ws_connections Connected websocket clients.\n")
	fmt.Fprintf(rw, "# TYPE lorebound_ws_connections gauge\n")
	fmt.Fprintf(rw, "lorebound_ws_connections %d\n", st.Connections)

	fmt.Fprintf(rw, "# HELP lorebound_ws_dropped_frames_total Notification frames dropped on full client queues.\n")
	fmt.Fprintf(rw, "# TYPE lorebound_ws_dropped_frames_total counter\n")
	fmt.Fprintf(rw, "lorebound_ws_dropped_frames_total %d\n", st.DroppedFrames)

	if be.sqlite != nil {
		is := be.sqlite.Stats()
		fmt.Fprintf(rw, "# HELP lorebound_journal_index_queue_depth Journal index queue depth.\n")
		fmt.Fprintf(rw, "# TYPE lorebound_journal_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "lorebound_journal_index_queue_depth %d\n", is.QueueDepth)
		fmt.Fprintf(rw, "# HELP lorebound_journal_index_dropped_total Journal entries dropped by the index.\n")
		fmt.Fprintf(rw, "# TYPE lorebound_journal_index_dropped_total counter\n")
		fmt.Fprintf(rw, "lorebound_journal_index_dropped_total %d\n", is.DropJournalTotal)
	}

	if ms, ok := mirror.Stats(); ok {
		fmt.Fprintf(rw, "# HELP lorebound_r2_mirror_queue_depth Current R2 mirror queue depth.\n")
		fmt.Fprintf(rw, "# TYPE lorebound_r2_mirror_queue_depth gauge\n")
		fmt.Fprintf(rw, "lorebound_r2_mirror_queue_depth %d\n", ms.Queued)
		fmt.Fprintf(rw, "# HELP lorebound_r2_mirror_dropped_total Mirror files dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE lorebound_r2_mirror_dropped_total counter\n")
		fmt.Fprintf(rw, "lorebound_r2_mirror_dropped_total %d\n", ms.Dropped)
		fmt.Fprintf(rw, "# HELP lorebound_r2_mirror_upload_success_total Successful mirror uploads.\n")
		fmt.Fprintf(rw, "# TYPE lorebound_r2_mirror_upload_success_total counter\n")
		fmt.Fprintf(rw, "lorebound_r2_mirror_upload_success_total %d\n", ms.Uploaded)
		fmt.Fprintf(rw, "# HELP lorebound_r2_mirror_upload_fail_total Failed mirror uploads after retry.\n")
		fmt.Fprintf(rw, "# TYPE lorebound_r2_mirror_upload_fail_total counter\n")
		fmt.Fprintf(rw, "lorebound_r2_mirror_upload_fail_total %d\n", ms.Failed)
	}
}
