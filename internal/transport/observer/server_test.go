package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/protocol"
	"lorebound.gg/internal/session"
)

func newObserver(t *testing.T) (*httptest.Server, *session.Manager) {
	t.Helper()
	cat, err := catalog.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	mgr := session.NewManager(session.Config{}, cat, ledger.NewMemory(), mint.NewLocal("lorebound://test", nil))
	s := NewServer(mgr, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		mgr.Close()
	})
	return srv, mgr
}

func subscribe(t *testing.T, srv *httptest.Server, wallet string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.WriteJSON(protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, WalletID: wallet}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return base.Type, msg
}

func TestBootstrapListsConnectedWallets(t *testing.T) {
	srv, mgr := newObserver(t)
	if _, err := mgr.Open(context.Background(), "w1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	resp, err := http.Get(srv.URL + "/admin/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b protocol.ObserverBootstrap
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(b.Wallets) != 1 || b.Wallets[0] != "w1" || b.CatalogDigest != mgr.Catalog().Digest() {
		t.Fatalf("bootstrap: %+v", b)
	}
}

func TestWatchFollowsNotifications(t *testing.T) {
	srv, mgr := newObserver(t)
	store, err := mgr.Open(context.Background(), "w2")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn := subscribe(t, srv, "w2")

	typ, msg := readFrame(t, conn)
	if typ != protocol.TypeWelcome {
		t.Fatalf("first frame %s", typ)
	}
	var w protocol.WelcomeMsg
	_ = json.Unmarshal(msg, &w)
	if w.WalletID != "w2" {
		t.Fatalf("welcome wallet=%q", w.WalletID)
	}

	if _, err := store.Dispatch(context.Background(), session.Event{Kind: session.EventGrantExperience, Amount: 30}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for {
		typ, msg = readFrame(t, conn)
		if typ != protocol.TypeState {
			continue
		}
		var st protocol.StateMsg
		_ = json.Unmarshal(msg, &st)
		if st.Player == nil || st.Player.XP != 30 {
			t.Fatalf("state: %+v", st)
		}
		break
	}

	// The watch holds a reference: the player's own release keeps it open.
	mgr.Release("w2")
	if _, ok := mgr.Get("w2"); !ok {
		t.Fatalf("store closed while observed")
	}
}

func TestWatchUnknownWalletIsRefused(t *testing.T) {
	srv, mgr := newObserver(t)
	conn := subscribe(t, srv, "ghost")
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("expected try-again close, got %v", err)
	}
	if len(mgr.Wallets()) != 0 {
		t.Fatalf("observer opened a store: %v", mgr.Wallets())
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.3:1234":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := IsLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
