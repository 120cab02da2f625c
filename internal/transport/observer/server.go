// Package observer serves a loopback-only, read-only feed of a connected
// wallet's notifications for operators.
package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"lorebound.gg/internal/protocol"
	"lorebound.gg/internal/session"
)

type Server struct {
	mgr *session.Manager
	log *log.Logger

	upgrader websocket.Upgrader
	watchers atomic.Int64
}

func NewServer(mgr *session.Manager, logger *log.Logger) *Server {
	return &Server{
		mgr: mgr,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

func (s *Server) Watchers() int64 { return s.watchers.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := protocol.ObserverBootstrap{
			ProtocolVersion: protocol.Version,
			CatalogDigest:   s.mgr.Catalog().Digest(),
			Wallets:         s.mgr.Wallets(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// watch is the wallet an observer connection currently follows.
type watch struct {
	wallet string
	unsub  func()
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		out := make(chan []byte, 256)
		cur, ok := s.attach(r.Context(), sub.WalletID, out)
		if !ok {
			closeWith(conn, websocket.CloseTryAgainLater, "wallet not connected")
			return
		}
		s.watchers.Add(1)
		defer s.watchers.Add(-1)
		defer func() { s.detach(cur) }()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: SUBSCRIBE again to switch wallets.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := decodeSubscribe(msg)
			if !ok || sub.WalletID == cur.wallet {
				continue
			}
			next, ok := s.attach(r.Context(), sub.WalletID, out)
			if !ok {
				// Keep following the current wallet.
				continue
			}
			s.detach(cur)
			cur = next
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// attach follows an already connected wallet: it queues a WELCOME frame
// carrying the current view, then every later notification. Observers
// never open stores themselves, so watching cannot create a player.
func (s *Server) attach(ctx context.Context, wallet string, out chan []byte) (watch, bool) {
	store, ok := s.mgr.Acquire(wallet)
	if !ok {
		return watch{}, false
	}
	unsub := store.Subscribe(session.ObserverFunc(func(n session.Notification) {
		frame := protocol.FromNotification(n)
		if frame == nil {
			return
		}
		b, err := json.Marshal(frame)
		if err != nil {
			return
		}
		select {
		case out <- b:
		default:
			// Drop under load; the next STATE carries the full player.
		}
	}))
	view, err := store.Snapshot(ctx)
	if err != nil {
		unsub()
		s.mgr.Release(wallet)
		return watch{}, false
	}
	b, err := json.Marshal(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       view.SessionID,
		WalletID:        wallet,
		Ephemeral:       view.Ephemeral,
		CatalogDigest:   s.mgr.Catalog().Digest(),
		View:            view,
	})
	if err == nil {
		select {
		case out <- b:
		default:
		}
	}
	if s.log != nil {
		s.log.Printf("observer: watching wallet=%s", wallet)
	}
	return watch{wallet: wallet, unsub: unsub}, true
}

func (s *Server) detach(w watch) {
	if w.unsub == nil {
		return
	}
	w.unsub()
	s.mgr.Release(w.wallet)
}

func decodeSubscribe(msg []byte) (protocol.SubscribeMsg, bool) {
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	sub.WalletID = strings.TrimSpace(sub.WalletID)
	if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version || sub.WalletID == "" {
		return sub, false
	}
	return sub, true
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
