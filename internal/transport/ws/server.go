package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"lorebound.gg/internal/protocol"
	"lorebound.gg/internal/session"
)

type Config struct {
	// MaxQueue caps the outbound frame queue a client may ask for in HELLO.
	MaxQueue int
	// ObserverQueue is the outbound queue when the client asks for none.
	ObserverQueue    int
	MaxClientXPGrant int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	// AllowedOrigins restricts browser origins; empty allows all.
	AllowedOrigins []string
}

func (c *Config) normalize() {
	if c.MaxQueue <= 0 {
		c.MaxQueue = 16
	}
	if c.ObserverQueue <= 0 {
		c.ObserverQueue = 8
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
}

type Stats struct {
	Connections   int64  `json:"connections"`
	DroppedFrames uint64 `json:"dropped_frames"`
}

type Server struct {
	mgr *session.Manager
	cfg Config
	log *log.Logger

	upgrader websocket.Upgrader

	conns   atomic.Int64
	dropped atomic.Uint64
}

func NewServer(mgr *session.Manager, cfg Config, logger *log.Logger) *Server {
	cfg.normalize()
	s := &Server{
		mgr: mgr,
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

func (s *Server) Stats() Stats {
	return Stats{Connections: s.conns.Load(), DroppedFrames: s.dropped.Load()}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(o), origin) {
			return true
		}
	}
	return false
}

type client struct {
	wallet string
	store  *session.Store
	out    chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c, ok := s.handshake(ctx, conn)
		if !ok {
			return
		}
		s.conns.Add(1)
		defer s.conns.Add(-1)
		defer s.mgr.Release(c.wallet)

		unsubscribe := c.store.Subscribe(session.ObserverFunc(func(n session.Notification) {
			frame := protocol.FromNotification(n)
			if frame == nil {
				return
			}
			b, err := json.Marshal(frame)
			if err != nil {
				return
			}
			select {
			case c.out <- b:
			default:
				s.dropped.Add(1)
				s.logf("ws wallet=%s outbound queue full; drop seq=%d", c.wallet, n.Seq)
			}
		}))
		defer unsubscribe()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				s.send(ctx, c, s.reject(act.ActID, protocol.ErrProtoBadRequest, "malformed ACT"))
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				s.send(ctx, c, s.reject(act.ActID, protocol.ErrProtoBadRequest, "bad protocol_version"))
				continue
			}
			s.send(ctx, c, s.handleAct(ctx, c, act))
		}
	}
}

func (s *Server) handleAct(ctx context.Context, c *client, act protocol.ActMsg) protocol.AckMsg {
	ev := act.Action
	if ev.Kind == session.EventGrantExperience && s.cfg.MaxClientXPGrant > 0 && ev.Amount > s.cfg.MaxClientXPGrant {
		return s.reject(act.ActID, protocol.ErrBadRequest, fmt.Sprintf("grant_experience amount %d exceeds %d", ev.Amount, s.cfg.MaxClientXPGrant))
	}
	res, err := c.store.Dispatch(ctx, ev)
	if err != nil {
		return s.reject(act.ActID, protocol.CodeFor(err), err.Error())
	}
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          act.ActID,
		Accepted:        true,
		Seq:             res.Seq,
		Result:          &res,
	}
}

func (s *Server) reject(actID, code, msg string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          actID,
		Code:            code,
		Message:         msg,
	}
}

// send queues a frame that must not be dropped.
func (s *Server) send(ctx context.Context, c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	case <-ctx.Done():
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*client, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "malformed HELLO")
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return nil, false
	}
	wallet := strings.TrimSpace(hello.WalletID)
	if wallet == "" {
		closeWith(conn, "missing wallet_id")
		return nil, false
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = s.cfg.ObserverQueue
	}
	if maxQ > s.cfg.MaxQueue {
		maxQ = s.cfg.MaxQueue
	}

	store, openErr := s.mgr.Open(ctx, wallet)
	if openErr != nil && !errors.Is(openErr, session.ErrLedgerUnavailable) {
		s.logf("ws wallet=%s open: %v", wallet, openErr)
		closeWith(conn, "session unavailable")
		return nil, false
	}
	c := &client{wallet: wallet, store: store, out: make(chan []byte, maxQ)}

	view, err := store.Snapshot(ctx)
	if err != nil {
		s.mgr.Release(wallet)
		return nil, false
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       view.SessionID,
		WalletID:        wallet,
		Ephemeral:       view.Ephemeral,
		CatalogDigest:   s.mgr.Catalog().Digest(),
		View:            view,
	}
	if err := s.writeJSON(conn, welcome); err != nil {
		s.mgr.Release(wallet)
		return nil, false
	}
	if openErr != nil {
		warn := protocol.WarningMsg{
			Type:            protocol.TypeWarning,
			ProtocolVersion: protocol.Version,
			Seq:             view.Seq,
			Code:            protocol.ErrLedgerUnavailable,
			Message:         "progress will not be saved this session: " + openErr.Error(),
		}
		if err := s.writeJSON(conn, warn); err != nil {
			s.mgr.Release(wallet)
			return nil, false
		}
	}
	s.logf("ws wallet=%s session=%s connected", wallet, view.SessionID)
	return c, true
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
