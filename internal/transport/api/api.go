// Package api serves the catalog and per-wallet progression over plain
// JSON HTTP, for clients that do not hold a websocket session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/protocol"
	"lorebound.gg/internal/session"
)

const maxBodyBytes = 64 * 1024

type Config struct {
	MaxClientXPGrant int
	RequestTimeout   time.Duration
}

type Server struct {
	mgr *session.Manager
	cfg Config
	log *log.Logger
}

func NewServer(mgr *session.Manager, cfg Config, logger *log.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Server{mgr: mgr, cfg: cfg, log: logger}
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	mux.HandleFunc("GET /v1/zones", s.handleZones)
	mux.HandleFunc("GET /v1/quests", s.handleQuests)
	mux.HandleFunc("GET /v1/traits", s.handleTraits)
	mux.HandleFunc("GET /v1/achievements", s.handleAchievements)
	mux.HandleFunc("GET /v1/players/{wallet}", s.handlePlayer)
	mux.HandleFunc("POST /v1/players/{wallet}/actions", s.handleAction)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type catalogInfo struct {
	Digest       string            `json:"digest"`
	StartZoneID  string            `json:"start_zone_id"`
	Files        map[string]string `json:"files"`
	Zones        int               `json:"zones"`
	Quests       int               `json:"quests"`
	Traits       int               `json:"traits"`
	Achievements int               `json:"achievements"`
}

func (s *Server) handleCatalog(rw http.ResponseWriter, r *http.Request) {
	c := s.mgr.Catalog()
	writeJSON(rw, http.StatusOK, catalogInfo{
		Digest:       c.Digest(),
		StartZoneID:  c.StartZone(),
		Files:        c.Digests,
		Zones:        len(c.Zones),
		Quests:       len(c.Quests),
		Traits:       len(c.Traits),
		Achievements: len(c.Achievements),
	})
}

func (s *Server) handleZones(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string][]catalog.Zone{"zones": s.mgr.Catalog().Zones})
}

// handleQuests lists every quest, or a single zone's quests with ?zone=.
func (s *Server) handleQuests(rw http.ResponseWriter, r *http.Request) {
	c := s.mgr.Catalog()
	zoneID := strings.TrimSpace(r.URL.Query().Get("zone"))
	if zoneID == "" {
		writeJSON(rw, http.StatusOK, map[string][]catalog.Quest{"quests": c.Quests})
		return
	}
	if _, ok := c.Zone(zoneID); !ok {
		writeError(rw, http.StatusNotFound, protocol.ErrBadRequest, "unknown zone "+zoneID)
		return
	}
	out := []catalog.Quest{}
	for _, q := range c.Quests {
		if q.ZoneID == zoneID {
			out = append(out, q)
		}
	}
	writeJSON(rw, http.StatusOK, map[string][]catalog.Quest{"quests": out})
}

func (s *Server) handleTraits(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string][]catalog.Trait{"traits": s.mgr.Catalog().Traits})
}

func (s *Server) handleAchievements(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string][]catalog.Achievement{"achievements": s.mgr.Catalog().Achievements})
}

func (s *Server) handlePlayer(rw http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.PathValue("wallet"))
	if wallet == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "missing wallet")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	store, err := s.mgr.Open(ctx, wallet)
	if err != nil && !errors.Is(err, session.ErrLedgerUnavailable) {
		s.fail(rw, err)
		return
	}
	defer s.mgr.Release(wallet)

	view, err := store.Snapshot(ctx)
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, view)
}

type actionResponse struct {
	Accepted bool            `json:"accepted"`
	Result   *session.Result `json:"result,omitempty"`
}

func (s *Server) handleAction(rw http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.PathValue("wallet"))
	if wallet == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "missing wallet")
		return
	}

	var ev session.Event
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "malformed action: "+err.Error())
		return
	}
	if err := ev.Validate(); err != nil {
		s.fail(rw, err)
		return
	}
	if ev.Kind == session.EventGrantExperience && s.cfg.MaxClientXPGrant > 0 && ev.Amount > s.cfg.MaxClientXPGrant {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, fmt.Sprintf("grant_experience amount %d exceeds %d", ev.Amount, s.cfg.MaxClientXPGrant))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	store, err := s.mgr.Open(ctx, wallet)
	if err != nil && !errors.Is(err, session.ErrLedgerUnavailable) {
		s.fail(rw, err)
		return
	}
	defer s.mgr.Release(wallet)

	res, err := store.Dispatch(ctx, ev)
	if err != nil {
		s.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, actionResponse{Accepted: true, Result: &res})
}

func (s *Server) fail(rw http.ResponseWriter, err error) {
	code := protocol.CodeFor(err)
	status := statusFor(code)
	if status >= 500 && s.log != nil {
		s.log.Printf("api: %v", err)
	}
	writeError(rw, status, code, err.Error())
}

func statusFor(code string) int {
	switch code {
	case protocol.ErrBadRequest, protocol.ErrProtoBadRequest, protocol.ErrNegativeExperience:
		return http.StatusBadRequest
	case protocol.ErrInvalidQuestState, protocol.ErrInvalidZoneState, protocol.ErrNotInitialized:
		return http.StatusConflict
	case protocol.ErrRateLimit:
		return http.StatusTooManyRequests
	case protocol.ErrLedgerUnavailable, protocol.ErrMintFailure:
		return http.StatusServiceUnavailable
	case protocol.ErrTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, errorBody{Code: code, Message: msg})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
