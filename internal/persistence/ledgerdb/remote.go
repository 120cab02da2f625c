package ledgerdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/session"
)

type RemoteConfig struct {
	Endpoint      string
	Token         string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

// Remote talks to a hosted ledger service:
//
//	GET  {endpoint}/players/{wallet}   200 player json | 404
//	PUT  {endpoint}/players/{wallet}   player json
//	POST {endpoint}/mints              receipt json
//	POST {endpoint}/journal            {"entries":[...]} batched
type Remote struct {
	cfg        RemoteConfig
	httpClient *http.Client

	mu    sync.Mutex
	saved map[string]string // wallet -> digest last acknowledged

	ch     chan session.JournalEntry
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

func OpenRemote(cfg RemoteConfig) (*Remote, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ledger endpoint")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	r := &Remote{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		saved:      map[string]string{},
		ch:         make(chan session.JournalEntry, 8192),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()
	return r, nil
}

func (r *Remote) Close() error {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		r.wg.Wait()
	})
	return nil
}

func (r *Remote) playerURL(walletID string) string {
	return r.cfg.Endpoint + "/players/" + url.PathEscape(walletID)
}

func (r *Remote) Load(ctx context.Context, walletID string) (progression.Player, error) {
	var p progression.Player
	status, body, err := r.do(ctx, http.MethodGet, r.playerURL(walletID), nil)
	if err != nil {
		return p, err
	}
	if status == http.StatusNotFound {
		return p, ledger.ErrNotFound
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("player %s: %w", walletID, err)
	}
	r.remember(walletID, progression.Digest(p))
	return p, nil
}

// Save skips the request when p matches what the service last acknowledged.
func (r *Remote) Save(ctx context.Context, walletID string, p progression.Player) error {
	digest := progression.Digest(p)
	r.mu.Lock()
	same := r.saved[walletID] == digest
	r.mu.Unlock()
	if same {
		return nil
	}
	buf, err := json.Marshal(p.Clone())
	if err != nil {
		return err
	}
	if _, _, err := r.do(ctx, http.MethodPut, r.playerURL(walletID), buf); err != nil {
		return err
	}
	r.remember(walletID, digest)
	return nil
}

func (r *Remote) RecordMint(ctx context.Context, rc mint.Receipt) error {
	buf, err := json.Marshal(rc)
	if err != nil {
		return err
	}
	_, _, err = r.do(ctx, http.MethodPost, r.cfg.Endpoint+"/mints", buf)
	return err
}

func (r *Remote) WriteEntry(e session.JournalEntry) error {
	if r.closed.Load() {
		return nil
	}
	select {
	case r.ch <- e:
	default:
		r.printf("ledger journal queue full; drop wallet=%s seq=%d", e.WalletID, e.Seq)
	}
	return nil
}

func (r *Remote) remember(walletID, digest string) {
	r.mu.Lock()
	r.saved[walletID] = digest
	r.mu.Unlock()
}

// do retries transport errors and 5xx responses up to three times. A 404
// is returned to the caller as a status, not an error.
func (r *Remote) do(ctx context.Context, method, u string, body []byte) (int, []byte, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
			}
		}
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return 0, nil, err
		}
		if body != nil {
			req.Header.Set("content-type", "application/json")
		}
		if r.cfg.Token != "" {
			req.Header.Set("authorization", "Bearer "+r.cfg.Token)
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp.StatusCode, respBody, nil
		case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
			return resp.StatusCode, nil, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s %s: status=%d body=%s", method, u, resp.StatusCode, strings.TrimSpace(string(respBody)))
			continue
		default:
			return resp.StatusCode, nil, fmt.Errorf("%s %s: status=%d body=%s", method, u, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
	}
	return 0, nil, lastErr
}

func (r *Remote) loop() {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]session.JournalEntry, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.sendBatch(batch); err != nil {
			r.printf("ledger journal flush failed batch=%d err=%v", len(batch), err)
		}
		batch = batch[:0]
	}
	for {
		select {
		case e, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *Remote) sendBatch(entries []session.JournalEntry) error {
	buf, err := json.Marshal(struct {
		Entries []session.JournalEntry `json:"entries"`
	}{Entries: entries})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*r.cfg.HTTPTimeout)
	defer cancel()
	_, _, err = r.do(ctx, http.MethodPost, r.cfg.Endpoint+"/journal", buf)
	return err
}

func (r *Remote) printf(format string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}
