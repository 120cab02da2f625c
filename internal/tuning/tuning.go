package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Session Session `yaml:"session" json:"session"`
	Server  Server  `yaml:"server" json:"server"`
	Journal Journal `yaml:"journal" json:"journal"`
}

type Session struct {
	LedgerTimeoutMs  int `yaml:"ledger_timeout_ms" json:"ledger_timeout_ms"`
	PersistTimeoutMs int `yaml:"persist_timeout_ms" json:"persist_timeout_ms"`
	MintTimeoutMs    int `yaml:"mint_timeout_ms" json:"mint_timeout_ms"`
	PersistQueue     int `yaml:"persist_queue" json:"persist_queue"`
	MaxObserverQueue int `yaml:"max_observer_queue" json:"max_observer_queue"`
}

type Server struct {
	// MaxClientXPGrant caps grant_experience actions sent by clients.
	MaxClientXPGrant int `yaml:"max_client_xp_grant" json:"max_client_xp_grant"`
	MaxQueue         int `yaml:"max_queue" json:"max_queue"`
	ReadTimeoutS     int `yaml:"read_timeout_s" json:"read_timeout_s"`
	WriteTimeoutS    int `yaml:"write_timeout_s" json:"write_timeout_s"`
}

type Journal struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

func Defaults() Tuning {
	return Tuning{
		Session: Session{
			LedgerTimeoutMs:  3000,
			PersistTimeoutMs: 5000,
			MintTimeoutMs:    15000,
			PersistQueue:     64,
			MaxObserverQueue: 32,
		},
		Server: Server{
			MaxClientXPGrant: 500,
			MaxQueue:         16,
			ReadTimeoutS:     60,
			WriteTimeoutS:    5,
		},
		Journal: Journal{Enabled: true},
	}
}

// Load reads path over Defaults, so keys missing from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	checks := []struct {
		name string
		v    int
	}{
		{"session.ledger_timeout_ms", t.Session.LedgerTimeoutMs},
		{"session.persist_timeout_ms", t.Session.PersistTimeoutMs},
		{"session.mint_timeout_ms", t.Session.MintTimeoutMs},
		{"session.persist_queue", t.Session.PersistQueue},
		{"session.max_observer_queue", t.Session.MaxObserverQueue},
		{"server.max_queue", t.Server.MaxQueue},
		{"server.read_timeout_s", t.Server.ReadTimeoutS},
		{"server.write_timeout_s", t.Server.WriteTimeoutS},
	}
	for _, c := range checks {
		if c.v <= 0 {
			return fmt.Errorf("%s must be > 0, got %d", c.name, c.v)
		}
	}
	if t.Server.MaxClientXPGrant < 0 {
		return fmt.Errorf("server.max_client_xp_grant must be >= 0, got %d", t.Server.MaxClientXPGrant)
	}
	return nil
}

func (s Session) LedgerTimeout() time.Duration {
	return time.Duration(s.LedgerTimeoutMs) * time.Millisecond
}

func (s Session) PersistTimeout() time.Duration {
	return time.Duration(s.PersistTimeoutMs) * time.Millisecond
}

func (s Session) MintTimeout() time.Duration {
	return time.Duration(s.MintTimeoutMs) * time.Millisecond
}

func (s Server) ReadTimeout() time.Duration  { return time.Duration(s.ReadTimeoutS) * time.Second }
func (s Server) WriteTimeout() time.Duration { return time.Duration(s.WriteTimeoutS) * time.Second }
