package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Configs(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Session.LedgerTimeout() != 3*time.Second || tu.Session.MintTimeout() != 15*time.Second {
		t.Fatalf("session=%+v", tu.Session)
	}
	if tu.Server.MaxClientXPGrant != 500 || !tu.Journal.Enabled {
		t.Fatalf("tuning=%+v", tu)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("server:\n  max_queue: 4\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Server.MaxQueue != 4 {
		t.Fatalf("max_queue=%d", tu.Server.MaxQueue)
	}
	if tu.Session.PersistTimeoutMs != Defaults().Session.PersistTimeoutMs {
		t.Fatalf("default lost: %+v", tu.Session)
	}
}

func TestLoad_RejectsNonPositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("session:\n  mint_timeout_ms: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error")
	}
}
