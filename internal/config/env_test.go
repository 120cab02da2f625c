package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	e, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Ledger != "sqlite" || e.Mint != "local" || e.R2.UploadWorkers != 2 || e.Production() {
		t.Fatalf("env=%+v", e)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LB_LEDGER", "Remote")
	t.Setenv("LB_LEDGER_ENDPOINT", "https://ledger.test")
	t.Setenv("LB_ALLOWED_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("DEPLOY_ENV", "production")
	e, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Ledger != "remote" || e.LedgerEndpoint != "https://ledger.test" || !e.Production() {
		t.Fatalf("env=%+v", e)
	}
	if len(e.AllowedOrigins) != 2 || e.AllowedOrigins[1] != "https://b.test" {
		t.Fatalf("origins=%v", e.AllowedOrigins)
	}
}

func TestLoad_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "LB_MINT=bucket\nLB_R2_ENDPOINT=https://r2.test\nLB_R2_BUCKET=b\nLB_R2_ACCESS_KEY_ID=k\nLB_R2_SECRET_ACCESS_KEY=s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, k := range []string{"LB_MINT", "LB_R2_ENDPOINT", "LB_R2_BUCKET", "LB_R2_ACCESS_KEY_ID", "LB_R2_SECRET_ACCESS_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	e, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Mint != "bucket" || !e.R2.Configured() {
		t.Fatalf("env=%+v", e)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown ledger": {"LB_LEDGER": "postgres"},
		"remote w/o url": {"LB_LEDGER": "remote"},
		"bucket w/o r2":  {"LB_MINT": "bucket"},
		"mirror w/o r2":  {"LB_R2_MIRROR": "true"},
		"unknown mint":   {"LB_MINT": "chain"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
