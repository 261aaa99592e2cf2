package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Auth.Enabled() {
		t.Fatalf("auth should be disabled by default")
	}
	if !cfg.Export.WithBOM() {
		t.Fatalf("bom should default on")
	}
	if cfg.Auth.TokenTTL() != 24*time.Hour {
		t.Fatalf("unexpected ttl %s", cfg.Auth.TokenTTL())
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("export:\n  header: superset\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Export.Header != HeaderSuperset {
		t.Fatalf("header not applied: %q", cfg.Export.Header)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("base path default lost: %q", cfg.Server.BasePath)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"short secret":   "auth:\n  jwt_secret: short\n",
		"bad header":     "export:\n  header: union\n",
		"bad timezone":   "export:\n  timezone: Mars/Olympus\n",
		"webhook no url": "webhooks:\n  - events: [submission.created]\n",
		"bad base path":  "server:\n  base_path: v0\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load optional missing file: %v", err)
	}
	doc := "auth:\n  jwt_secret: 0123456789abcdef\n  admin_user: root\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Auth.Enabled() || cfg.Auth.AdminUser != "root" {
		t.Fatalf("auth not loaded: %+v", cfg.Auth)
	}
}
