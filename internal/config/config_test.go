package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldline/internal/config"
)

func TestDefaultCadences(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Polling.Home != 30*time.Second || cfg.Polling.Heartbeat != 30*time.Second || cfg.Polling.Roster != 30*time.Second {
		t.Fatalf("unexpected 30s cadences: %+v", cfg.Polling)
	}
	if cfg.Polling.PrivateChat != 3*time.Second || cfg.Polling.ChannelChat != 5*time.Second {
		t.Fatalf("unexpected chat cadences: %+v", cfg.Polling)
	}
	if cfg.Gate.SettleDelay != 150*time.Millisecond {
		t.Fatalf("settle delay %s", cfg.Gate.SettleDelay)
	}
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := config.FromYAML([]byte("backend:\n  base_url: https://ops.example.org\npolling:\n  home: 10s\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Backend.BaseURL != "https://ops.example.org" {
		t.Fatalf("base url %q", cfg.Backend.BaseURL)
	}
	if cfg.Polling.Home != 10*time.Second {
		t.Fatalf("home %s", cfg.Polling.Home)
	}
	if cfg.Polling.Roster != 30*time.Second {
		t.Fatalf("roster default lost: %s", cfg.Polling.Roster)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"relative url":  "backend:\n  base_url: /api\n",
		"zero interval": "polling:\n  private_chat: 0s\n",
		"negative gate": "gate:\n  settle_delay: -1s\n",
	}
	for name, doc := range cases {
		if _, err := config.FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load optional: %v", err)
	}
	if _, err := config.Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	if err := os.WriteFile(filepath.Join(dir, "fieldline.yml"), []byte(config.GenerateDefault("http://10.0.0.2:5000")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://10.0.0.2:5000" {
		t.Fatalf("base url %q", cfg.Backend.BaseURL)
	}
}
