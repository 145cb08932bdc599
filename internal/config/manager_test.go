package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "t", "owner_user_ids": [42]},
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"path": "/tmp/db.sqlite"},
		"generator": {"base_url": "http://localhost:11434", "model": "m"},
		"challenge": {"enabled": true, "weekly_cap": 4, "retry_delay": "1h"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "t" || len(cfg.Telegram.OwnerUserIDs) != 1 {
		t.Fatalf("telegram section mismatch: %+v", cfg.Telegram)
	}
	if !cfg.Challenge.Enabled || cfg.Challenge.WeeklyCap != 4 {
		t.Fatalf("challenge section mismatch: %+v", cfg.Challenge)
	}
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: t
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: ":memory:"
generator:
  base_url: http://localhost:11434
  model: m
challenge:
  enabled: true
  shuffle_chance: 0.3
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Path != ":memory:" {
		t.Fatalf("storage path mismatch: %q", cfg.Storage.Path)
	}
	if cfg.Challenge.ShuffleChance != 0.3 {
		t.Fatalf("shuffle chance mismatch: %v", cfg.Challenge.ShuffleChance)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t", "totken_typo": "x"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("expected unknown field rejection")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}}{"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("expected trailing data rejection")
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatalf("wrong config published")
		}
	case <-time.After(time.Second):
		t.Fatalf("no config published")
	}

	// A slow subscriber gets the newest value, not the oldest.
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatalf("expected newest config after overflow")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after Unsubscribe")
	}
	m.Unsubscribe(ch) // second call is a no-op
}

func TestParseDurationField(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"90s", 90 * time.Second, false},
		{" 2h ", 2 * time.Hour, false},
		{"-1s", 0, true},
		{"nonsense", 0, true},
	}
	for _, c := range cases {
		got, err := ParseDurationField("test.field", c.raw)
		if c.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q): expected error", c.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDurationField(%q): %v", c.raw, err)
		}
		if got != c.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", c.raw, got, c.want)
		}
	}

	if d, err := ParseDurationOrDefault("test.field", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault empty = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("test.field", "3s", time.Minute); err != nil || d != 3*time.Second {
		t.Fatalf("ParseDurationOrDefault set = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("test.field", "bogus", time.Minute); err == nil {
		t.Fatalf("ParseDurationOrDefault must surface parse errors")
	}
}
