package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONGO_DB_NAME", "")
	t.Setenv("BOT_OWNER_IDS", "")
	t.Setenv("AUDIT_RETENTION_DAYS", "")
	t.Setenv("FORWARD_SEND_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MongoDBName != "ads_forwarder" {
		t.Fatalf("unexpected db name: %q", cfg.MongoDBName)
	}
	if cfg.AuditRetentionDays != 30 {
		t.Fatalf("unexpected retention: %d", cfg.AuditRetentionDays)
	}
	if cfg.Forward != DefaultForwardConfig() {
		t.Fatalf("unexpected forward config: %+v", cfg.Forward)
	}
	if cfg.Forward.Mode != SendModeSweep {
		t.Fatalf("expected sweep mode by default, got %q", cfg.Forward.Mode)
	}
}

func TestLoadForwardOverrides(t *testing.T) {
	t.Setenv("FORWARD_TICK_SECONDS", "5")
	t.Setenv("FORWARD_WORKERS", "7")
	t.Setenv("FORWARD_SEND_TIMEOUT_SECONDS", "20")
	t.Setenv("FORWARD_TARGET_DELAY_SECONDS", "0")
	t.Setenv("FORWARD_SEND_MODE", "SINGLE")
	t.Setenv("FORWARD_COOLDOWN_MARGIN_SECONDS", "15")
	t.Setenv("FORWARD_TARGET_CAP", "10")
	t.Setenv("FORWARD_SEND_RATE", "2.5")
	t.Setenv("BOT_OWNER_IDS", "1, 2 ,3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	f := cfg.Forward
	if f.TickInterval != 5*time.Second || f.Workers != 7 || f.SendTimeout != 20*time.Second {
		t.Fatalf("unexpected forward config: %+v", f)
	}
	if f.TargetDelay != 0 || f.CooldownMargin != 15*time.Second || f.TargetCap != 10 {
		t.Fatalf("unexpected forward config: %+v", f)
	}
	if f.Mode != SendModeSingle || f.SendRatePerSec != 2.5 {
		t.Fatalf("unexpected forward config: %+v", f)
	}
	if len(cfg.BotOwnerIDs) != 3 || cfg.BotOwnerIDs[2] != 3 {
		t.Fatalf("unexpected owner ids: %v", cfg.BotOwnerIDs)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{name: "workers zero", env: "FORWARD_WORKERS", value: "0"},
		{name: "workers not a number", env: "FORWARD_WORKERS", value: "three"},
		{name: "tick zero", env: "FORWARD_TICK_SECONDS", value: "0"},
		{name: "unknown mode", env: "FORWARD_SEND_MODE", value: "burst"},
		{name: "retention zero", env: "AUDIT_RETENTION_DAYS", value: "0"},
		{name: "bad owner id", env: "BOT_OWNER_IDS", value: "12,abc"},
		{name: "bad rate", env: "FORWARD_SEND_RATE", value: "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.env, tt.value)
			}
		})
	}
}
