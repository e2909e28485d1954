package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDRESS", "SESSION_TTL", "MAX_SESSIONS", "SESSION_STORE", "CEREBRAS_MODEL_ID", "PAYMENT_CURRENCY", "SUPABASE_BUCKET"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.SessionTTL != time.Hour || cfg.MaxSessions != 0 || cfg.SessionStore != "memory" {
		t.Fatalf("unexpected session defaults: %s %d %s", cfg.SessionTTL, cfg.MaxSessions, cfg.SessionStore)
	}
	if cfg.CerebrasModelID != "gpt-oss-120b" || cfg.PaymentCurrency != "usd" || cfg.SupabaseBucket != "call-transcripts" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9090")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("MAX_SESSIONS", "25")
	t.Setenv("SESSION_STORE", "bolt")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	cfg := Load()
	if cfg.HTTPAddress != ":9090" || cfg.SessionTTL != 15*time.Minute || cfg.MaxSessions != 25 || cfg.SessionStore != "bolt" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if !cfg.TwilioEnabled() {
		t.Fatalf("expected twilio enabled")
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("MAX_SESSIONS", "-3")
	cfg := Load()
	if cfg.SessionTTL != time.Hour || cfg.MaxSessions != 0 {
		t.Fatalf("expected defaults for bad values, got %s %d", cfg.SessionTTL, cfg.MaxSessions)
	}
}
