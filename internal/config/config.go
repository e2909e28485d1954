package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PublicBaseURL string

	SessionTTL      time.Duration
	SweepInterval   time.Duration
	MaxSessions     int
	SessionStore    string
	SessionBoltPath string

	AssemblyAIKey     string
	DeepgramKey       string
	DeepgramTTSModel  string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	CerebrasKey       string
	CerebrasModelID   string

	StripeSecretKey string
	PaymentCurrency string
	GoogleMapsKey   string

	TwilioAccountSID      string
	TwilioAuthToken       string
	TwilioFromNumber      string
	SupportTransferNumber string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	MetricsNamespace string
}

// Load reads .env and environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded; using process environment")
	}

	cfg := Config{
		HTTPAddress:     envOr("HTTP_ADDRESS", ":8080"),
		PublicBaseURL:   os.Getenv("PUBLIC_BASE_URL"),
		SessionTTL:      durationOr("SESSION_TTL", time.Hour),
		SweepInterval:   durationOr("SWEEP_INTERVAL", time.Hour),
		MaxSessions:     intOr("MAX_SESSIONS", 0),
		SessionStore:    envOr("SESSION_STORE", "memory"),
		SessionBoltPath: envOr("SESSION_BOLT_PATH", "data/sessions.bolt"),

		AssemblyAIKey:     os.Getenv("ASSEMBLYAI_API_KEY"),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramTTSModel:  envOr("DEEPGRAM_TTS_MODEL", "aura-2-thalia-en"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		CerebrasKey:       os.Getenv("CEREBRAS_API_KEY"),
		CerebrasModelID:   envOr("CEREBRAS_MODEL_ID", "gpt-oss-120b"),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		PaymentCurrency: envOr("PAYMENT_CURRENCY", "usd"),
		GoogleMapsKey:   os.Getenv("GOOGLE_MAPS_API_KEY"),

		TwilioAccountSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:      os.Getenv("TWILIO_FROM_NUMBER"),
		SupportTransferNumber: os.Getenv("SUPPORT_TRANSFER_NUMBER"),

		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket: envOr("SUPABASE_BUCKET", "call-transcripts"),

		MetricsNamespace: envOr("METRICS_NAMESPACE", "voiceorder"),
	}

	if cfg.AssemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - media streams will run in speech-gather mode")
	}
	if cfg.DeepgramKey == "" && cfg.ElevenLabsKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY and ELEVENLABS_API_KEY not set - replies will use Twilio <Say>")
	}
	if cfg.ElevenLabsKey != "" && cfg.ElevenLabsVoiceID == "" {
		log.Println("Warning: ELEVENLABS_VOICE_ID not set - ElevenLabs fallback disabled; set a concrete voice ID from your ElevenLabs dashboard")
	}
	if cfg.CerebrasKey == "" {
		log.Println("Warning: CEREBRAS_API_KEY not set - support answers will run in scripted mode")
	}
	if cfg.StripeSecretKey == "" {
		log.Println("Warning: STRIPE_SECRET_KEY not set - payments will run in simulation mode")
	}
	if cfg.GoogleMapsKey == "" {
		log.Println("Warning: GOOGLE_MAPS_API_KEY not set - addresses will run in plausibility mode")
	}
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		log.Println("Warning: TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set - SMS disabled and webhooks unsigned")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		log.Println("Warning: SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - call archive disabled")
	}

	log.Printf("config: HTTP_ADDRESS=%s SESSION_STORE=%s SESSION_TTL=%s", cfg.HTTPAddress, cfg.SessionStore, cfg.SessionTTL)
	return cfg
}

// TwilioEnabled reports whether Twilio REST credentials are present.
func (c Config) TwilioEnabled() bool { return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" }

// ArchiveEnabled reports whether Supabase Storage is configured.
func (c Config) ArchiveEnabled() bool { return c.SupabaseURL != "" && c.SupabaseKey != "" }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Warning: %s=%q is not a positive duration, using %s", key, v, def)
		return def
	}
	return d
}

func intOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("Warning: %s=%q is not a non-negative integer, using %d", key, v, def)
		return def
	}
	return n
}
