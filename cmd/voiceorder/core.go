package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/chadiek/voice-order/internal/agent"
	"github.com/chadiek/voice-order/internal/archive"
	"github.com/chadiek/voice-order/internal/barge"
	"github.com/chadiek/voice-order/internal/config"
	"github.com/chadiek/voice-order/internal/geocode"
	"github.com/chadiek/voice-order/internal/llm"
	"github.com/chadiek/voice-order/internal/metrics"
	"github.com/chadiek/voice-order/internal/notify"
	"github.com/chadiek/voice-order/internal/orchestrator"
	"github.com/chadiek/voice-order/internal/payment"
	"github.com/chadiek/voice-order/internal/session"
	"github.com/chadiek/voice-order/internal/tools"
	"github.com/chadiek/voice-order/internal/transcript"
	"github.com/chadiek/voice-order/internal/tts"
)

// core is the turn-processing stack shared by serve and simulate.
type core struct {
	store   session.Store
	metrics *metrics.Metrics
	barge   *barge.Handler
	speaker tts.Streamer
	orch    *orchestrator.Orchestrator
}

type coreOptions struct {
	// offline keeps every collaborator local: simulated payments, plausibility
	// address checks, no SMS, no archive, no audio.
	offline bool
	// llm enables the Cerebras responder even when offline.
	llm bool
}

func openStore(cfg config.Config) (session.Store, error) {
	opts := session.Options{TTL: cfg.SessionTTL, MaxSessions: cfg.MaxSessions}
	switch cfg.SessionStore {
	case "", "memory":
		return session.NewMemoryStore(opts), nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.SessionBoltPath), 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		return session.OpenBoltStore(cfg.SessionBoltPath, opts)
	}
	return nil, fmt.Errorf("unknown session store %q (want memory or bolt)", cfg.SessionStore)
}

// buildSpeaker prefers Deepgram and falls back to ElevenLabs. It returns nil
// when no TTS key is configured.
func buildSpeaker(cfg config.Config) tts.Streamer {
	var primary, secondary tts.Streamer
	if cfg.DeepgramKey != "" {
		primary = tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramTTSModel)
	}
	if cfg.ElevenLabsKey != "" && cfg.ElevenLabsVoiceID != "" {
		secondary = tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	}
	switch {
	case primary != nil:
		return tts.Fallback{Primary: primary, Secondary: secondary}
	case secondary != nil:
		return secondary
	}
	log.Println("Warning: DEEPGRAM_API_KEY and ELEVENLABS_API_KEY not set - calls cannot be spoken over media streams")
	return nil
}

func buildCore(cfg config.Config, opts coreOptions) (*core, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	m := metrics.New(cfg.MetricsNamespace)
	locks := session.NewLocks()
	bh := barge.NewHandler(barge.DefaultPhoneLine(), store, locks, barge.WithObserver(m))

	var responder agent.Responder
	if cfg.CerebrasKey != "" && (!opts.offline || opts.llm) {
		responder = llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
	}

	td := tools.Deps{
		Currency: cfg.PaymentCurrency,
		Observe:  func(id tools.ID, err error) { m.ObserveTool(string(id), err) },
	}
	d := orchestrator.Deps{
		Store:   store,
		Locks:   locks,
		Agents:  agent.NewSet(responder),
		Metrics: m,
		OnEnd:   bh.Forget,
	}
	c := &core{store: store, metrics: m, barge: bh}

	if !opts.offline {
		td.Payments = payment.New(cfg.StripeSecretKey, "")
		td.Geocoder = geocode.New(cfg.GoogleMapsKey, "us")
		if cfg.TwilioEnabled() && cfg.TwilioFromNumber != "" {
			td.Notifier = notify.NewSMS(notify.Config{
				AccountSID: cfg.TwilioAccountSID,
				AuthToken:  cfg.TwilioAuthToken,
				From:       cfg.TwilioFromNumber,
			})
		} else {
			log.Println("Warning: TWILIO_FROM_NUMBER not set - order texts will not be sent")
		}

		if cfg.ArchiveEnabled() {
			up, err := archive.NewSupabase(archive.Config{URL: cfg.SupabaseURL, ServiceRoleKey: cfg.SupabaseKey, Bucket: cfg.SupabaseBucket})
			if err != nil {
				log.Printf("Warning: call archive disabled: %v", err)
			} else {
				d.Archive = archive.New(up)
			}
		} else {
			log.Println("Warning: SUPABASE_URL not set - finished calls will not be archived")
		}

		c.speaker = buildSpeaker(cfg)
		if cfg.AssemblyAIKey != "" {
			d.STT = transcript.OneShot{APIKey: cfg.AssemblyAIKey, Opts: transcript.PhoneLine(), Wait: 5 * time.Second}
		} else {
			log.Println("Warning: ASSEMBLYAI_API_KEY not set - audio turns and media streams are disabled")
		}
		if c.speaker != nil {
			d.TTS = tts.Synthesizer{Streamer: c.speaker}
		}
	}
	d.Tools = tools.NewRegistry(td)
	c.orch = orchestrator.New(d)
	return c, nil
}

// sweep runs the expired-session sweeper until ctx is done.
func (c *core) sweep(ctx context.Context, interval time.Duration) {
	s := session.NewSweeper(c.store, interval)
	s.OnSwept = c.metrics.SessionsSwept
	s.Run(ctx)
}
