package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chadiek/voice-order/internal/config"
	"github.com/chadiek/voice-order/internal/httpserver"
	"github.com/chadiek/voice-order/internal/telephony"
	"github.com/chadiek/voice-order/internal/transcript"
	"github.com/chadiek/voice-order/internal/voice"
)

func serveCmd() *cobra.Command {
	var addr, store string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server for Twilio webhooks and media streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.HTTPAddress = addr
			}
			if store != "" {
				cfg.SessionStore = store
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDRESS)")
	cmd.Flags().StringVar(&store, "store", "", "session store: memory or bolt (overrides SESSION_STORE)")
	return cmd
}

func serve(cfg config.Config) error {
	c, err := buildCore(cfg, coreOptions{})
	if err != nil {
		return err
	}
	defer c.store.Close()

	var media *telephony.Media
	if cfg.AssemblyAIKey != "" && c.speaker != nil {
		var live *telephony.LiveCalls
		if cfg.TwilioEnabled() {
			live = telephony.NewLiveCalls(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
		}
		newTranscriber := func() voice.Transcriber {
			return transcript.NewAssemblyAIService(cfg.AssemblyAIKey, transcript.PhoneLine())
		}
		media = telephony.NewMedia(c.orch, newTranscriber, c.speaker, c.barge, live, cfg.SupportTransferNumber)
	}
	hooks := telephony.NewHandlers(c.orch, telephony.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		SupportNumber: cfg.SupportTransferNumber,
	}, media)

	e := httpserver.New(httpserver.Options{
		Metrics:         c.metrics.Handler(),
		TwilioAuthToken: cfg.TwilioAuthToken,
		Routes:          []httpserver.Route{hooks},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.sweep(ctx, cfg.SweepInterval)

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s (sessions: %s)", cfg.HTTPAddress, cfg.SessionStore)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	return nil
}
