package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/capture"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/config"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/eval"
	httpserver "github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/httpserver"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/rtc"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/session"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/speech"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/storage"
)

// Synthesized audio is delivered to the browser at the WebRTC track rate.
const playbackSampleRate = 48000

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	evalClient := eval.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout)

	// Browser audio plumbing: the bridge carries the candidate's microphone
	// in, the speaker carries the interviewer's voice out.
	bridge := rtc.NewBridge()
	speaker := rtc.NewSpeaker()
	offers := rtc.NewHandler(bridge, speaker)
	mic := capture.NewPipeline(bridge)

	var primary speech.Synthesizer
	if cfg.DeepgramAPIKey != "" {
		primary = speech.NewDeepgramSynthesizer(cfg.DeepgramAPIKey, cfg.DeepgramModel, playbackSampleRate)
	} else {
		primary = speech.NewBackendSynthesizer(cfg.BackendBaseURL, cfg.BackendVoiceID, playbackSampleRate)
	}
	var fallback speech.Synthesizer
	if local := speech.NewLocalEngine(cfg.LocalVoice, playbackSampleRate); local.Available() {
		fallback = local
	} else {
		log.Printf("espeak-ng not found, no local voice fallback")
	}
	narrator := speech.NewSynchronizer(primary, fallback, speaker, playbackSampleRate, cfg.EnableTTS)

	orc := session.New(evalClient, mic, narrator, evalClient)
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		archive, err := storage.New(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("recording archive disabled: %v", err)
		} else {
			orc.WithArchiver(archive)
		}
	}

	srv := httpserver.New(orc, evalClient, offers)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
