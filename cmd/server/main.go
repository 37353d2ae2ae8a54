package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/interviewly/meetkit/internal/adapters/assist"
	router "github.com/interviewly/meetkit/internal/adapters/http"
	"github.com/interviewly/meetkit/internal/adapters/relayws"
	"github.com/interviewly/meetkit/internal/adapters/signal"
	"github.com/interviewly/meetkit/internal/adapters/tokens"
	"github.com/interviewly/meetkit/internal/app"
	"github.com/interviewly/meetkit/internal/app/orch"
	"github.com/interviewly/meetkit/internal/app/sfu"
	"github.com/interviewly/meetkit/internal/config"
	"github.com/interviewly/meetkit/internal/core"
	"github.com/interviewly/meetkit/internal/meeting"
)

func main() {
	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	feed := meeting.NewFeed()
	store, err := meeting.NewStore(cfg.DBPath, feed, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open meeting store")
	}
	defer store.Close()

	reg := app.NewRegistry()
	rooms := core.NewRoomManager()
	relays := sfu.NewRelayManager()

	orchestrator := &orch.Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   app.SimplePolicy{},
		Relays:   relays,
		Store:    store,
	}

	issuer := tokens.NewIssuer(cfg.Rooms.AppID, cfg.Rooms.Secret, cfg.Rooms.TokenTTL)
	signalCtl := signal.NewSignalWSController(orchestrator, issuer, store, feed)
	relayCtl := relayws.NewRelayWSController(cfg.Upstream)

	var assistant *assist.Assistant
	if cfg.Assist.APIKey != "" {
		assistant = assist.NewAssistant(cfg.Assist.APIKey, cfg.Assist.Model, store, log.Logger)
	}

	r := router.SetupRouter(ctx, router.Deps{
		Cfg:    cfg,
		Signal: signalCtl,
		Relay:  relayCtl,
		Store:  store,
		Tokens: issuer,
		Assist: assistant,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("meetkit server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
