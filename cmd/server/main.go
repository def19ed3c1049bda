package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/voicecall/internal/adapters/http"
	sig "github.com/dkeye/voicecall/internal/adapters/signal"
	"github.com/dkeye/voicecall/internal/adapters/turn"
	"github.com/dkeye/voicecall/internal/app/relay"
	"github.com/dkeye/voicecall/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := config.ApplyLogLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Msg("keeping info level")
	}
	cfg.Watch(nil)

	policy, err := relay.PolicyByName(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("bad backpressure policy")
	}
	rl := relay.New(relay.NewRegistry(), policy)

	var limiter *sig.InviteRateLimiter
	if cfg.InviteLimit > 0 {
		limiter = sig.NewInviteRateLimiter(cfg.InviteLimit, cfg.InviteInterval)
	}

	if cfg.TURN.Enabled {
		ts, err := turn.Start(turn.Config{
			ListenAddr: fmt.Sprintf("0.0.0.0:%d", cfg.TURN.Port),
			Realm:      cfg.TURN.Realm,
			PublicIP:   cfg.TURN.PublicIP,
			Users:      cfg.TURN.Users,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("turn server")
		}
		defer ts.Close()
	}

	r := router.SetupRouter(ctx, cfg, rl, limiter)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("backpressure", cfg.Backpressure).Msg("voicecall relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Int("online", rl.Registry().Online()).Msg("Server exited gracefully")
}
