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

	"github.com/dkeye/eventchat/internal/adapters/auth"
	router "github.com/dkeye/eventchat/internal/adapters/http"
	"github.com/dkeye/eventchat/internal/adapters/presence"
	"github.com/dkeye/eventchat/internal/adapters/store"
	"github.com/dkeye/eventchat/internal/adapters/ws"
	"github.com/dkeye/eventchat/internal/chat"
	"github.com/dkeye/eventchat/internal/config"
	"github.com/dkeye/eventchat/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Str("dsn", cfg.DatabaseDSN).Msg("failed to open database")
	}

	var online core.OnlineIndex
	if cfg.RedisAddr != "" {
		online = presence.NewRedisIndex(cfg.RedisAddr)
		log.Info().Str("addr", cfg.RedisAddr).Msg("online index on redis")
	} else {
		online = chat.NewMemoryOnlineIndex()
	}

	svc := chat.NewService(chat.Options{
		Verifier:      auth.NewVerifier(db, cfg.Secret, cfg.SessionCookie),
		Oracle:        store.NewParticipationStore(db),
		Store:         store.NewMessageStore(db),
		Online:        online,
		TypingTTL:     cfg.TypingTTL,
		MaxMessageLen: cfg.MaxMessageLen,
	})
	ctrl := ws.NewController(svc, cfg)

	r := router.SetupRouter(ctx, cfg, svc, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("eventchat server started")
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
