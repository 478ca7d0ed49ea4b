package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	router "github.com/dkeye/Huddle/internal/adapters/http"
	wsignal "github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/adapters/store"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/hub"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/metrics"
)

type rooms interface {
	core.Directory
	core.History
}

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
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer closeStore()

	var identity auth.Provider = auth.GuestProvider{}
	if cfg.Auth.Mode == "jwt" {
		identity = auth.NewJWTProvider(cfg.Secret)
	}

	m := metrics.New()
	h := hub.New(hub.Deps{
		Registry:   app.NewRegistry(),
		Authorizer: app.NewAuthorizer(st, cfg.Auth.AuthorizeTimeout),
		History:    st,
		Policy:     app.PolicyFor(cfg.Backpressure),
		Metrics:    m,
	}, hub.Config{
		ChatMaxLength:  cfg.Chat.MaxLength,
		HistoryTimeout: cfg.History.Timeout,
	})

	ctrl := wsignal.NewSignalWSController(h,
		wsignal.NewRoomRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval),
		wsignal.Config{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
			PongWait:   cfg.PongWait,
			WriteWait:  cfg.WriteWait,
			SendBuffer: cfg.SendBuffer,
		})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Hub:       h,
		Signal:    ctrl,
		Directory: st,
		History:   st,
		Identity:  identity,
		Metrics:   m,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("auth", cfg.Auth.Mode).Str("store", cfg.Store.Driver).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		// connection pumps run on ctx and are already stopping; flush history writes
		h.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (rooms, func(), error) {
	if cfg.Store.Driver != "mongo" {
		return store.NewMemoryStore(), func() {}, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ms, err := store.NewMongoStore(connectCtx, cfg.Store.MongoURI, cfg.Store.Database)
	if err != nil {
		return nil, nil, err
	}
	return ms, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ms.Close(closeCtx); err != nil {
			log.Warn().Err(err).Str("module", "store.mongo").Msg("close")
		}
	}, nil
}
