package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DHenson1337/mini-game-playground-server/internal/config"
	"github.com/DHenson1337/mini-game-playground-server/internal/db"
	clog "github.com/DHenson1337/mini-game-playground-server/internal/log"
	"github.com/DHenson1337/mini-game-playground-server/internal/mw"
	"github.com/DHenson1337/mini-game-playground-server/internal/ratelimit"
	"github.com/DHenson1337/mini-game-playground-server/internal/scoring"
	"github.com/DHenson1337/mini-game-playground-server/internal/server"
	"github.com/DHenson1337/mini-game-playground-server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "arcade",
		Short:        "Mini-game playground backend",
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, args []string) error { return serve(cmd.Context()) },
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server (default)",
		RunE:  func(cmd *cobra.Command, args []string) error { return serve(cmd.Context()) },
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if _, err := connect(cfg); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	})
	return root
}

// setup loads configuration and initialises logging. Configuration errors
// are printed through a default logger since Init has not run yet.
func setup() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		clog.Init("dev")
		log.Error().Err(err).Msg("config")
		return cfg, err
	}
	clog.Init(cfg.Env)
	return cfg, nil
}

func connect(cfg config.Config) (*gorm.DB, error) {
	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Error().Err(err).Msg("db connect")
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		log.Error().Err(err).Msg("db migrate")
		return nil, err
	}
	return gdb, nil
}

// newLimiter uses Redis when REDIS_URL is set and the in-process window
// otherwise. The returned func releases it.
func newLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL != "" {
		rw, err := ratelimit.NewRedisWindow(cfg.RedisURL, cfg.ScoreRateLimit, cfg.ScoreRateWindow)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("score rate limit backed by redis")
		return rw, func() { _ = rw.Close() }, nil
	}
	sw := ratelimit.NewSlidingWindow(cfg.ScoreRateLimit, cfg.ScoreRateWindow)
	go sw.Run(ctx, cfg.ScoreRateWindow)
	return sw, func() {}, nil
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := setup()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	rules, err := scoring.LoadRules(cfg.RulesFile)
	if err != nil {
		log.Error().Err(err).Str("file", cfg.RulesFile).Msg("score rules")
		return err
	}

	gdb, err := connect(cfg)
	if err != nil {
		return err
	}

	limiter, release, err := newLimiter(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("rate limiter")
		return err
	}
	defer release()

	hub := ws.NewHub()
	go hub.Run(ctx)
	defer hub.Close()

	edge := mw.NewEdgeLimiter(cfg.EdgeRatePerSec, cfg.EdgeBurst, 2*time.Minute)
	edge.Start()
	defer edge.Stop()

	r, err := server.SetupRouter(cfg, server.Deps{DB: gdb, Hub: hub, Limiter: limiter, Rules: rules, Edge: edge})
	if err != nil {
		log.Error().Err(err).Msg("router")
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server run")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
		return err
	}
	return nil
}
