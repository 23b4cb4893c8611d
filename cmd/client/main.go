package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"roomlink/internal/auth"
	"roomlink/internal/config"
	"roomlink/internal/credentials"
	"roomlink/internal/database"
	"roomlink/internal/handlers"
	"roomlink/internal/httpclient"
	"roomlink/internal/models"
	"roomlink/internal/peer"
	"roomlink/internal/services"
	"roomlink/internal/session"
	"roomlink/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg)
	api := httpclient.New(cfg.API.URL, store, cfg.API.Timeout)
	authService := auth.NewService(api, store)

	if cfg.Auth.Email != "" && cfg.Auth.Password != "" {
		err := authService.Login(ctx, &models.LoginRequest{Email: cfg.Auth.Email, Password: cfg.Auth.Password})
		if err != nil {
			logger.Fatal("Failed to sign in: %v", err)
		}
	}

	identity, err := authService.Identity(ctx, cfg.Auth.DisplayName)
	if err != nil {
		logger.Fatal("Failed to resolve identity: %v", err)
	}
	logger.Info("Signed in as %s (%s)", identity.Name, identity.ID)

	opts := session.Options{
		SocketURL:         cfg.Realtime.URL,
		Store:             store,
		API:               api,
		Identity:          identity,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		JoinTimeout:       cfg.Realtime.JoinTimeout,
		PushTimeout:       cfg.Realtime.PushTimeout,
		HistoryLimit:      cfg.Room.ChatHistoryLimit,
	}

	if cfg.Storage.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare chat archive: %v", err)
		}
		opts.Archive = db
	}

	if cfg.Media.Enabled {
		factory, err := peer.NewPionFactory(cfg.Media.ICEServers)
		if err != nil {
			logger.Fatal("Failed to set up media: %v", err)
		}
		opts.Factory = factory
		opts.Media = peer.SampleSource{Audio: true, Video: true}
	}

	sess := session.New(opts)
	if err := sess.Open(ctx); err != nil {
		logger.Fatal("%v", err)
	}

	if cfg.Room.Code != "" {
		result, err := sess.EnterRoom(ctx, cfg.Room.Code)
		if err != nil {
			logger.Error("Failed to enter %s: %v", cfg.Room.Code, err)
		} else {
			logger.Info("Room %s: %s", result.Code, result.Outcome)
		}
	}

	server := &http.Server{
		Addr:    cfg.Control.Addr,
		Handler: handlers.NewRouter(sess, services.NewRoomService(api), authService),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Control API listening on http://%s", cfg.Control.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sess.Close(shutdownCtx); err != nil {
			logger.Warn("session close: %v", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("%v", err)
	}
}

// openStore picks Redis when configured so clients on one machine share a
// sign-in, and falls back to memory.
func openStore(ctx context.Context, cfg *config.Config) credentials.Store {
	if cfg.Storage.RedisURL == "" {
		return credentials.NewMemoryStore(cfg.Auth.Token)
	}

	client, err := credentials.DialRedis(ctx, cfg.Storage.RedisURL)
	if err != nil {
		logger.Fatal("Failed to connect to redis: %v", err)
	}
	store := credentials.NewRedisStore(client, "")
	if cfg.Auth.Token != "" {
		if err := store.SetToken(ctx, cfg.Auth.Token); err != nil {
			logger.Fatal("Failed to store token: %v", err)
		}
	}
	return store
}
