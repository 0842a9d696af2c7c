package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/abracadabra/internal/ai"
	"github.com/shinyyama/abracadabra/internal/config"
	"github.com/shinyyama/abracadabra/internal/db"
	"github.com/shinyyama/abracadabra/internal/logging"
	appmw "github.com/shinyyama/abracadabra/internal/middleware"
	"github.com/shinyyama/abracadabra/internal/model"
	"github.com/shinyyama/abracadabra/internal/repository"
	"github.com/shinyyama/abracadabra/internal/server"
	"github.com/shinyyama/abracadabra/internal/service"
	"github.com/shinyyama/abracadabra/internal/storage"
)

// Set with -ldflags "-X main.gitSHA=... -X main.buildTime=...".
var (
	gitSHA    = "dev"
	buildTime = ""
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()
	logging.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ai.NewImageClient(ctx, cfg.GeminiTransport, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout())
	if err != nil {
		log.Fatal().Err(err).Msg("image client init error")
	}
	log.Info().Str("transport", cfg.GeminiTransport).Str("model", client.Model()).Msg("image client ready")

	var publisher storage.Publisher
	if cfg.StorageBucket != "" {
		gcs, err := storage.NewGCSPublisher(ctx, cfg.StorageBucket, cfg.CredentialsFile)
		if err != nil {
			log.Error().Err(err).Msg("storage init error; publishing disabled")
		} else {
			defer gcs.Close()
			publisher = gcs
		}
	}

	var auth *appmw.AuthMiddleware
	if cfg.FirebaseProjectID != "" {
		auth, err = appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID, cfg.CredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init firebase auth")
		}
	} else {
		log.Warn().Msg("FIREBASE_PROJECT_ID not set; sessions are unauthenticated")
	}

	sessions := repository.NewSessionRepository()
	generations := repository.NewGenerationRepository(nil)
	svc := service.NewSessionService(sessions, generations, client, client.Model(), publisher)

	srv := server.New(server.Options{
		Sessions:         svc,
		Generations:      generations,
		Auth:             auth,
		CORSOriginSuffix: cfg.CORSOriginSuffix,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		SHA:              gitSHA,
		BuildTime:        buildTime,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting server")
		errCh <- srv.Start(addr)
	}()

	// The database only backs the generation log, so the server never waits for it.
	go func() {
		dbCfg, err := config.LoadDB()
		if err != nil {
			log.Info().Err(err).Msg("database not configured; generation log disabled")
			return
		}
		conn, err := db.Connect(dbCfg)
		if err != nil {
			log.Error().Err(err).Msg("db connect error")
			return
		}
		if err := conn.AutoMigrate(&model.Generation{}); err != nil {
			log.Error().Err(err).Msg("auto migrate error")
			return
		}
		srv.SetDB(conn)
		log.Info().Msg("database attached")
	}()

	go sweep(ctx, svc, cfg.SessionIdle())

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}
}

func sweep(ctx context.Context, svc service.SessionService, maxIdle time.Duration) {
	interval := maxIdle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			svc.Sweep(ctx, maxIdle)
		}
	}
}
