package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appanalysis "idealens/internal/application/analysis"
	"idealens/internal/application/tasks"
	"idealens/internal/config"
	domain "idealens/internal/domain/analysis"
	"idealens/internal/infra/ai"
	"idealens/internal/infra/ai/gemini"
	aopenai "idealens/internal/infra/ai/openai"
	mysqlp "idealens/internal/infra/db/mysql"
	postgresp "idealens/internal/infra/db/postgres"
	redisp "idealens/internal/infra/db/redis"
	"idealens/internal/infra/httpclient"
	"idealens/internal/infra/httpserver"
	"idealens/internal/infra/sources"
	minioStore "idealens/internal/infra/storage"
	"idealens/internal/logging"
)

func main() {
	// .env is optional, real env wins
	_ = godotenv.Load()

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	} else if _, err := os.Stat(path); err != nil {
		path = "" // default file is optional; env vars can carry everything
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Server.LogLevel, os.Stdout)
	slog.SetDefault(log)

	ctx := context.Background()

	repo, closeRepo, err := buildRepo(ctx, cfg)
	if err != nil {
		log.Error("store init failed", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	var artifacts domain.ArtifactStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint, cfg.Minio.Region, cfg.Minio.BucketName,
			cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
		if err != nil {
			log.Error("minio init failed", "error", err)
			os.Exit(1)
		}
		artifacts = store
	}

	model, err := buildModel(ctx, cfg)
	if err != nil {
		log.Error("model init failed", "error", err)
		os.Exit(1)
	}

	client := httpclient.New(httpclient.Options{})
	censusCfg := sources.CensusConfig{BaseURL: cfg.Census.BaseURL, APIKey: cfg.Census.APIKey}

	runner := tasks.NewRunner(log)
	svc := &appanalysis.Service{
		Repo:      repo,
		Artifacts: artifacts,
		Model:     model,
		Census:    sources.NewCensus(client, censusCfg),
		Survey:    sources.NewSurvey(client, censusCfg),
		Reddit: sources.NewReddit(client, sources.RedditConfig{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			UserAgent:    cfg.Reddit.UserAgent,
		}),
		Search: sources.NewWebSearch(client),
		Clock:  appanalysis.SystemClock{},
		Runner: runner,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpserver.NewRouter(svc, cfg.Server.FrontendOrigin),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return logging.With(context.Background(), log)
		},
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown incomplete", "error", err)
	}
	// let background analyses finish their final record writes
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Warn("background tasks did not drain in time", "error", err)
	}
}

func buildRepo(ctx context.Context, cfg *config.Config) (domain.Repository, func(), error) {
	switch cfg.Store.Backend {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		return mysqlp.NewRecordRepository(db), func() { db.Close() }, nil
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		return postgresp.NewRecordRepository(db), func() { db.Close() }, nil
	default:
		repo := redisp.NewRecordRepository(redisp.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Table,
		})
		return repo, func() { repo.Close() }, nil
	}
}

func buildModel(ctx context.Context, cfg *config.Config) (domain.TextModel, error) {
	primary := aopenai.NewClient(aopenai.Config{
		APIKey:    cfg.Model.APIKey,
		Model:     cfg.Model.Model,
		BaseURL:   cfg.Model.BaseURL,
		MaxTokens: cfg.Model.MaxTokens,
	})

	var fallback domain.TextModel
	if cfg.Model.GeminiAPIKey != "" {
		g, err := gemini.NewClient(ctx, cfg.Model.GeminiAPIKey, cfg.Model.GeminiModel)
		if err != nil {
			return nil, err
		}
		fallback = g
	}
	return ai.NewResilientModel(primary, fallback), nil
}
