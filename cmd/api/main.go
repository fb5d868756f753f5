package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/scanproof/internal/application"
	appai "github.com/bryanwahyu/scanproof/internal/application/ai"
	apprecords "github.com/bryanwahyu/scanproof/internal/application/records"
	"github.com/bryanwahyu/scanproof/internal/config"
	domanalysis "github.com/bryanwahyu/scanproof/internal/domain/analysis"
	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
	openaicli "github.com/bryanwahyu/scanproof/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/scanproof/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/scanproof/internal/infra/db/postgres"
	"github.com/bryanwahyu/scanproof/internal/infra/httpserver"
	"github.com/bryanwahyu/scanproof/internal/infra/tsa"
	"github.com/bryanwahyu/scanproof/internal/middleware"
)

// set via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect database
	db, records, tokens, analyses, err := openDatabase(ctx, cfg)
	if err != nil {
		log.Fatalf("database connect error: %v", err)
	}
	defer db.Close()

	// init TSA client
	tsaClient, err := tsa.New(tsa.Options{
		URL:           cfg.TSA.URL,
		CertFile:      cfg.TSA.CertFile,
		HashAlgorithm: cfg.TSA.HashAlgorithm,
		Timeout:       cfg.TSATimeout(),
		Attempts:      cfg.TSA.Attempts,
		Backoff:       cfg.TSABackoff(),
		TLSCAFile:     cfg.TSA.TLSCAFile,
	})
	if err != nil {
		log.Fatalf("tsa init error: %v", err)
	}

	// init service
	svc := &apprecords.Service{
		Records: records,
		Tokens:  tokens,
		TSA:     tsaClient,
		Clock:   application.SystemClock{},
	}

	// optional AI service
	var aiSvc *appai.Service
	if cfg.AI.APIKey != "" {
		model := cfg.AI.Model
		if model == "" {
			model = "o3-2025-04-16"
		}
		client := openaicli.NewClient(cfg.AI.APIKey, model)
		aiSvc = appai.NewService(client, model, svc, analyses, application.SystemClock{})
	}

	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}

	// init router plus middleware chain
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	mux.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))
	mux.Mount("/", httpserver.NewRouter(svc, aiSvc, version, health))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, domain.RecordRepository, domain.TokenRepository, domanalysis.Repository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return db, postgresp.NewRecordRepository(db), postgresp.NewTokenRepository(db), postgresp.NewAnalysisRepository(db), nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return db, mysqlp.NewRecordRepository(db), mysqlp.NewTokenRepository(db), mysqlp.NewAnalysisRepository(db), nil
	}
}
