package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanwahyu/scanproof/internal/application"
	"github.com/bryanwahyu/scanproof/internal/application/ingest"
	apprecords "github.com/bryanwahyu/scanproof/internal/application/records"
	"github.com/bryanwahyu/scanproof/internal/config"
	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
	mysqlp "github.com/bryanwahyu/scanproof/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/scanproof/internal/infra/db/postgres"
	minioStore "github.com/bryanwahyu/scanproof/internal/infra/storage"
	"github.com/bryanwahyu/scanproof/internal/infra/transport"
	"github.com/bryanwahyu/scanproof/internal/infra/tsa"
)

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
	db, records, tokens, err := openDatabase(ctx, cfg)
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

	// init message source
	sub, err := transport.NewSubscriber(cfg.Transport.URL, cfg.Transport.Subject, cfg.Transport.Queue)
	if err != nil {
		log.Fatalf("transport init error: %v", err)
	}
	defer sub.Close()

	// optional evidence archive
	var archive domain.EvidenceStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = store
	}

	svc := &apprecords.Service{
		Records: records,
		Tokens:  tokens,
		TSA:     tsaClient,
		Clock:   application.SystemClock{},
	}

	loop := &ingest.Loop{
		Source:         sub,
		TSA:            tsaClient,
		Store:          svc,
		Archive:        archive,
		ReceiveTimeout: cfg.ReceiveTimeout(),
		ProcessTimeout: cfg.ProcessTimeout(),
		WriteAttempts:  cfg.Ingest.WriteAttempts,
		WriteBackoff:   cfg.WriteBackoff(),
	}

	// stop on SIGINT/SIGTERM; the in-flight message still finishes
	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := loop.Run(runCtx); err != nil {
		log.Fatalf("ingestion loop error: %v", err)
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, domain.RecordRepository, domain.TokenRepository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, err
		}
		return db, postgresp.NewRecordRepository(db), postgresp.NewTokenRepository(db), nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, nil, err
		}
		return db, mysqlp.NewRecordRepository(db), mysqlp.NewTokenRepository(db), nil
	}
}
