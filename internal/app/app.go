package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/jinzhu/gorm"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	httpHandler "github.com/Jonathanamir1/WubHub-sub004/internal/adapter/inbound/http"
	"github.com/Jonathanamir1/WubHub-sub004/internal/adapter/outbound/blob"
	"github.com/Jonathanamir1/WubHub-sub004/internal/adapter/outbound/chunkstore"
	"github.com/Jonathanamir1/WubHub-sub004/internal/adapter/outbound/db"
	"github.com/Jonathanamir1/WubHub-sub004/internal/adapter/outbound/scanner"
	"github.com/Jonathanamir1/WubHub-sub004/internal/config"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
	"github.com/Jonathanamir1/WubHub-sub004/internal/service"
	"github.com/Jonathanamir1/WubHub-sub004/pkg/idgen"
)

type App struct {
	cfg        *config.Config
	server     *httpHandler.Server
	service    *service.UploadServiceImpl
	dispatcher *service.PoolDispatcher
	sweeper    *cron.Cron
	dbConn     *gorm.DB
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	// 3. Initialize Redis and Snowflake IDGen
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	redisClock := idgen.NewRedisClock(redisClient)
	idGen, err := idgen.New(cfg.Upload.NodeID, redisClock)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake: %w", err)
	}

	// 4. Database and repositories
	dbConn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sessions := db.NewSessionRepository(dbConn)
	assets := db.NewAssetRepository(dbConn)

	// 5. Storage and scanner adapters
	chunks, err := chunkstore.NewLocal(cfg.Upload.ChunkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init chunk store: %w", err)
	}

	clam := scanner.NewClamAV(cfg.Scanner.Addr, time.Duration(cfg.Scanner.TimeoutMS)*time.Millisecond)

	var blobStore port.BlobStore
	switch cfg.Blob.Backend {
	case "s3":
		blobStore, err = blob.NewS3Store(context.Background(), cfg.Blob.Bucket, cfg.Blob.Region, cfg.Blob.Prefix)
	default:
		blobStore, err = blob.NewLocalStore(cfg.Blob.LocalDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init blob store: %w", err)
	}

	// 6. Dispatcher and pipeline service
	dispatcher := service.NewPoolDispatcher(cfg.Upload)
	svc := service.NewUploadService(cfg, sessions, assets, chunks, clam, blobStore, idGen, dispatcher)

	// 7. HTTP Server
	httpServer := httpHandler.NewServer(cfg, svc)

	// 8. Cleanup sweeper schedule
	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.Sweeper.Schedule, func() {
		ctx := context.Background()
		if _, err := svc.SweepExpired(ctx); err != nil {
			logger.Errorw("Sweep of expired sessions failed", "error", err.Error())
		}
		if _, err := svc.SweepStuckAssemblies(ctx); err != nil {
			logger.Errorw("Sweep of stuck assemblies failed", "error", err.Error())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sweeper: %w", err)
	}

	return &App{
		cfg:        cfg,
		server:     httpServer,
		service:    svc,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		dbConn:     dbConn,
	}, nil
}

func (a *App) Run() error {
	a.sweeper.Start()

	// Start HTTP
	logger.Infow("Upload service starting", "addr", a.cfg.Server.Addr)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("http server failed: %w", err)
		logger.Errorw("HTTP server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down upload service")

	// Stop intake first, then drain in-flight pipeline stages so no
	// session is left mid-transition by the process exit.
	if err := a.server.Stop(context.Background()); err != nil {
		logger.Errorw("HTTP shutdown error", "error", err.Error())
		if runErr == nil {
			runErr = err
		}
	}
	<-a.sweeper.Stop().Done()
	a.dispatcher.Shutdown()

	if err := a.dbConn.Close(); err != nil {
		logger.Errorw("Database close error", "error", err.Error())
	}

	return runErr
}
