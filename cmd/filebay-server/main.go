package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/twinisland/filebay/internal/core/service"
	"github.com/twinisland/filebay/internal/infra/buildinfo"
	"github.com/twinisland/filebay/internal/infra/confloader"
	"github.com/twinisland/filebay/internal/infra/shutdown"
	"github.com/twinisland/filebay/internal/server/config"
	"github.com/twinisland/filebay/internal/server/httpserver"
	"github.com/twinisland/filebay/internal/server/localserver"
	"github.com/twinisland/filebay/internal/storage"
	"github.com/twinisland/filebay/internal/storage/blob"
	"github.com/twinisland/filebay/internal/storage/memory"
	"github.com/twinisland/filebay/internal/storage/snapshot"
	"github.com/twinisland/filebay/internal/telemetry/logger"
	"github.com/twinisland/filebay/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("filebay-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting filebay-server",
		"version", buildinfo.Version,
		"config", *configFile,
		"backend", cfg.Storage.Backend)
	log.Debug("effective configuration", "config", fmt.Sprintf("%+v", *config.Sanitize(cfg)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	blobs, err := initBlobs(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init blob backend: %w", err)
	}
	snap, err := snapshot.NewManager(snapshot.DefaultConfig(cfg.Storage.SnapshotPath))
	if err != nil {
		return fmt.Errorf("init snapshot: %w", err)
	}
	engine, err := storage.New(storage.Config{
		MaxLive:            cfg.Registry.MaxLive,
		ChunkSize:          memory.DefaultChunkSize,
		CheckpointInterval: cfg.Storage.CheckpointInterval,
		Logger:             log,
	}, blobs, snap)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// A snapshot we cannot read is fatal: the layout is unknown.
	if _, err := engine.Recover(ctx); err != nil {
		engine.Close()
		return fmt.Errorf("storage recovery: %w", err)
	}

	// Metrics
	metrics := metric.NewRegistry()
	metrics.MustRegister(metric.NewCollector(func() metric.EngineStats {
		st := engine.Stats()
		return metric.EngineStats{
			Slots:    st.Slots,
			Live:     st.Live,
			Capacity: engine.MaxLive(),
			Indexed:  st.Indexed,
			Buckets:  st.Buckets,
			Reserved: st.Reserved,
		}
	}))

	// Services
	uploads, err := service.NewUploadService(engine, service.UploadConfig{
		MaxBytes:           cfg.Registry.MaxBytes,
		TTL:                cfg.Registry.TTL,
		MaxLive:            cfg.Registry.MaxLive,
		ReservationTimeout: cfg.Registry.ReservationTimeout,
		Logger:             log,
		Metrics:            metrics,
	})
	if err != nil {
		engine.Close()
		return fmt.Errorf("init upload service: %w", err)
	}

	sweeper := service.NewSweeper(engine, service.SweeperConfig{
		Interval:           cfg.Registry.SweepInterval,
		ReservationTimeout: cfg.Registry.ReservationTimeout,
		Logger:             log,
		Metrics:            metrics,
	})
	sweeper.Start(ctx)

	notifier := httpserver.NewNotifier(func(ctx context.Context) bool {
		return !uploads.Status(ctx).Accepting
	}, cfg.Server.StatusInterval, log)
	notifier.Start(ctx)

	// HTTP
	var ready atomic.Bool
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Uploads:        uploads,
		Notifier:       notifier,
		Metrics:        metrics,
		Logger:         log,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		RateLimit:      cfg.Server.HTTP.RateLimit,
		RateBurst:      cfg.Server.HTTP.RateBurst,
		Ready:          ready.Load,
	})
	go router.PruneLimiters(ctx, time.Minute)

	httpServer := httpserver.New(httpserver.Options{
		Addr:         cfg.Server.HTTP.Address,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	}, router)

	// Shutdown hooks run in reverse order of registration.
	sh := shutdown.NewHandler(shutdownTimeout, log)
	sh.OnShutdown("close engine", func(context.Context) error {
		return engine.Close()
	})
	sh.OnShutdown("flush snapshot", func(ctx context.Context) error {
		info, err := engine.Flush(ctx)
		if err != nil {
			return err
		}
		log.Info("snapshot written", "path", info.Path, "records", info.Records, "bytes", info.Size)
		return nil
	})
	sh.OnShutdown("stop notifier", func(context.Context) error {
		notifier.Stop()
		return nil
	})
	sh.OnShutdown("stop sweeper", func(context.Context) error {
		sweeper.Stop()
		return nil
	})

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			sh.OnShutdown("stop config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	if cfg.Server.AdminSocket != "" {
		admin := localserver.New(cfg.Server.AdminSocket,
			localserver.NewHandler(engine, sweeper, notifier, sh.Trigger), log)
		if err := admin.Listen(); err != nil {
			return err
		}
		go func() {
			if err := admin.Serve(); err != nil {
				log.Error("admin socket error", "error", err)
			}
		}()
		log.Info("admin socket listening", "path", cfg.Server.AdminSocket)
		sh.OnShutdown("stop admin socket", admin.Shutdown)
	}

	sh.OnShutdown("stop http server", func(ctx context.Context) error {
		ready.Store(false)
		return httpServer.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Address)
		if err := httpServer.ListenAndServe(); err != nil {
			log.Error("HTTP server error", "error", err)
			sh.Trigger()
		}
	}()
	ready.Store(true)

	log.Info("server started, press Ctrl+C to stop")
	if err := sh.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment over defaults.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the structured logger and makes it the default.
func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

// initBlobs builds the configured blob backend.
func initBlobs(ctx context.Context, cfg *config.ServerConfig) (blob.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendS3:
		s3, err := blob.NewS3(blob.S3Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Bucket:    cfg.Storage.S3.Bucket,
			Prefix:    cfg.Storage.S3.Prefix,
			Region:    cfg.Storage.S3.Region,
			UseSSL:    cfg.Storage.S3.UseSSL,
			CAFile:    cfg.Storage.S3.CAFile,
			SpoolDir:  cfg.Storage.Dir,
		})
		if err != nil {
			return nil, err
		}
		ectx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s3.EnsureBucket(ectx); err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return blob.NewLocal(cfg.Storage.Dir)
	}
}

// watchConfig reloads log.level when the config file changes. Other keys
// need a restart.
func watchConfig(path string, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}

	w.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		prev := logger.Level()
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if now := logger.Level(); now != prev {
			log.Info("log level changed", "from", prev, "to", now)
		}
	})
	w.StartAsync()
	return w, nil
}
