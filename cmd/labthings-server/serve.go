package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/labthings/examples"
	"github.com/oriys/labthings/internal/blob"
	"github.com/oriys/labthings/internal/cache"
	"github.com/oriys/labthings/internal/config"
	"github.com/oriys/labthings/internal/domain"
	"github.com/oriys/labthings/internal/httpserver"
	"github.com/oriys/labthings/internal/invocation"
	"github.com/oriys/labthings/internal/logging"
	"github.com/oriys/labthings/internal/metrics"
	"github.com/oriys/labthings/internal/tdoc"
	"github.com/oriys/labthings/internal/telemetry"
	"github.com/oriys/labthings/internal/thing"
)

func serveCmd() *cobra.Command {
	var (
		configPath        string
		listenAddr        string
		baseURL           string
		thingsList        string
		telemetryEnabled  bool
		telemetryEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LabThings server",
		Long:  "Run the LabThings server, mounting the requested example Things and serving their affordances over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if listenAddr != "" {
				cfg.Listen = listenAddr
			}
			if baseURL != "" {
				cfg.BaseURL = baseURL
			}
			if thingsList != "" {
				cfg.Things = strings.Split(thingsList, ",")
			}

			logging.SetLevelFromString(cfg.LogLevel)
			logging.InitStructured(cfg.LogFormat, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := telemetry.Init(ctx, telemetry.Config{
				Enabled:     telemetryEnabled,
				Exporter:    "otlp-http",
				Endpoint:    telemetryEndpoint,
				ServiceName: "labthings-server",
				SampleRate:  1.0,
			}); err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx); err != nil {
					logging.Op().Warn("telemetry shutdown failed", "err", err)
				}
			}()

			metrics.InitPrometheus("labthings", nil)

			blobStore, err := buildBlobStore(ctx, cfg.Blob)
			if err != nil {
				return fmt.Errorf("blob store: %w", err)
			}

			server := thing.NewServer(thing.Config{
				SettingsDir: cfg.SettingsDir,
				Blobs:       blobStore,
				BaseURL:     cfg.BaseURL,
				Invocation: invocation.Config{
					Blobs:  blobStore,
					URLFor: func(path string) string { return cfg.BaseURL + path },
				},
			})

			if err := mountThings(server, cfg.Things); err != nil {
				return fmt.Errorf("mount things: %w", err)
			}

			if err := server.Start(ctx); err != nil {
				return fmt.Errorf("start server: %w", err)
			}

			autosaveCtx, stopAutosave := context.WithCancel(context.Background())
			defer stopAutosave()
			go server.SettingsAutosaveLoop(autosaveCtx, time.Minute)

			tdBackend, err := buildTDCache(cfg.TDCache)
			if err != nil {
				return fmt.Errorf("td cache: %w", err)
			}
			tdCache := tdoc.NewCache(tdoc.NewBuilder(), tdBackend, time.Duration(cfg.TDCache.TTLSecs)*time.Second)

			handler := httpserver.New(server, tdCache, nil)

			httpServer := &http.Server{
				Addr:    cfg.Listen,
				Handler: handler,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Op().Info("labthings server started", "addr", cfg.Listen, "base_url", cfg.BaseURL, "things", server.Things())
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				logging.Op().Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown http server: %w", err)
				}
				server.SaveAllSettings()
				if err := server.Stop(shutdownCtx); err != nil {
					logging.Op().Error("server stop reported errors", "err", err)
				}
				return nil
			case err := <-errCh:
				return fmt.Errorf("labthings server error: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "externally visible base URL (overrides config)")
	cmd.Flags().StringVar(&thingsList, "things", "", "comma-separated list of example things to mount: counter,sensor,mixer (overrides config)")
	cmd.Flags().BoolVar(&telemetryEnabled, "telemetry", false, "enable OpenTelemetry trace export")
	cmd.Flags().StringVar(&telemetryEndpoint, "telemetry-endpoint", "localhost:4318", "OTLP HTTP collector endpoint")

	return cmd
}

// mountThings mounts the requested example Things by name. An empty names
// list mounts the full demo set (counter, the "a" sensor, and the "b"
// mixer that depends on it via a slot).
func mountThings(server *thing.Server, names []string) error {
	if len(names) == 0 {
		names = []string{"counter", "sensor", "mixer"}
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		switch name {
		case "counter":
			t, err := examples.NewCounter()
			if err != nil {
				return err
			}
			if err := server.Mount(t.Name(), t); err != nil {
				return err
			}
		case "sensor":
			t, err := examples.NewSensor("a")
			if err != nil {
				return err
			}
			if err := server.Mount(t.Name(), t); err != nil {
				return err
			}
		case "mixer":
			t, err := examples.NewMixer()
			if err != nil {
				return err
			}
			if err := server.Mount(t.Name(), t); err != nil {
				return err
			}
		case "":
			continue
		default:
			return fmt.Errorf("unknown example thing %q", name)
		}
	}
	return nil
}

func buildBlobStore(ctx context.Context, cfg config.BlobConfig) (domain.Store, error) {
	switch cfg.Backend {
	case "", "local":
		return blob.NewLocalStore(cfg.Dir)
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

func buildTDCache(cfg config.TDCacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewInMemoryCache(), nil
	case "redis":
		return cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), nil
	case "tiered":
		l2 := cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return cache.NewTieredCache(cache.NewInMemoryCache(), l2, 5*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown td cache backend %q", cfg.Backend)
	}
}
