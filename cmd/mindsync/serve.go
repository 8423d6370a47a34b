package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/and07/mindsync/internal/logging"
	fileadapter "github.com/and07/mindsync/pkg/adapters/file"
	"github.com/and07/mindsync/pkg/adapters/memory"
	redisadapter "github.com/and07/mindsync/pkg/adapters/redis"
	"github.com/and07/mindsync/pkg/adapters/ws"
	"github.com/and07/mindsync/pkg/gateway"
	"github.com/and07/mindsync/pkg/persistence/middleware"
	"github.com/and07/mindsync/pkg/ports"
)

// encryptionKeyEnv names the environment variable holding the 32 byte
// AES-256 key for encryption at rest. Stored boards are encrypted when set.
const encryptionKeyEnv = "MINDSYNC_ENCRYPTION_KEY"

// serveConfig mirrors the serve flags so deployments can keep them in a YAML
// file instead. Flags set on the command line win over the file.
type serveConfig struct {
	Port        string `yaml:"port"`
	Store       string `yaml:"store"`
	DataDir     string `yaml:"data_dir"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
	Lock        bool   `yaml:"lock"`
	Debug       bool   `yaml:"debug"`
}

func defaultServeConfig() serveConfig {
	return serveConfig{
		Port:        "8080",
		Store:       "memory",
		DataDir:     ".mindsync/boards",
		RedisURL:    "redis://localhost:6379/0",
		RedisPrefix: "mindsync",
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the synchronization gateway",
	Long:  `Starts the MindSync gateway, exposing the realtime board channel over websockets with Prometheus metrics and a liveness probe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveServeConfig(cmd)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		logger := logging.New(level)

		store, locker, cleanup, err := buildStore(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		store, encrypted, err := wrapEncryption(store)
		if err != nil {
			return err
		}
		if encrypted {
			logger.Info("encryption at rest enabled")
		}

		gwOpts := []gateway.Option{
			gateway.WithLogger(logger),
			gateway.WithMetrics(prometheus.DefaultRegisterer),
		}
		if locker != nil {
			gwOpts = append(gwOpts, gateway.WithLocker(locker))
		}
		gw := gateway.New(store, gwOpts...)
		defer gw.Close()

		mux := chi.NewRouter()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Mount("/", ws.NewServer(gw, ws.WithLogger(logger)).Handler())

		srv := &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: mux,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("gateway listening", "addr", srv.Addr, "store", cfg.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			// gw.Close (deferred) persists every open room before exit.
			logger.Info("gateway stopped")
			return nil
		}
	},
}

// resolveServeConfig merges defaults, the optional config file and explicit
// flags, in that order.
func resolveServeConfig(cmd *cobra.Command) (serveConfig, error) {
	cfg := defaultServeConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL, _ = flags.GetString("redis-url")
	}
	if flags.Changed("redis-prefix") {
		cfg.RedisPrefix, _ = flags.GetString("redis-prefix")
	}
	if flags.Changed("lock") {
		cfg.Lock, _ = flags.GetBool("lock")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	return cfg, nil
}

// wrapEncryption wraps the store with encryption at rest when the key
// environment variable is set. Returns whether wrapping happened.
func wrapEncryption(store ports.BoardStore) (ports.BoardStore, bool, error) {
	key := os.Getenv(encryptionKeyEnv)
	if key == "" {
		return store, false, nil
	}
	if len(key) != 32 {
		return nil, false, fmt.Errorf("%s must be exactly 32 bytes, got %d", encryptionKeyEnv, len(key))
	}
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: []byte(key),
	})
	return mw(store), true, nil
}

// buildStore constructs the configured BoardStore and, for redis with
// locking enabled, the distributed locker.
func buildStore(cfg serveConfig) (ports.BoardStore, ports.DistributedLocker, func(), error) {
	switch cfg.Store {
	case "memory":
		return memory.NewStore(), nil, func() {}, nil

	case "file":
		return fileadapter.New(cfg.DataDir), nil, func() {}, nil

	case "redis":
		opts, err := backend.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := backend.NewClient(opts)
		store := redisadapter.NewFromClient(client, redisadapter.WithPrefix(cfg.RedisPrefix))
		var locker ports.DistributedLocker
		if cfg.Lock {
			locker = redisadapter.NewLocker(client, cfg.RedisPrefix)
		}
		return store, locker, func() { client.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q (memory, file, redis)", cfg.Store)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("store", "memory", "Board store backend: memory, file or redis")
	serveCmd.Flags().String("data-dir", ".mindsync/boards", "Directory for the file store")
	serveCmd.Flags().String("redis-url", "redis://localhost:6379/0", "Redis connection URL")
	serveCmd.Flags().String("redis-prefix", "mindsync", "Key prefix for the redis store")
	serveCmd.Flags().Bool("lock", false, "Use distributed board locks (redis store only)")
	serveCmd.Flags().String("config", "", "Path to a YAML config file")
	serveCmd.Flags().Bool("debug", false, "Enable debug logging")
}
