// Command asset-proxy runs the asset cache coordinator as an HTTP proxy in
// front of a static site origin. Same-origin GET requests are served from
// the Redis-backed cache; everything else passes through.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/plain-license/assetcache/pkg/cache"
	"github.com/plain-license/assetcache/pkg/config"
	"github.com/plain-license/assetcache/pkg/coordinator"
	"github.com/plain-license/assetcache/pkg/logging"
	"github.com/plain-license/assetcache/pkg/precache"
	"github.com/plain-license/assetcache/pkg/revalidate"
	"github.com/plain-license/assetcache/pkg/strategy"
)

type appConfig struct {
	RedisURL     string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	Port         string        `env:"PORT" envDefault:"8080"`
	Origin       string        `env:"ORIGIN,required"`
	ManifestPath string        `env:"MANIFEST_PATH" envDefault:"/meta.json"`
	CacheName    string        `env:"CACHE_NAME" envDefault:"plain-license"`
	CacheVersion int           `env:"CACHE_VERSION" envDefault:"1"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty    bool          `env:"LOG_PRETTY" envDefault:"false"`
	LogFile      string        `env:"LOG_FILE"`
	MinRefresh   time.Duration `env:"REVALIDATE_MIN_INTERVAL" envDefault:"0s"`
}

func main() {
	var cfg appConfig
	if err := env.Parse(&cfg); err != nil {
		logging.Setup(logging.DefaultConfig())
		logger := logging.NewLogger("asset-proxy")
		logger.Fatal().Err(err).Msg("Invalid environment configuration")
	}

	logging.Setup(logging.Config{
		Level:    logging.LogLevel(cfg.LogLevel),
		Pretty:   cfg.LogPretty,
		FilePath: cfg.LogFile,
	})
	logger := logging.NewLogger("asset-proxy")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", cfg.RedisURL).Msg("Connected to Redis")

	coord, err := buildCoordinator(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build coordinator")
	}

	if err := coord.Install(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Install failed")
	}
	if err := coord.Activate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Activate failed")
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go coord.Run(runCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/readyz", readyHandler(redisClient))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/control", controlHandler(coord))
	mux.HandleFunc("/", assetHandler(coord, logger))

	server := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", server.Addr).Str("origin", cfg.Origin).Msg("Starting asset proxy")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func buildCoordinator(cfg appConfig, redisClient *redis.Client) (*coordinator.Coordinator, error) {
	store := cache.NewStore(redisClient)
	resolver := config.NewResolver(http.DefaultClient, cfg.Origin, cfg.ManifestPath, logging.NewLogger("config"))

	manager, err := cache.NewManager(cache.ManagerConfig{
		Store:    store,
		Resolver: resolver,
		Origin:   cfg.Origin,
		Initial:  config.CacheConfig{Name: cfg.CacheName, Version: cfg.CacheVersion},
		Precache: precache.DefaultConfig(),
		Logger:   logging.NewLogger("cache"),
	})
	if err != nil {
		return nil, err
	}

	governorCfg := revalidate.DefaultConfig()
	governorCfg.MinInterval = cfg.MinRefresh
	governor := revalidate.NewTracker(redisClient, governorCfg, logging.NewLogger("revalidate"))

	engine := strategy.NewEngine(manager, governor, logging.NewLogger("strategy"))

	return coordinator.New(coordinator.Config{
		Manager: manager,
		Engine:  engine,
		Origin:  cfg.Origin,
		Logger:  logging.NewLogger("coordinator"),
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// controlHandler accepts POSTed control messages (CACHE_CONFIG, CACHE_URLS)
// and forwards them to the coordinator's message loop.
func controlHandler(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var msg coordinator.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "malformed message", http.StatusBadRequest)
			return
		}
		coord.Post(msg)
		w.WriteHeader(http.StatusAccepted)
	}
}

func assetHandler(coord *coordinator.Coordinator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		resp, err := coord.HandleRequest(ctx, r.WithContext(ctx))
		if err != nil {
			logger.Warn().Err(err).Str("url", r.URL.Path).Msg("Request failed")
			http.Error(w, "upstream fetch failed", http.StatusBadGateway)
			return
		}
		coordinator.WriteResponse(w, resp)
	}
}
