// chatcored is the conversation-continuity service: an HTTP API over
// a Redis session cache, a PostgreSQL thread store, and an LLM
// provider. Clients, cache, and store are constructed once here and
// injected; they are released in reverse order on shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chatcore-dev/chatcore/internal/api"
	"github.com/chatcore-dev/chatcore/internal/llm/provider"
	tracing "github.com/chatcore-dev/chatcore/internal/observability"
	"github.com/chatcore-dev/chatcore/internal/store"
	"github.com/chatcore-dev/chatcore/pkg/config"
	"github.com/chatcore-dev/chatcore/pkg/observability"
	"github.com/chatcore-dev/chatcore/pkg/respond"
	"github.com/chatcore-dev/chatcore/pkg/session"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile = flag.String("config", getEnv("CONFIG_FILE", ""), "Configuration file (YAML)")
	httpPort   = flag.Int("http-port", getEnvInt("PORT", 0), "HTTP server port (overrides config)")
)

func main() {
	flag.Parse()

	log.Printf("Starting chatcored v%s", Version)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if *httpPort > 0 {
		cfg.Port = *httpPort
	}

	// Initialize observability
	observability.InitMetrics()
	if err := tracing.InitFromEnv(); err != nil {
		log.Printf("Tracing init failed, continuing without: %v", err)
	}

	// Session cache
	ttl, _ := cfg.ParseSessionTTL()
	cache, err := session.NewRedisCache(session.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
		TTL:      ttl,
	})
	if err != nil {
		log.Fatalf("Session cache error: %v", err)
	}
	sessions := session.NewManager(cache)

	// Durable store
	ctx := context.Background()
	threads, err := store.NewPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Thread store error: %v", err)
	}

	// LLM provider
	llm, err := provider.New(cfg.Provider, cfg.ProviderConfig())
	if err != nil {
		log.Fatalf("Provider error: %v", err)
	}

	llmTimeout, _ := cfg.ParseLLMTimeout()
	gen := respond.NewGenerator(llm, sessions, respond.Config{
		Model:      cfg.Model,
		TitleModel: cfg.TitleModel,
		LLMTimeout: llmTimeout,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	})

	// Health checks: cache failures degrade (requests fall back to the
	// durable store), store failures are fatal to readiness.
	healthChecker := observability.NewHealthChecker(Version)
	healthChecker.RegisterCheck(observability.PingCheck("session_cache", false, sessions.Ping))
	healthChecker.RegisterCheck(observability.PingCheck("thread_store", true, threads.Ping))

	handler := api.NewHandler(threads, sessions, gen)
	server := observability.NewServer(cfg.Port, healthChecker, handler.Routes())

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Listening on :%d (provider=%s)", cfg.Port, llm.Name())
		errChan <- server.Start()
	}()

	// Wait for shutdown signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Printf("Server error: %v", err)
	case sig := <-quit:
		log.Printf("Received %s, shutting down...", sig)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	_ = llm.Close()
	_ = threads.Close()
	if err := sessions.Close(); err != nil {
		log.Printf("Session cache close error: %v", err)
	}

	log.Println("chatcored stopped")
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
