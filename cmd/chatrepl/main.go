// chatrepl is a local interactive client for exercising a provider and
// the session layer without the HTTP server: each REPL run is one
// conversation thread backed by the configured Redis cache, so a
// restarted REPL resumes where it left off.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/peterh/liner"

	"github.com/chatcore-dev/chatcore/internal/llm/provider"
	"github.com/chatcore-dev/chatcore/pkg/config"
	"github.com/chatcore-dev/chatcore/pkg/respond"
	"github.com/chatcore-dev/chatcore/pkg/session"
)

var (
	configFile  = flag.String("config", os.Getenv("CONFIG_FILE"), "Configuration file (YAML)")
	threadID    = flag.String("thread", "repl", "Thread identifier to converse under")
	instruction = flag.String("instruction", "", "System instruction (default: helpful assistant)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

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
	defer func() { _ = sessions.Close() }()

	llm, err := provider.New(cfg.Provider, cfg.ProviderConfig())
	if err != nil {
		log.Fatalf("Provider error: %v", err)
	}
	defer func() { _ = llm.Close() }()

	llmTimeout, _ := cfg.ParseLLMTimeout()
	gen := respond.NewGenerator(llm, sessions, respond.Config{
		Model:      cfg.Model,
		TitleModel: cfg.TitleModel,
		LLMTimeout: llmTimeout,
	})

	ctx := context.Background()
	if *instruction != "" {
		sessions.GetOrCreate(ctx, *threadID, *instruction)
	}

	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)

	fmt.Printf("chatcore repl — provider=%s thread=%s (ctrl-d to quit)\n", llm.Name(), *threadID)

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			fmt.Println()
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		result := gen.SendToSession(ctx, *threadID, input)
		if !result.Success {
			fmt.Printf("! %v\n", result.Err)
			fmt.Println(gen.Fallback().Apply(result))
			continue
		}
		fmt.Println(result.Text)
	}
}
