// Command meetgraph-query answers one natural-language question against
// the knowledge graph and prints the answer with its intent, confidence,
// and follow-up suggestions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/macconnolly/meetgraph/internal/config"
	"github.com/macconnolly/meetgraph/internal/embedding"
	"github.com/macconnolly/meetgraph/internal/llm"
	"github.com/macconnolly/meetgraph/internal/query"
	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/internal/storage/postgres"
	"github.com/macconnolly/meetgraph/internal/storage/sqlite"
)

var (
	configPath = flag.String("config", "", "Path to config file (optional, uses env vars by default)")
	jsonOut    = flag.Bool("json", false, "Print the full result as JSON")
)

func main() {
	flag.Parse()
	q := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if q == "" {
		fmt.Fprintln(os.Stderr, "usage: meetgraph-query [flags] \"your question\"")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, vectors, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()
	defer vectors.Close()

	encoder := embedding.NewEncoder(cfg.Embedding.MaxLength)
	stores := storage.NewStores(store, vectors)
	stores.MemoriesCollection = cfg.Storage.MemoriesCollection
	stores.EntitiesCollection = cfg.Storage.EntitiesCollection

	client := llm.NewClient(cfg.LLM, cfg.Network)
	processor := llm.NewProcessor(client, time.Duration(cfg.LLM.CacheTTLSec)*time.Second)
	engine := query.New(store, stores, encoder, processor, cfg.Query)

	result, err := engine.Answer(context.Background(), q)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	if *jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Println(result.Answer)
	fmt.Printf("\n[intent: %s, confidence: %.2f]\n", result.Intent, result.Confidence)
	if len(result.Entities) > 0 {
		fmt.Printf("[entities: %s]\n", strings.Join(result.Entities, ", "))
	}
	if len(result.FollowUps) > 0 {
		fmt.Println("\nYou could also ask:")
		for _, f := range result.FollowUps {
			fmt.Printf("  - %s\n", f)
		}
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadConfigFile(*configPath)
	}
	return config.LoadConfig()
}

// openStorage opens the configured relational and vector backends.
func openStorage(cfg *config.Config) (storage.Store, storage.VectorStore, error) {
	dim := embedding.NewEncoder(cfg.Embedding.MaxLength).Dimension()

	switch cfg.Storage.Engine {
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		vectors, err := postgres.NewVectorStore(store.GetDB(), dim)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, vectors, nil
	default:
		store, err := sqlite.NewStore(cfg.Storage.RelationalPath)
		if err != nil {
			return nil, nil, err
		}
		return store, sqlite.NewVectorStore(store.GetDB(), dim), nil
	}
}
