// Command meetgraph-ingest reads meeting transcript files and ingests them
// into the knowledge graph: extraction, entity resolution, state tracking,
// and memory indexing. Multiple files are processed in parallel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/macconnolly/meetgraph/internal/config"
	"github.com/macconnolly/meetgraph/internal/embedding"
	"github.com/macconnolly/meetgraph/internal/extract"
	"github.com/macconnolly/meetgraph/internal/llm"
	"github.com/macconnolly/meetgraph/internal/process"
	"github.com/macconnolly/meetgraph/internal/resolver"
	"github.com/macconnolly/meetgraph/internal/storage"
	"github.com/macconnolly/meetgraph/internal/storage/postgres"
	"github.com/macconnolly/meetgraph/internal/storage/sqlite"
	"github.com/macconnolly/meetgraph/pkg/types"
)

var (
	configPath  = flag.String("config", "", "Path to config file (optional, uses env vars by default)")
	title       = flag.String("title", "", "Meeting title (single file only; defaults to the file name)")
	date        = flag.String("date", "", "Meeting date in YYYY-MM-DD (defaults to now)")
	concurrency = flag.Int("concurrency", 4, "Maximum transcripts processed in parallel")
)

func main() {
	flag.Parse()
	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: meetgraph-ingest [flags] transcript.txt ...")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *title != "" && len(files) > 1 {
		log.Fatal("-title can only be used with a single file")
	}

	meetingDate := time.Now().UTC()
	if *date != "" {
		parsed, err := time.Parse("2006-01-02", *date)
		if err != nil {
			log.Fatalf("Invalid -date %q: %v", *date, err)
		}
		meetingDate = parsed
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
	res := resolver.New(store, stores, encoder, processor, cfg.Resolution)
	extractor := extract.New(processor)
	pipeline := process.New(store, stores, encoder, res, processor)

	ctx := context.Background()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			return ingestFile(gctx, file, meetingDate, store, extractor, pipeline)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Ingestion failed: %v", err)
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
	encoder := embedding.NewEncoder(cfg.Embedding.MaxLength)

	switch cfg.Storage.Engine {
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		vectors, err := postgres.NewVectorStore(store.GetDB(), encoder.Dimension())
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, vectors, nil
	default:
		if dir := filepath.Dir(cfg.Storage.RelationalPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
		store, err := sqlite.NewStore(cfg.Storage.RelationalPath)
		if err != nil {
			return nil, nil, err
		}
		return store, sqlite.NewVectorStore(store.GetDB(), encoder.Dimension()), nil
	}
}

// ingestFile runs extract, save, and process for one transcript file.
func ingestFile(ctx context.Context, path string, meetingDate time.Time, store storage.Store, extractor *extract.Extractor, pipeline *process.Processor) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	meetingID := uuid.NewString()
	meetingTitle := *title
	if meetingTitle == "" {
		meetingTitle = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	known, err := store.GetAllEntities(ctx, "", 200, 0)
	if err != nil {
		return fmt.Errorf("load known entities: %w", err)
	}

	result, err := extractor.Extract(ctx, string(data), meetingID, nil, known)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}

	if err := store.SaveMeeting(ctx, &types.Meeting{
		ID:           meetingID,
		Title:        meetingTitle,
		Transcript:   string(data),
		Date:         meetingDate,
		Participants: result.Metadata.Participants,
		Summary:      result.Metadata.Summary,
		Topics:       result.Metadata.Topics,
		Decisions:    result.Metadata.Decisions,
		ActionItems:  result.Metadata.ActionItems,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("save meeting %s: %w", path, err)
	}

	summary, err := pipeline.ProcessExtraction(ctx, result, meetingID)
	if err != nil {
		return fmt.Errorf("process %s: %w", path, err)
	}

	printSummary(path, meetingID, result, summary)
	return nil
}

// printSummary writes the structured ingestion report for one file.
func printSummary(path, meetingID string, result *types.ExtractionResult, summary *process.Summary) {
	fmt.Printf("%s (meeting %s)\n", path, meetingID)
	fmt.Printf("  extraction:    %s\n", result.Metadata.ExtractionMethod)
	if result.Metadata.ExtractionError != "" {
		fmt.Printf("  degraded:      %s\n", result.Metadata.ExtractionError)
	}
	fmt.Printf("  memories:      %d\n", summary.MemoriesSaved)
	fmt.Printf("  entities:      %d (%d new)\n", summary.EntitiesProcessed, summary.EntitiesCreated)
	fmt.Printf("  states:        %d captured, %d transitions\n", summary.StatesCaptured, summary.TransitionsCreated)
	fmt.Printf("  relationships: %d\n", summary.RelationshipsSaved)
	if len(summary.NoStateEntities) > 0 {
		fmt.Printf("  no state:      %s\n", strings.Join(summary.NoStateEntities, ", "))
	}
	for _, msg := range summary.ConsistencyErrors {
		fmt.Printf("  consistency:   %s\n", msg)
	}
	for _, msg := range summary.Errors {
		fmt.Printf("  error:         %s\n", msg)
	}
}
