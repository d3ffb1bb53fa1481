package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"course-rag/internal/chunker"
	"course-rag/internal/config"
	"course-rag/internal/embedding"
	"course-rag/internal/extract"
	"course-rag/internal/helper"
	"course-rag/internal/ingest"
	"course-rag/internal/rag"
	"course-rag/internal/store"
	"course-rag/internal/vision"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	_ = godotenv.Load()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the document file to ingest")
	fileID := flag.Int64("file-id", 1, "File id for the ingested document")
	course := flag.String("course", "", "Course identifier (tenant)")
	user := flag.Int64("user", 1, "Owner user id")
	query := flag.String("query", "", "Query to retrieve passages for")
	topK := flag.Int("top", 0, "Number of passages to retrieve")
	concepts := flag.String("concepts", "", "Comma-separated concept names for the course context")
	summary := flag.String("summary", "", "Course summary to record")
	flag.Parse()

	if *course == "" {
		log.Fatal().Msg("Please provide a course identifier using the -course flag")
	}
	if (*filePath == "") == (*query == "") {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag, but not both")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	embedder := embedding.NewService(cfg.EmbedLLM)
	chunks, contexts, cleanup, err := buildStores(cfg, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error building store")
	}
	defer cleanup()

	ctx := context.Background()
	if *filePath != "" {
		ingestFile(ctx, cfg, embedder, chunks, contexts, *user, *course, *filePath, *fileID, *concepts, *summary)
		return
	}
	k := *topK
	if k <= 0 {
		k = cfg.RAG.TopK
	}
	search(ctx, chunks, embedder, *user, *course, *query, k)
}

func ingestFile(ctx context.Context, cfg *config.Config, embedder *embedding.Service, chunks store.ChunkStore, contexts store.ContextStore, user int64, course, filePath string, fileID int64, concepts, summary string) {
	stat, err := os.Stat(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading document file")
	}

	dispatcher := extract.NewDispatcher(vision.NewClient(cfg.VisionLLM)).
		WithOCRTimeout(time.Duration(cfg.VisionLLM.TimeoutSecs) * time.Second)
	splitter := chunker.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	orchestrator := ingest.NewOrchestrator(dispatcher, splitter, chunks, contexts)

	req := ingest.Request{
		Files: []ingest.FileUpload{{
			Path:   filePath,
			Name:   filepath.Base(filePath),
			FileID: fileID,
			Size:   stat.Size(),
		}},
		Summary: summary,
	}
	if concepts != "" {
		req.Concepts = strings.Split(concepts, ",")
	}

	result, err := orchestrator.Ingest(ctx, user, course, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Error ingesting document")
	}
	helper.PrettyPrint(result)
}

func search(ctx context.Context, chunks store.ChunkStore, embedder *embedding.Service, user int64, course, query string, topK int) {
	retriever := rag.NewRetriever(chunks, embedder)

	if !retriever.HasEnoughContext(ctx, user, course) {
		log.Warn().Str("course", course).Msg("Too few chunks for grounded retrieval, results may be poor")
	}

	results := retriever.Retrieve(ctx, user, course, query, topK)
	log.Info().Int("results", len(results)).Msg("Retrieved passages")
	helper.PrettyPrint(results)
}

func buildStores(cfg *config.Config, embedder *embedding.Service) (store.ChunkStore, store.ContextStore, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		m := store.NewMemoryStore(embedder)
		return m, m, func() {}, nil
	case "postgres":
		sqldb := store.ConnectPG(cfg.Store.DSN, cfg.Store.Password)
		pg := store.NewPGStore(sqldb, cfg.Store.Debug, embedder)
		if err := pg.Init(context.Background()); err != nil {
			return nil, nil, nil, err
		}
		return pg, pg, func() { _ = pg.Close() }, nil
	case "chromem":
		cs, err := store.NewChromemStore(cfg.Store.Path, false, embedder)
		if err != nil {
			return nil, nil, nil, err
		}
		fcs, err := store.NewFileContextStore(filepath.Join(cfg.Store.Path, "contexts"))
		if err != nil {
			return nil, nil, nil, err
		}
		return cs, fcs, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}
