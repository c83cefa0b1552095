package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"textbook-rag-platform/internal/ai"
	"textbook-rag-platform/internal/config"
	"textbook-rag-platform/internal/extract"
	"textbook-rag-platform/internal/logger"
	"textbook-rag-platform/internal/pipeline"
	"textbook-rag-platform/internal/queue"
	"textbook-rag-platform/internal/rag"
	"textbook-rag-platform/internal/store"
	"textbook-rag-platform/internal/telemetry"
	"textbook-rag-platform/models"
)

// app holds the wired components a command needs. Mongo and Gemini are
// connected lazily so catalog commands don't pay for an API client.
type app struct {
	cfg      *config.Config
	store    *store.VectorStore
	gemini   *ai.Client
	shutdown []func()
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger.InitLogger(cfg)

	a := &app{cfg: cfg}
	if cfg.TracingEnabled {
		stop, err := telemetry.InitTracer("textbook-rag", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			a.shutdown = append(a.shutdown, stop)
		}
	}
	return a, nil
}

func (a *app) connectStore() error {
	client, err := config.ConnectMongoDB(a.cfg)
	if err != nil {
		return err
	}
	a.shutdown = append(a.shutdown, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	})
	a.store = store.New(client.Database(a.cfg.DBName), a.cfg)
	return nil
}

func (a *app) connectGemini(ctx context.Context) error {
	client, err := ai.NewClient(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiTier)
	if err != nil {
		return err
	}
	a.shutdown = append(a.shutdown, func() { _ = client.Close() })
	a.gemini = client
	return nil
}

func (a *app) buildIngestor() (*pipeline.Ingestor, error) {
	journal, err := pipeline.NewFailureJournal(a.cfg.LogsDir)
	if err != nil {
		return nil, err
	}
	return pipeline.NewIngestor(
		extract.New(),
		ai.NewTextEmbedder(a.gemini, a.cfg.TextEmbeddingModel),
		ai.NewImageEmbedder(a.gemini, a.cfg.ImageEmbeddingModel, a.cfg.MinImageDim),
		a.store,
		journal,
		a.cfg,
	)
}

func (a *app) buildComposer(ctx context.Context) (*rag.Composer, error) {
	aliases, err := rag.LoadAliases(a.cfg.AliasTablePath)
	if err != nil {
		return nil, err
	}

	var cache *rag.QueryCache
	if rdb, err := config.NewRedisClient(a.cfg); err != nil {
		logger.Warn("retrieval cache disabled", "error", err)
	} else {
		a.shutdown = append(a.shutdown, func() { _ = rdb.Close() })
		cache = rag.NewQueryCache(rdb, time.Duration(a.cfg.CacheTTLSecs)*time.Second)
	}

	retriever := rag.NewRetriever(
		a.store,
		ai.NewTextEmbedder(a.gemini, a.cfg.TextEmbeddingModel),
		ai.NewImageEmbedder(a.gemini, a.cfg.ImageEmbeddingModel, a.cfg.MinImageDim),
		aliases,
		cache,
		a.cfg.TextEmbeddingModel,
		a.cfg.ImageEmbeddingModel,
		a.cfg.DefaultTopK,
	)
	return rag.NewComposer(retriever, a.gemini, a.cfg.AnswerModel, a.cfg.AnswerMaxTokens, a.cfg.AnswerTemperature), nil
}

func (a *app) close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
}

func (a *app) enqueue(task *asynq.Task) error {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     a.cfg.RedisURL,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	defer client.Close()

	info, err := client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	fmt.Printf("enqueued task %s (id=%s)\n", task.Type(), info.ID)
	return nil
}

func buildFilterFlags(subject, semester, book, source, modality string) map[string]any {
	filter := map[string]any{}
	if subject != "" {
		filter["subject"] = subject
	}
	if semester != "" {
		filter["semester"] = semester
	}
	if book != "" {
		filter["book_title"] = book
	}
	if source != "" {
		filter["source_path"] = source
	}
	if modality != "" {
		filter["modality"] = modality
	}
	return filter
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	root := &cobra.Command{
		Use:           "textbook-rag",
		Short:         "Ingest textbook PDFs and answer questions over them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		ingestCmd(),
		reingestCmd(),
		askCmd(),
		deleteCmd(),
		listCmd(),
		semestersCmd(),
		subjectsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func ingestCmd() *cobra.Command {
	var subject, semester, book string
	var asImage, viaQueue bool

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest one PDF (or a standalone image with --image)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			item := models.SourceItem{
				Subject:    subject,
				Semester:   semester,
				BookTitle:  book,
				SourcePath: args[0],
			}

			if viaQueue {
				task, err := queue.NewIngestPDFTask(item, asImage)
				if err != nil {
					return err
				}
				return a.enqueue(task)
			}

			ctx := cmd.Context()
			if err := a.connectStore(); err != nil {
				return err
			}
			if err := a.connectGemini(ctx); err != nil {
				return err
			}
			ingestor, err := a.buildIngestor()
			if err != nil {
				return err
			}

			var result pipeline.ItemResult
			if asImage {
				result = ingestor.IngestImageFile(ctx, item)
			} else {
				result = ingestor.IngestBatch(ctx, []models.SourceItem{item})[0]
			}
			if result.Status == models.StatusFailed {
				return result.Err
			}
			fmt.Printf("ingested %s: %d text chunks, %d images\n",
				item.SourcePath, result.TextChunks, result.Images)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "subject the file belongs to")
	cmd.Flags().StringVar(&semester, "semester", "", "semester the file belongs to")
	cmd.Flags().StringVar(&book, "book", "", "book title")
	cmd.Flags().BoolVar(&asImage, "image", false, "treat the file as a standalone image")
	cmd.Flags().BoolVar(&viaQueue, "enqueue", false, "run in the background worker instead of inline")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("semester")
	_ = cmd.MarkFlagRequired("book")
	return cmd
}

func reingestCmd() *cobra.Command {
	var rootDir string
	var viaQueue bool

	cmd := &cobra.Command{
		Use:   "reingest",
		Short: "Rescan the data root and ingest every PDF found",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if rootDir == "" {
				rootDir = a.cfg.RawDataDir
			}

			if viaQueue {
				task, err := queue.NewReingestTask(rootDir)
				if err != nil {
					return err
				}
				return a.enqueue(task)
			}

			items, err := pipeline.DiscoverItems(rootDir)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("no PDFs found under", rootDir)
				return nil
			}

			ctx := cmd.Context()
			if err := a.connectStore(); err != nil {
				return err
			}
			if err := a.connectGemini(ctx); err != nil {
				return err
			}
			ingestor, err := a.buildIngestor()
			if err != nil {
				return err
			}

			results := ingestor.IngestBatch(ctx, items)
			done, failed := 0, 0
			for _, r := range results {
				if r.Status == models.StatusFailed {
					failed++
				} else {
					done++
				}
			}
			fmt.Printf("reingest finished: %d ok, %d failed (see %s)\n",
				done, failed, a.cfg.LogsDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&rootDir, "root", "", "data root to scan (defaults to configured raw dir)")
	cmd.Flags().BoolVar(&viaQueue, "enqueue", false, "run in the background worker instead of inline")
	return cmd
}

func askCmd() *cobra.Command {
	var subject, semester, book string
	var topK int
	var universal bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested textbooks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.connectStore(); err != nil {
				return err
			}
			if err := a.connectGemini(ctx); err != nil {
				return err
			}
			composer, err := a.buildComposer(ctx)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")

			var answer *rag.Answer
			if universal {
				answer, err = composer.AskUniversal(ctx, query, topK)
			} else {
				answer, err = composer.Ask(ctx, query, rag.Options{
					TopK:      topK,
					Subject:   subject,
					Semester:  semester,
					BookTitle: book,
				})
			}
			if err != nil {
				return err
			}
			return printJSON(answer)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "restrict to one subject (alias-expanded)")
	cmd.Flags().StringVar(&semester, "semester", "", "restrict to one semester")
	cmd.Flags().StringVar(&book, "book", "", "restrict to one book title")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve (defaults to configured value)")
	cmd.Flags().BoolVar(&universal, "universal", false, "search the whole corpus, ignoring subject/semester")
	return cmd
}

func deleteCmd() *cobra.Command {
	var subject, semester, book, source, modality string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete stored records matching the given filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := buildFilterFlags(subject, semester, book, source, modality)
			if len(filter) == 0 {
				return fmt.Errorf("at least one filter flag is required")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.connectStore(); err != nil {
				return err
			}

			ctx := cmd.Context()
			var textDeleted, imageDeleted int64
			if modality == "" || modality == models.ModalityText {
				textDeleted, err = a.store.DeleteText(ctx, filter)
				if err != nil {
					return err
				}
			}
			if modality == "" || modality == models.ModalityImage {
				imageDeleted, err = a.store.DeleteImages(ctx, filter)
				if err != nil {
					return err
				}
			}
			fmt.Printf("deleted %d text chunks, %d image records\n", textDeleted, imageDeleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "filter by subject")
	cmd.Flags().StringVar(&semester, "semester", "", "filter by semester")
	cmd.Flags().StringVar(&book, "book", "", "filter by book title")
	cmd.Flags().StringVar(&source, "source", "", "filter by source path")
	cmd.Flags().StringVar(&modality, "modality", "", "text or image (default both)")
	return cmd
}

func listCmd() *cobra.Command {
	var subject, semester, book, source, modality string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored records matching the given filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.connectStore(); err != nil {
				return err
			}

			filter := buildFilterFlags(subject, semester, book, source, "")
			ctx := cmd.Context()

			var hits []store.QueryHit
			var err2 error
			if modality == models.ModalityImage {
				hits, err2 = a.store.ListImages(ctx, filter, limit)
			} else {
				hits, err2 = a.store.ListText(ctx, filter, limit)
			}
			if err2 != nil {
				return err2
			}
			return printJSON(hits)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "filter by subject")
	cmd.Flags().StringVar(&semester, "semester", "", "filter by semester")
	cmd.Flags().StringVar(&book, "book", "", "filter by book title")
	cmd.Flags().StringVar(&source, "source", "", "filter by source path")
	cmd.Flags().StringVar(&modality, "modality", models.ModalityText, "text or image")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to return")
	return cmd
}

func semestersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "semesters",
		Short: "List semesters present in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.connectStore(); err != nil {
				return err
			}

			semesters, err := a.store.Semesters(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(semesters)
		},
	}
}

func subjectsCmd() *cobra.Command {
	var semester string

	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "List subjects present in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.connectStore(); err != nil {
				return err
			}

			subjects, err := a.store.Subjects(cmd.Context(), semester)
			if err != nil {
				return err
			}
			return printJSON(subjects)
		},
	}

	cmd.Flags().StringVar(&semester, "semester", "", "restrict to one semester")
	return cmd
}
