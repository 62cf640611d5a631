package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"guidegraph/internal/config"
	"guidegraph/internal/embedding"
	"guidegraph/internal/enrich"
	"guidegraph/internal/graphstore"
	"guidegraph/internal/llm"
	"guidegraph/internal/observability"
	"guidegraph/internal/pipeline"
	"guidegraph/internal/report"
	"guidegraph/internal/stages"
	"guidegraph/internal/state"
	"guidegraph/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the extraction pipeline for one guideline",
	Long: `Runs the stage sequence for one guideline: structure_pdf -> extract_entities -> extract_studies -> enrich_citations -> embed_sections -> infer_links -> populate_graph.

A run resumes from the previous manifest: stages that already succeeded are not re-executed unless --start-from names them. A review report is written after every run, including failed ones.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath  string
	runStartFrom   string
	runStopAfter   string
	runVerbose     bool
	runDatabaseURL string
)

func init() {
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to guideline config YAML (required)")
	runCommand.Flags().StringVar(&runStartFrom, "start-from", "", "First stage to execute; earlier stages must have prior artifacts")
	runCommand.Flags().StringVar(&runStopAfter, "stop-after", "", "Last stage to execute (inclusive)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed per-stage information")
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL for the graph (optional, defaults to DATABASE_URL env var)")
	_ = runCommand.MarkFlagRequired("config")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		return fmt.Errorf("%s environment variable is required", cfg.APIKeyEnv)
	}

	if err := os.MkdirAll(cfg.WorkspaceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	store, err := state.Open(cfg.StatePath(), cfg.EmbeddingDims)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), apiKey)
	if err != nil {
		return err
	}
	defer client.Close()

	embedder := embedding.NewLocalProvider(cfg.EmbeddingDims)

	// The graph store is only reached by the final stage, so a run bounded
	// before populate_graph works without a database.
	var graph graphstore.Store
	if cfg.DatabaseURL != "" {
		pg, err := graphstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.InitSchema(ctx); err != nil {
			return err
		}
		graph = pg
	} else if runStopAfter == "" || runStopAfter == stages.StagePopulateGraph {
		return fmt.Errorf("DATABASE_URL or --db-url is required to run %s; use --stop-after to run without a graph database", stages.StagePopulateGraph)
	}

	deps := &stages.Deps{
		Config:   cfg,
		Store:    store,
		LLM:      client,
		Resolver: enrich.NewCrossrefResolver(cfg.CrossrefBaseURL),
		Embedder: embedder,
		Graph:    graph,
		Printer:  observability.NewPrinter(os.Stdout),
	}
	registry := pipeline.NewRegistry()
	if err := stages.Register(registry, deps); err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(registry, store, os.Stdout)
	manifest, runErr := orch.Run(ctx, pipeline.RunRequest{
		GuidelineID: cfg.GuidelineID,
		StartFrom:   runStartFrom,
		StopAfter:   runStopAfter,
	})

	if manifest != nil {
		if cfg.Verbose {
			deps.Printer.PrintManifest(manifest)
		}
		if err := writeReviewReport(ctx, cfg, store, embedder, manifest.RunID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write review report: %v\n", err)
		}
	}

	return runErr
}

// writeReviewReport assembles the review report from whatever artifacts
// exist. A run that failed before inference still reports its failed items.
func writeReviewReport(ctx context.Context, cfg *config.Config, store *state.Store, embedder embedding.Provider, runID string) error {
	var links types.LinkSet
	if err := store.LoadArtifact(ctx, cfg.GuidelineID, stages.StageInferLinks, &links); err != nil && !errors.Is(err, state.ErrNoArtifact) {
		return err
	}
	var resolutions []enrich.Resolution
	if err := store.LoadArtifact(ctx, cfg.GuidelineID, stages.StageEnrichCitations, &resolutions); err != nil && !errors.Is(err, state.ErrNoArtifact) {
		return err
	}

	gen := report.NewGenerator(store, embedder)
	r, err := gen.Generate(ctx, cfg.GuidelineID, runID, links, resolutions)
	if err != nil {
		return err
	}
	path, err := report.Write(cfg.ReportDir(), r)
	if err != nil {
		return err
	}
	fmt.Printf("Review report: %s\n", path)
	return nil
}
