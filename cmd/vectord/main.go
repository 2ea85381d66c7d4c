// Package main implements the vectord CLI for indexing and querying the
// vector store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectord/internal/config"
	"github.com/fyrsmithlabs/vectord/internal/embeddings"
	"github.com/fyrsmithlabs/vectord/internal/engine"
	"github.com/fyrsmithlabs/vectord/internal/logging"
	"github.com/fyrsmithlabs/vectord/internal/vectorstore"
)

var (
	configPath string
	tenantID   string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vectord",
	Short:   "Vector similarity search and retrieval engine",
	Long:    `vectord indexes documents into a local or Qdrant-backed vector store and retrieves them by cosine similarity.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/vectord/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant scope for the operation")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(deleteCmd)
}

// openEngine builds the engine from the loaded config.
func openEngine() (*engine.Engine, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		Backend: cfg.Backend,
		Embedding: embeddings.ChainConfig{
			Provider:        cfg.Embedding.Provider,
			Model:           cfg.Embedding.Model,
			CacheDir:        cfg.Embedding.CacheDir,
			RemoteURL:       cfg.Embedding.RemoteURL,
			Timeout:         cfg.Embedding.Timeout,
			HostedModel:     cfg.Qdrant.HostedModel,
			HostedDimension: cfg.Qdrant.HostedDimension,
		},
		Local: vectorstore.LocalConfig{
			Path:      cfg.Snapshot.Path,
			Dimension: cfg.Embedding.Dimension,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:         cfg.Qdrant.Host,
			Port:         cfg.Qdrant.Port,
			Collection:   cfg.Qdrant.Collection,
			VectorSize:   uint64(cfg.Embedding.Dimension),
			UseTLS:       cfg.Qdrant.UseTLS,
			QueryTimeout: cfg.Qdrant.QueryTimeout,
			MaxRetries:   cfg.Qdrant.MaxRetries,
		},
	}, logger)
	if err != nil {
		_ = logging.Sync(logger)
		return nil, nil, err
	}
	return eng, logger, nil
}

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Index a document",
	Long: `Index a document into the vector store.

Examples:
  # Add a document
  vectord add "Go's race detector finds data races at runtime"

  # Add with a stable id (idempotent re-indexing)
  vectord add --id doc-42 "updated text"

  # Add with metadata and a tenant
  vectord add --tenant acme --meta source=wiki "tenant-scoped text"`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var (
	addID   string
	addMeta []string
)

func init() {
	addCmd.Flags().StringVar(&addID, "id", "", "logical document id (enables upsert)")
	addCmd.Flags().StringArrayVar(&addMeta, "meta", nil, "metadata entry key=value (repeatable)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	eng, logger, err := openEngine()
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
		_ = logging.Sync(logger)
	}()

	metadata := make(map[string]interface{})
	for _, entry := range addMeta {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("invalid --meta entry %q (expected key=value)", entry)
		}
		metadata[k] = v
	}
	if tenantID != "" {
		metadata[vectorstore.MetaTenantID] = tenantID
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if addID != "" {
		if err := eng.UpsertDocument(ctx, addID, args[0], metadata); err != nil {
			return err
		}
		fmt.Printf("upserted %s\n", addID)
		return nil
	}

	h, err := eng.AddDocument(ctx, args[0], metadata)
	if err != nil {
		return err
	}
	fmt.Printf("added %s\n", h)
	return nil
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search for similar documents",
	Long: `Search the vector store for documents similar to the query.

Examples:
  # Top 5 matches above similarity 0.7 (defaults)
  vectord search "how does garbage collection work"

  # Looser search
  vectord search --top-k 10 --threshold 0.5 "goroutine scheduling"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var (
	searchTopK      int
	searchThreshold float64
)

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "maximum results (default 5)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity (default 0.7)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	eng, logger, err := openEngine()
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
		_ = logging.Sync(logger)
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	matches := eng.SearchSimilar(ctx, args[0], engine.SearchOptions{
		TopK:      searchTopK,
		Threshold: float32(searchThreshold),
		TenantID:  tenantID,
	})

	if len(matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for i, m := range matches {
		fmt.Printf("%d. [%.4f] %s\n", i+1, m.Score, m.Text)
	}
	return nil
}

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Assemble RAG context for a query",
	Long: `Retrieve the most relevant documents and assemble them into a context
block suitable for prompting.

Examples:
  vectord context "error handling conventions"
  vectord context --max-length 2000 "error handling conventions"`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

var contextMaxLength int

func init() {
	contextCmd.Flags().IntVar(&contextMaxLength, "max-length", 0, "context budget in characters (default 1000)")
}

func runContext(cmd *cobra.Command, args []string) error {
	eng, logger, err := openEngine()
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
		_ = logging.Sync(logger)
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fmt.Println(eng.GetContextForRAG(ctx, args[0], contextMaxLength, tenantID))
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	eng, logger, err := openEngine()
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
		_ = logging.Sync(logger)
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	stats, err := eng.Stats(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id-or-position]",
	Short: "Delete a document",
	Long: `Delete a document by logical id, or by position for the local backend.

Examples:
  vectord delete doc-42
  vectord delete --position 3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDelete,
}

var deletePosition int

func init() {
	deleteCmd.Flags().IntVar(&deletePosition, "position", -1, "local record position")
}

func runDelete(cmd *cobra.Command, args []string) error {
	eng, logger, err := openEngine()
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
		_ = logging.Sync(logger)
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if deletePosition >= 0 {
		if err := eng.DeleteDocument(ctx, vectorstore.PositionHandle(deletePosition)); err != nil {
			return err
		}
		fmt.Printf("deleted #%d\n", deletePosition)
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("an id argument or --position is required")
	}
	if err := eng.DeleteDocumentByID(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}
