// Package main provides the MuninDB CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/munindb/pkg/config"
	"github.com/orneryd/munindb/pkg/graph"
	"github.com/orneryd/munindb/pkg/query"
	"github.com/orneryd/munindb/pkg/vector"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "munindb",
		Short: "MuninDB - Property-Graph Data Engine",
		Long: `MuninDB is an embedded property-graph engine written in Go:
typed nodes and relationships, a Cypher-flavored query subset,
graph analytics and embedding-backed similarity search.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("engine", "", "Storage engine: memory or badger (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MuninDB v%s (%s)\n", version, commit)
		},
	})

	queryCmd := &cobra.Command{
		Use:   "query <statement>",
		Short: "Execute a query statement",
		Long: `Execute one MATCH/CREATE/UPDATE/DELETE statement and print the
result as JSON.

Example:
  munindb query 'MATCH (a:Person)-[:KNOWS]->(b) RETURN a.name, b.name'`,
		Args: cobra.ExactArgs(1),
		RunE: runQuery,
	}
	rootCmd.AddCommand(queryCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run the integrity check and print the report",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	})

	exportCmd := &cobra.Command{
		Use:   "export <root-id> [root-id...]",
		Short: "Export a subgraph rooted at the given node ids",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().Int("depth", 1, "Traversal depth in edge hops")
	exportCmd.Flags().String("format", "dump", "Output format: dump, script or graph")
	exportCmd.Flags().StringSlice("types", nil, "Restrict traversal to these node types")
	rootCmd.AddCommand(exportCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print node and edge counts",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore builds the configured engine, vectorizer and store. The
// returned closer releases the engine.
func openStore(cmd *cobra.Command) (*graph.Store, func() error, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		cfg.Engine = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var engine graph.Engine
	switch cfg.Engine {
	case config.EngineBadger:
		engine, err = graph.NewBadgerEngine(graph.BadgerOptions{DataDir: cfg.DataDir})
		if err != nil {
			return nil, nil, err
		}
	default:
		engine = graph.NewMemoryEngine()
	}

	var vectorizer graph.Vectorizer
	if cfg.Embedding.Provider != "" {
		embedder, err := vector.NewEmbedder(&vector.ProviderConfig{
			Provider:   cfg.Embedding.Provider,
			APIURL:     cfg.Embedding.APIURL,
			APIPath:    providerPath(cfg.Embedding.Provider),
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			_ = engine.Close()
			return nil, nil, err
		}
		cached := vector.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
		vectorizer = vector.NewNodeEmbedder(cached, cfg.Embedding.ByteLimit)
	}

	store := graph.NewStore(engine, vectorizer, graph.StoreOptions{
		StandaloneTypes: cfg.StandaloneTypes,
	})
	return store, engine.Close, nil
}

func providerPath(provider string) string {
	if provider == "openai" {
		return "/v1/embeddings"
	}
	return "/api/embeddings"
}

func runQuery(cmd *cobra.Command, args []string) error {
	store, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer()

	result, err := query.NewEngine(store).Execute(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runCheck(cmd *cobra.Command, args []string) error {
	store, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer()

	report, err := store.CheckIntegrity()
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.Healthy {
		return fmt.Errorf("integrity check found structural issues")
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	store, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer()

	depth, _ := cmd.Flags().GetInt("depth")
	format, _ := cmd.Flags().GetString("format")
	types, _ := cmd.Flags().GetStringSlice("types")

	roots := make([]graph.NodeID, len(args))
	for i, arg := range args {
		roots[i] = graph.NodeID(arg)
	}

	sub, err := store.ExtractSubgraph(roots, graph.SubgraphOptions{Depth: depth, Types: types})
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "dump":
		data, err := sub.ExportJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "script":
		fmt.Print(sub.ExportScript())
	case "graph":
		return printJSON(sub.ExportGraphDoc())
	default:
		return fmt.Errorf("unknown export format %q (want dump, script or graph)", format)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	store, closer, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer closer()

	nodes, err := store.Engine().NodeCount()
	if err != nil {
		return err
	}
	edges, err := store.Engine().EdgeCount()
	if err != nil {
		return err
	}
	return printJSON(map[string]int64{"nodes": nodes, "edges": edges})
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
