package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mikeboe/research-analyst/pkg/app"
	"github.com/mikeboe/research-analyst/pkg/config"
	"github.com/mikeboe/research-analyst/pkg/ingest"
	"github.com/mikeboe/research-analyst/pkg/research"
	"github.com/spf13/cobra"
)

var (
	query  string
	source string
	title  string
)

func main() {
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "research-analyst",
		Short: "A terminal-based research analyst",
		Long:  `research-analyst retrieves vector and graph evidence for a question, decides whether it is sufficient and synthesizes research directions when it is.`,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the evidence pipeline for a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("query") {
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Enter research question: ")
				input, _ := reader.ReadString('\n')
				query = input
			}
			query = strings.TrimSpace(query)
			if query == "" {
				return research.ErrEmptyQuery
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			state, err := a.NewAnalyst().Run(cmd.Context(), query)
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}
	analyzeCmd.Flags().StringVarP(&query, "query", "q", "", "The research question")

	ingestCmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Split, embed and store text files as evidence chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				src, name := source, title
				if src == "" {
					src = path
				}
				if name == "" {
					name = filepath.Base(path)
				}
				n, err := a.Indexer.IndexText(cmd.Context(), src, name, string(data))
				if err != nil {
					return err
				}
				slog.Info("Indexed file", "path", path, "chunks", n, "collection", a.Vectors.TableName())
			}
			return nil
		},
	}
	ingestCmd.Flags().StringVarP(&source, "source", "s", "", "Source recorded in chunk metadata (defaults to the file path)")
	ingestCmd.Flags().StringVarP(&title, "title", "t", "", "Title recorded in chunk metadata (defaults to the file name)")

	triplesCmd := &cobra.Command{
		Use:   "triples <file.jsonl|->",
		Short: "Load knowledge-graph triples from JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			triples, err := ingest.ReadTriples(r)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := ingest.StoreTriples(cmd.Context(), a.Graph, triples); err != nil {
				return err
			}
			total, err := a.Graph.Count(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("Stored triples", "read", len(triples), "total", total)
			return nil
		},
	}

	rootCmd.AddCommand(analyzeCmd, ingestCmd, triplesCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func printState(w io.Writer, s *research.ResearchState) {
	fmt.Fprintf(w, "\nDecision: %s (avg score %.3f, %d chunks, %d triples)\n", s.AnalysisDecision, s.AvgScore, len(s.VectorResults), len(s.GraphResults))
	if s.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", s.Reason)
	}
	if s.SynthesisOutput != "" {
		fmt.Fprintf(w, "\n%s\n", s.SynthesisOutput)
	}
}
