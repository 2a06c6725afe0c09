// Copyright 2026 Scrivano Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/scrivano/scrivano"
	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/ai/openai"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/reindex"
	"github.com/scrivano/scrivano/storage/badger"
)

func main() {
	app := &cli.App{
		Name:  "scrivano",
		Usage: "Schema-driven extraction and aggregation for archival documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Extract records from documents against a JSON Schema",
				ArgsUsage: "FILE_OR_DIR [FILE_OR_DIR...]",
				Action:    runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "schema",
						Aliases:  []string{"s"},
						Usage:    "Path to the JSON Schema file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to a YAML configuration file",
					},
					&cli.StringFlag{
						Name:  "host",
						Usage: "Capability service host URL for both models",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
					},
					&cli.StringFlag{
						Name:  "extraction-model",
						Usage: "Extraction model name",
					},
				},
			},
			{
				Name:      "show",
				Usage:     "Print the stored record for a document and schema",
				ArgsUsage: "FILE",
				Action:    showCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "schema",
						Aliases:  []string{"s"},
						Usage:    "Path to the JSON Schema file",
						Required: true,
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Recompute all chunk vectors with a new embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Aliases:  []string{"d"},
						Usage:    "Path to BadgerDB database directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Maximum attempts for failed embedding calls",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() == 0 {
		return fmt.Errorf("at least one document file or directory is required")
	}

	schemaRaw, err := os.ReadFile(c.String("schema"))
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	docs, err := loadDocuments(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents found under the given paths")
	}

	// File config first, flags on top.
	fileConfig := &FileConfig{}
	if path := c.String("config"); path != "" {
		fileConfig, err = LoadFileConfig(path)
		if err != nil {
			return err
		}
	}

	aiOpts := []ai.ConfigOption{ai.WithHost(c.String("host"))}
	if fileConfig.Host != "" {
		aiOpts = append(aiOpts, ai.WithHost(fileConfig.Host))
	}
	if fileConfig.EmbeddingHost != "" {
		aiOpts = append(aiOpts, ai.WithEmbeddingHost(fileConfig.EmbeddingHost))
	}
	if fileConfig.ExtractionHost != "" {
		aiOpts = append(aiOpts, ai.WithExtractionHost(fileConfig.ExtractionHost))
	}
	if fileConfig.EmbeddingModel != "" {
		aiOpts = append(aiOpts, ai.WithEmbeddingModel(fileConfig.EmbeddingModel))
	}
	if fileConfig.ExtractionModel != "" {
		aiOpts = append(aiOpts, ai.WithExtractionModel(fileConfig.ExtractionModel))
	}
	timeout, err := fileConfig.Timeout()
	if err != nil {
		return err
	}
	if timeout > 0 {
		aiOpts = append(aiOpts, ai.WithRequestTimeout(timeout))
	}
	if model := c.String("embedding-model"); model != "" {
		aiOpts = append(aiOpts, ai.WithEmbeddingModel(model))
	}
	if model := c.String("extraction-model"); model != "" {
		aiOpts = append(aiOpts, ai.WithExtractionModel(model))
	}

	aiConfig := ai.NewConfig(aiOpts...)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	pipelineOpts, err := fileConfig.PipelineOptions()
	if err != nil {
		return err
	}

	engine, err := scrivano.NewEngine(c.String("db"),
		scrivano.WithAIConfig(aiConfig),
		scrivano.WithPipelineOptions(pipelineOpts...),
	)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer engine.Close()

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Schema: %s\n", c.String("schema"))
	fmt.Fprintf(os.Stderr, "Documents: %d\n", len(docs))
	fmt.Fprintln(os.Stderr)

	records, runErr := engine.RunAll(ctx, docs, schemaRaw)

	if err := printRecords(records); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("extraction finished with failures: %w", runErr)
	}
	return nil
}

func showCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() != 1 {
		return fmt.Errorf("exactly one document file is required")
	}

	schemaRaw, err := os.ReadFile(c.String("schema"))
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	docs, err := loadDocuments(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(docs) != 1 {
		return fmt.Errorf("expected one document, found %d", len(docs))
	}

	store, err := badger.OpenStore(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	record, err := store.Records().GetRecord(ctx, docs[0].Id, core.SchemaID(schemaRaw))
	if err != nil {
		return fmt.Errorf("failed to load record: %w", err)
	}

	return printRecords([]*core.Record{record})
}

func reindexCommand(c *cli.Context) error {
	ctx := context.Background()

	store, err := badger.OpenStore(c.String("db"), false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	embedder, err := openai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	config := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxAttempts:    c.Int("max-attempts"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxAttempts <= 0 {
		return fmt.Errorf("max-attempts must be greater than 0")
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(os.Stderr)

	r := reindex.NewReindexer(store.Chunks(), store.Vectors(), embedder, c.String("embedding-model"), config, os.Stderr)
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

// loadDocuments reads the given files and directories into documents.
// Directories are walked recursively; only .txt and .md files are taken.
// Document identity is a content hash, so re-running over unchanged files
// reuses stored chunks and vectors.
func loadDocuments(paths []string) ([]*core.Document, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(p)) {
			case ".txt", ".md":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}

	docs := make([]*core.Document, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		docs = append(docs, &core.Document{
			Id:      core.IDFromContent(string(data)),
			RawText: string(data),
			Metadata: map[string]string{
				"filename": filepath.Base(file),
				"path":     file,
			},
		})
	}
	return docs, nil
}

// recordOutput is the JSON shape printed for one record.
type recordOutput struct {
	DocumentId uint64                          `json:"document_id"`
	SchemaId   uint64                          `json:"schema_id"`
	RunId      string                          `json:"run_id"`
	Values     map[string]core.AggregatedValue `json:"values"`
	Issues     []core.ValidationIssue          `json:"issues"`
}

func printRecords(records []*core.Record) error {
	out := make([]recordOutput, len(records))
	for i, record := range records {
		out[i] = recordOutput{
			DocumentId: uint64(record.DocumentId),
			SchemaId:   uint64(record.SchemaId),
			RunId:      record.RunId,
			Values:     record.Values,
			Issues:     record.Issues,
		}
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
