package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/lectern/chunk"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/ingestion"
)

// chunkingOverride returns the per-upload chunking settings when any
// chunking flag is set, starting from defaults.
func chunkingOverride(c *cli.Context, defaults chunk.Config) (*chunk.Config, error) {
	if !c.IsSet("strategy") && !c.IsSet("chunk-size") && !c.IsSet("overlap") {
		return nil, nil
	}
	cfg := defaults
	if c.IsSet("strategy") {
		cfg.Strategy = chunk.Strategy(c.String("strategy"))
	}
	if c.IsSet("chunk-size") {
		cfg.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("overlap") {
		cfg.Overlap = c.Int("overlap")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ingestCommand(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("at least one file is required")
	}
	if c.IsSet("title") && len(files) > 1 {
		return fmt.Errorf("--title can only be used with a single file")
	}
	concurrency := c.Int("concurrency")
	if concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than 0")
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	override, err := chunkingOverride(c, l.Chunker().Config())
	if err != nil {
		return err
	}

	orch := l.Orchestrator()
	out := &syncWriter{w: c.App.Writer}
	var failed int
	var failedMu sync.Mutex

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(concurrency)
	for _, path := range files {
		g.Go(func() error {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			res, err := orch.Upload(ctx, ingestion.UploadRequest{
				OwnerID:  c.String("owner"),
				Title:    c.String("title"),
				Filename: path,
				Content:  content,
				Chunking: override,
			})
			if err != nil {
				if errors.Is(err, core.ErrValidation) {
					out.printf("%s: rejected: %v\n", path, err)
					failedMu.Lock()
					failed++
					failedMu.Unlock()
					return nil
				}
				return fmt.Errorf("failed to upload %s: %w", path, err)
			}

			doc := res.Document
			switch {
			case res.Duplicate:
				out.printf("%s: duplicate of %s (%s)\n", path, doc.ID, doc.Status)
				return nil
			case c.Bool("no-wait"):
				out.printf("%s: accepted as %s\n", path, doc.ID)
				return nil
			}

			doc, jobErr := res.Handle.Wait(ctx)
			if doc == nil {
				return fmt.Errorf("waiting for %s: %w", path, jobErr)
			}
			if jobErr != nil {
				out.printf("%s: %s %s: %v\n", path, doc.Status, doc.ID, jobErr)
				failedMu.Lock()
				failed++
				failedMu.Unlock()
				return nil
			}
			out.printf("%s: %s %s (%d passages)\n", path, doc.Status, doc.ID, doc.ChunkCount)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// syncWriter serializes writes from concurrent uploads.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
