package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern/reindex"
	"github.com/poiesic/lectern/vectorindex"
)

func reindexCommand(c *cli.Context) error {
	reindexConfig := &reindex.Config{
		PageSize:       c.Int("page-size"),
		ReportInterval: c.Int("report-interval"),
		PruneSource:    c.Bool("prune-source"),
	}
	if reindexConfig.PageSize <= 0 {
		return fmt.Errorf("page-size must be greater than 0")
	}
	if reindexConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	cfg := l.Config()
	var source vectorindex.Index
	if from := c.String("from"); from != "" && from != cfg.Vectors.Collection {
		if source, err = l.OpenIndex(from); err != nil {
			return fmt.Errorf("failed to open collection %s: %w", from, err)
		}
		defer source.Close()
	} else if reindexConfig.PruneSource {
		return fmt.Errorf("--prune-source needs --from with another collection")
	}

	reindexer, err := l.NewReindexer(source, reindexConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	w := c.App.ErrWriter
	fmt.Fprintf(w, "Vector backend: %s\n", cfg.Vectors.Backend)
	if source != nil {
		fmt.Fprintf(w, "Source collection: %s\n", source.Collection())
	}
	fmt.Fprintf(w, "Target collection: %s\n", cfg.Vectors.Collection)
	fmt.Fprintf(w, "Embedding model: %s (%s)\n", cfg.AI.Model, cfg.AI.Provider)
	fmt.Fprintln(w)

	if _, err := reindexer.Run(c.Context); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func healthCommand(c *cli.Context) error {
	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := l.Health(c.Context)
	for _, r := range results {
		state := "ok"
		if r.Err != nil {
			state = r.Err.Error()
		}
		fmt.Fprintf(c.App.Writer, "%-10s %s\n", r.Name, state)
	}
	if err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	return nil
}
