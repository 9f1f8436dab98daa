package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

// listOptions builds the repository query described by the list flags.
func listOptions(c *cli.Context) (storage.ListOptions, error) {
	opts := storage.ListOptions{
		OwnerID:     c.String("owner"),
		Status:      core.Status(c.String("status")),
		ContentType: strings.ToLower(c.String("type")),
		Search:      c.String("search"),
		Offset:      c.Int("offset"),
		Limit:       c.Int("limit"),
		SortBy:      storage.SortField(c.String("sort")),
		Descending:  !c.Bool("asc"),
	}
	if opts.Status != "" && !opts.Status.Valid() {
		return opts, fmt.Errorf("invalid status %q", opts.Status)
	}
	if !opts.SortBy.Valid() {
		return opts, fmt.Errorf("invalid sort field %q", opts.SortBy)
	}
	if opts.Offset < 0 {
		return opts, fmt.Errorf("offset must not be negative")
	}
	return opts, nil
}

func listCommand(c *cli.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return err
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	docs, total, err := l.Orchestrator().List(c.Context, opts)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	printDocuments(c.App.Writer, docs)
	fmt.Fprintf(c.App.Writer, "Showing %d of %d documents\n", len(docs), total)
	return nil
}

func printDocuments(w io.Writer, docs []*core.Document) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tTITLE\tTYPE\tSTATUS\tPASSAGES\tUPDATED")
	for _, doc := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			doc.ID, doc.OwnerID, doc.Title, doc.ContentType, doc.Status, doc.ChunkCount,
			doc.UpdatedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func documentArg(c *cli.Context) (core.ID, error) {
	if c.Args().Len() != 1 {
		return "", fmt.Errorf("exactly one document ID is required")
	}
	return core.ID(c.Args().First()), nil
}

func showCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	doc, err := l.Orchestrator().Get(c.Context, id)
	if err != nil {
		return err
	}
	printDocument(c.App.Writer, doc)
	return nil
}

func printDocument(w io.Writer, doc *core.Document) {
	fmt.Fprintf(w, "ID:          %s\n", doc.ID)
	fmt.Fprintf(w, "Owner:       %s\n", doc.OwnerID)
	fmt.Fprintf(w, "Title:       %s\n", doc.Title)
	fmt.Fprintf(w, "Filename:    %s\n", doc.Filename)
	fmt.Fprintf(w, "Type:        %s\n", doc.ContentType)
	fmt.Fprintf(w, "Size:        %d bytes\n", doc.ByteSize)
	fmt.Fprintf(w, "Hash:        %s\n", doc.ContentHash)
	fmt.Fprintf(w, "Status:      %s\n", doc.Status)
	fmt.Fprintf(w, "Passages:    %d\n", doc.ChunkCount)
	fmt.Fprintf(w, "Collection:  %s\n", doc.Collection)
	if doc.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", doc.Error)
	}
	fmt.Fprintf(w, "Created:     %s\n", doc.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Updated:     %s\n", doc.UpdatedAt.Local().Format(time.DateTime))
	if len(doc.Metadata) > 0 {
		fmt.Fprintln(w, "Metadata:")
		for _, k := range slices.Sorted(maps.Keys(doc.Metadata)) {
			fmt.Fprintf(w, "  %s = %v\n", k, doc.Metadata[k])
		}
	}
}

// parseMetadata turns key=value pairs into a metadata patch. An empty value
// maps to nil, which removes the key.
func parseMetadata(pairs []string) (map[string]any, error) {
	patch := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: want key=value", pair)
		}
		if value == "" {
			patch[key] = nil
			continue
		}
		patch[key] = value
	}
	return patch, nil
}

func updateCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}
	patch, err := parseMetadata(c.StringSlice("set"))
	if err != nil {
		return err
	}
	if c.String("title") == "" && len(patch) == 0 {
		return fmt.Errorf("nothing to update: use --title or --set")
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	doc, err := l.Orchestrator().UpdateMetadata(c.Context, id, c.String("title"), patch)
	if err != nil {
		return err
	}
	printDocument(c.App.Writer, doc)
	return nil
}

func deleteCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := l.Orchestrator().Delete(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted %s\n", id)
	return nil
}

func reprocessCommand(c *cli.Context) error {
	id, err := documentArg(c)
	if err != nil {
		return err
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	handle, err := l.Orchestrator().Reprocess(c.Context, id)
	if err != nil {
		return err
	}
	if c.Bool("no-wait") {
		fmt.Fprintf(c.App.Writer, "Reprocessing %s\n", id)
		return nil
	}

	doc, jobErr := handle.Wait(c.Context)
	if doc == nil {
		return jobErr
	}
	if jobErr != nil {
		return fmt.Errorf("%s %s: %w", doc.ID, doc.Status, jobErr)
	}
	fmt.Fprintf(c.App.Writer, "%s: %s (%d passages)\n", doc.ID, doc.Status, doc.ChunkCount)
	return nil
}

func recoverCommand(c *cli.Context) error {
	olderThan := c.Duration("older-than")
	if olderThan <= 0 {
		return fmt.Errorf("older-than must be greater than 0")
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	recovered, err := l.Orchestrator().RecoverStale(c.Context, olderThan)
	for _, doc := range recovered {
		fmt.Fprintf(c.App.Writer, "Marked %s (%s) failed\n", doc.ID, doc.Filename)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Recovered %d documents\n", len(recovered))
	return nil
}

func statsCommand(c *cli.Context) error {
	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := l.Orchestrator().Stats(c.Context, c.String("owner"))
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}
	printStats(c.App.Writer, stats)
	return nil
}

func printStats(w io.Writer, stats *core.Stats) {
	fmt.Fprintf(w, "Documents: %d\n", stats.TotalDocuments)
	fmt.Fprintf(w, "Bytes:     %d\n", stats.TotalBytes)
	fmt.Fprintf(w, "Passages:  %d\n", stats.TotalChunks)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSTATUS\tCOUNT")
	for _, status := range []core.Status{core.StatusProcessing, core.StatusDone, core.StatusFailed} {
		fmt.Fprintf(tw, "%s\t%d\n", status, stats.ByStatus[status])
	}
	fmt.Fprintln(tw, "\nTYPE\tCOUNT")
	for _, ct := range slices.Sorted(maps.Keys(stats.ByContentType)) {
		fmt.Fprintf(tw, "%s\t%d\n", ct, stats.ByContentType[ct])
	}
	tw.Flush()
}
