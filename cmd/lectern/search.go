package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/search"
)

// searchRequest builds the request described by the search flags.
func searchRequest(c *cli.Context) (search.Request, error) {
	if c.IsSet("owner") && c.IsSet("document") {
		return search.Request{}, fmt.Errorf("--owner and --document are mutually exclusive")
	}
	limit := c.Int("limit")
	if limit <= 0 {
		return search.Request{}, fmt.Errorf("limit must be greater than 0")
	}

	req := search.Request{
		Scope:          core.Global(),
		Limit:          limit,
		ScoreThreshold: float32(c.Float64("threshold")),
		Rerank:         !c.Bool("no-rerank"),
	}
	switch {
	case c.IsSet("document"):
		req.Scope = core.ByDocument(core.ID(c.String("document")))
	case c.IsSet("owner"):
		req.Scope = core.ByOwner(c.String("owner"))
	}
	return req, nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a query is required")
	}
	req, err := searchRequest(c)
	if err != nil {
		return err
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if req.Scope.Kind == core.ScopeDocument {
		if _, err := l.Orchestrator().Get(c.Context, req.Scope.DocumentID); err != nil {
			return err
		}
	}
	results, err := l.Engine().Search(c.Context, query, req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	printResults(c.App.Writer, results)
	return nil
}

func similarCommand(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: similar DOCUMENT CHUNK_INDEX")
	}
	chunkIndex, err := strconv.Atoi(c.Args().Get(1))
	if err != nil || chunkIndex < 0 {
		return fmt.Errorf("invalid chunk index %q", c.Args().Get(1))
	}
	limit := c.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := l.Engine().Similar(c.Context, core.ID(c.Args().First()), chunkIndex, limit)
	if err != nil {
		return fmt.Errorf("similar failed: %w", err)
	}

	printResults(c.App.Writer, results)
	return nil
}

const snippetLength = 160

func printResults(w io.Writer, results []*core.SearchResult) {
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, hit := range results {
		scores := fmt.Sprintf("%0.3f", hit.SemanticScore)
		if hit.RerankedScore != nil {
			scores = fmt.Sprintf("%0.3f/%0.3f", *hit.RerankedScore, hit.SemanticScore)
		}
		fmt.Fprintf(w, "%d: [%s] %s#%d '%s'\n", i, scores, hit.DocumentID, hit.ChunkIndex, snippet(hit.Text))
	}
}

// snippet flattens text onto one line and shortens it to snippetLength runes.
func snippet(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= snippetLength {
		return flat
	}
	return string(runes[:snippetLength]) + "..."
}
