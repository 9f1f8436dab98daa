package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern"
	"github.com/poiesic/lectern/chunk"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/search"
	"github.com/poiesic/lectern/storage"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func findFlag[T cli.Flag](t *testing.T, cmd *cli.Command, name string) T {
	t.Helper()
	for _, flag := range cmd.Flags {
		if f, ok := flag.(T); ok && flag.Names()[0] == name {
			return f
		}
	}
	t.Fatalf("flag %q not found on %s", name, cmd.Name)
	var zero T
	return zero
}

// runWith runs a one-command app whose action receives the parsed context.
func runWith(t *testing.T, flags []cli.Flag, args []string, action cli.ActionFunc) error {
	t.Helper()
	app := &cli.App{
		Name: "test",
		Commands: []*cli.Command{
			{Name: "cmd", Flags: flags, Action: action},
		},
	}
	return app.Run(append([]string{"test", "cmd"}, args...))
}

func TestCommandFlags(t *testing.T) {
	app := newApp()

	t.Run("ingest owner is required and bound to the environment", func(t *testing.T) {
		owner := findFlag[*cli.StringFlag](t, findCommand(t, app, "ingest"), "owner")
		assert.True(t, owner.Required)
		assert.Equal(t, []string{"LECTERN_OWNER"}, owner.EnvVars)
	})

	t.Run("search owner is optional", func(t *testing.T) {
		owner := findFlag[*cli.StringFlag](t, findCommand(t, app, "search"), "owner")
		assert.False(t, owner.Required)
	})

	t.Run("search defaults", func(t *testing.T) {
		cmd := findCommand(t, app, "search")
		assert.Equal(t, search.DefaultLimit, findFlag[*cli.IntFlag](t, cmd, "limit").Value)
		assert.InDelta(t, 0.5, findFlag[*cli.Float64Flag](t, cmd, "threshold").Value, 1e-9)
	})

	t.Run("recover default age", func(t *testing.T) {
		olderThan := findFlag[*cli.DurationFlag](t, findCommand(t, app, "recover"), "older-than")
		assert.Equal(t, 30*time.Minute, olderThan.Value)
	})

	t.Run("watch settle default", func(t *testing.T) {
		cmd := findCommand(t, app, "watch")
		assert.True(t, findFlag[*cli.StringFlag](t, cmd, "owner").Required)
		assert.Equal(t, 2*time.Second, findFlag[*cli.DurationFlag](t, cmd, "settle").Value)
	})

	t.Run("ingest concurrency default", func(t *testing.T) {
		assert.Equal(t, 4, findFlag[*cli.IntFlag](t, findCommand(t, app, "ingest"), "concurrency").Value)
	})

	t.Run("config flag reads LECTERN_CONFIG", func(t *testing.T) {
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "config" {
				assert.Equal(t, []string{"LECTERN_CONFIG"}, f.EnvVars)
				return
			}
		}
		t.Fatal("config flag not found")
	})
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "ingest without owner", args: []string{"ingest", "a.txt"}, want: "owner"},
		{name: "ingest without files", args: []string{"ingest", "--owner", "u1"}, want: "at least one file"},
		{name: "ingest title with several files", args: []string{"ingest", "--owner", "u1", "--title", "T", "a.txt", "b.txt"}, want: "single file"},
		{name: "ingest zero concurrency", args: []string{"ingest", "--owner", "u1", "--concurrency", "0", "a.txt"}, want: "concurrency"},
		{name: "watch without directory", args: []string{"watch", "--owner", "u1"}, want: "exactly one directory"},
		{name: "watch a file", args: []string{"watch", "--owner", "u1", "main_test.go"}, want: "not a directory"},
		{name: "watch zero settle", args: []string{"watch", "--owner", "u1", "--settle", "0s", "."}, want: "settle"},
		{name: "search without query", args: []string{"search"}, want: "query is required"},
		{name: "search with both scopes", args: []string{"search", "--owner", "u1", "--document", "d1", "cache"}, want: "mutually exclusive"},
		{name: "search zero limit", args: []string{"search", "--limit", "0", "cache"}, want: "limit"},
		{name: "similar arity", args: []string{"similar", "d1"}, want: "usage"},
		{name: "similar bad index", args: []string{"similar", "d1", "x"}, want: "invalid chunk index"},
		{name: "show arity", args: []string{"show"}, want: "document ID"},
		{name: "delete arity", args: []string{"delete", "a", "b"}, want: "document ID"},
		{name: "update nothing", args: []string{"update", "d1"}, want: "nothing to update"},
		{name: "update bad pair", args: []string{"update", "--set", "novalue", "d1"}, want: "key=value"},
		{name: "list bad status", args: []string{"list", "--status", "queued"}, want: "invalid status"},
		{name: "list bad sort", args: []string{"list", "--sort", "size"}, want: "invalid sort field"},
		{name: "recover zero age", args: []string{"recover", "--older-than", "0s"}, want: "older-than"},
		{name: "reindex zero page size", args: []string{"reindex", "--page-size", "0"}, want: "page-size"},
		{name: "invalid log level", args: []string{"--log-level", "loud", "health"}, want: "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp()
			app.Writer = &bytes.Buffer{}
			app.ErrWriter = &bytes.Buffer{}
			err := app.Run(append([]string{"lectern"}, tt.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				app := &cli.App{
					Name:   "test",
					Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: "info"}},
					Before: setupLogger,
					Action: func(c *cli.Context) error { return nil },
				}
				require.NoError(t, app.Run([]string{"test", "--log-level", level}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name:   "test",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: "info"}},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}

		err := app.Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("debug level enables debug records", func(t *testing.T) {
		app := &cli.App{
			Name:   "test",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "log-level", Value: "info"}},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
				return nil
			},
		}
		require.NoError(t, app.Run([]string{"test", "--log-level", "debug"}))
	})
}

func TestChunkingOverride(t *testing.T) {
	flags := findCommand(t, newApp(), "ingest").Flags
	defaults := chunk.DefaultConfig()

	tests := []struct {
		name    string
		args    []string
		want    *chunk.Config
		wantErr bool
	}{
		{name: "no flags", args: []string{"--owner", "u1"}, want: nil},
		{name: "strategy only", args: []string{"--owner", "u1", "--strategy", "token"},
			want: &chunk.Config{Strategy: chunk.StrategyToken, ChunkSize: defaults.ChunkSize, Overlap: defaults.Overlap}},
		{name: "size keeps default overlap", args: []string{"--owner", "u1", "--chunk-size", "200"},
			want: &chunk.Config{Strategy: defaults.Strategy, ChunkSize: 200, Overlap: defaults.Overlap}},
		{name: "explicit zero overlap", args: []string{"--owner", "u1", "--overlap", "0"},
			want: &chunk.Config{Strategy: defaults.Strategy, ChunkSize: defaults.ChunkSize, Overlap: 0}},
		{name: "overlap not below size", args: []string{"--owner", "u1", "--chunk-size", "10", "--overlap", "10"}, wantErr: true},
		{name: "unknown strategy", args: []string{"--owner", "u1", "--strategy", "paragraph"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *chunk.Config
			var gotErr error
			err := runWith(t, flags, tt.args, func(c *cli.Context) error {
				got, gotErr = chunkingOverride(c, defaults)
				return nil
			})
			require.NoError(t, err)
			if tt.wantErr {
				assert.ErrorIs(t, gotErr, core.ErrValidation)
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchRequest(t *testing.T) {
	flags := findCommand(t, newApp(), "search").Flags

	run := func(args ...string) search.Request {
		var req search.Request
		err := runWith(t, flags, args, func(c *cli.Context) error {
			var err error
			req, err = searchRequest(c)
			return err
		})
		require.NoError(t, err)
		return req
	}

	t.Run("defaults", func(t *testing.T) {
		req := run("q")
		assert.Equal(t, core.ScopeGlobal, req.Scope.Kind)
		assert.Equal(t, search.DefaultLimit, req.Limit)
		assert.InDelta(t, 0.5, req.ScoreThreshold, 1e-6)
		assert.True(t, req.Rerank)
	})

	t.Run("owner scope without rerank", func(t *testing.T) {
		req := run("--owner", "u1", "--no-rerank", "--limit", "3", "--threshold", "0.2", "q")
		assert.Equal(t, core.ByOwner("u1"), req.Scope)
		assert.Equal(t, 3, req.Limit)
		assert.InDelta(t, 0.2, req.ScoreThreshold, 1e-6)
		assert.False(t, req.Rerank)
	})

	t.Run("document scope", func(t *testing.T) {
		req := run("--document", "d1", "q")
		assert.Equal(t, core.ByDocument("d1"), req.Scope)
	})
}

func TestListOptions(t *testing.T) {
	flags := findCommand(t, newApp(), "list").Flags

	var opts storage.ListOptions
	err := runWith(t, flags, []string{"--owner", "u1", "--status", "done", "--type", ".PDF", "--sort", "title", "--asc", "--limit", "10"},
		func(c *cli.Context) error {
			var err error
			opts, err = listOptions(c)
			return err
		})
	require.NoError(t, err)

	assert.Equal(t, storage.ListOptions{
		OwnerID:     "u1",
		Status:      core.StatusDone,
		ContentType: ".pdf",
		Limit:       10,
		SortBy:      storage.SortByTitle,
		Descending:  false,
	}, opts)
}

func TestParseMetadata(t *testing.T) {
	patch, err := parseMetadata([]string{"team=infra", "draft=", " lang =en=gb"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"team": "infra", "draft": nil, "lang": "en=gb"}, patch)

	_, err = parseMetadata([]string{"=x"})
	assert.Error(t, err)
}

func TestPrintResults(t *testing.T) {
	reranked := float32(0.86)
	results := []*core.SearchResult{
		{DocumentID: "d1", ChunkIndex: 2, Text: "backups\nrun   nightly", SemanticScore: 0.8, RerankedScore: &reranked},
		{DocumentID: "d2", ChunkIndex: 0, Text: "cache size", SemanticScore: 0.61},
	}

	var buf bytes.Buffer
	printResults(&buf, results)

	assert.Equal(t, "Found 2 hits\n"+
		"0: [0.860/0.800] d1#2 'backups run nightly'\n"+
		"1: [0.610] d2#0 'cache size'\n", buf.String())
}

func TestSnippet(t *testing.T) {
	long := bytes.Repeat([]byte("é"), snippetLength+5)
	got := snippet(string(long))
	assert.Equal(t, snippetLength+3, len([]rune(got)))
	assert.Equal(t, "a b", snippet(" a\n\tb "))
}

type fakeHealth struct {
	results []lectern.ComponentHealth
	err     error
}

func (f fakeHealth) Health(ctx context.Context) ([]lectern.ComponentHealth, error) {
	return f.results, f.err
}

func TestOpsRouter(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("lectern_uploads_total 1\n"))
	})

	t.Run("metrics", func(t *testing.T) {
		srv := httptest.NewServer(newOpsRouter(fakeHealth{}, metrics))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		checker := fakeHealth{results: []lectern.ComponentHealth{{Name: "documents"}, {Name: "vectors"}}}
		newOpsRouter(checker, metrics).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "documents: ok\nvectors: ok\n", rec.Body.String())
	})

	t.Run("unhealthy", func(t *testing.T) {
		down := errors.New("connection refused")
		rec := httptest.NewRecorder()
		checker := fakeHealth{
			results: []lectern.ComponentHealth{{Name: "documents"}, {Name: "vectors", Err: down}},
			err:     down,
		}
		newOpsRouter(checker, metrics).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "vectors: connection refused")
	})
}
