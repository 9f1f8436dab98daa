package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/reindex"
	"github.com/poiesic/lectern/search"
	"github.com/poiesic/lectern/storage"
)

func ownerFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "owner",
		Aliases:  []string{"o"},
		Usage:    "Owner of the documents",
		EnvVars:  []string{config.EnvVar("OWNER")},
		Required: required,
	}
}

func noWaitFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "no-wait",
		Usage: "Return once the document is accepted instead of waiting for processing",
	}
}

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ingest",
			Usage:     "Upload files and process them into searchable passages",
			ArgsUsage: "FILE...",
			Action:    ingestCommand,
			Flags: []cli.Flag{
				ownerFlag(true),
				&cli.StringFlag{
					Name:  "title",
					Usage: "Document title (single file only; defaults to the file name)",
				},
				&cli.StringFlag{
					Name:  "strategy",
					Usage: "Chunking strategy (section, token)",
				},
				&cli.IntFlag{
					Name:  "chunk-size",
					Usage: "Tokens per chunk",
				},
				&cli.IntFlag{
					Name:  "overlap",
					Usage: "Tokens shared by consecutive token chunks",
				},
				&cli.IntFlag{
					Name:  "concurrency",
					Usage: "Number of files uploaded at once",
					Value: 4,
				},
				noWaitFlag(),
			},
		},
		{
			Name:      "watch",
			Usage:     "Upload supported files as they appear or change in a directory",
			ArgsUsage: "DIR",
			Action:    watchCommand,
			Flags: []cli.Flag{
				ownerFlag(true),
				&cli.DurationFlag{
					Name:  "settle",
					Usage: "Wait until a file has not changed for this long before uploading it",
					Value: 2 * time.Second,
				},
				&cli.BoolFlag{
					Name:  "skip-existing",
					Usage: "Only upload files that change after the watch starts",
				},
			},
		},
		{
			Name:      "search",
			Usage:     "Search passages",
			ArgsUsage: "QUERY",
			Action:    searchCommand,
			Flags: []cli.Flag{
				ownerFlag(false),
				&cli.StringFlag{
					Name:    "document",
					Aliases: []string{"d"},
					Usage:   "Restrict the search to one document",
				},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Maximum number of results",
					Value: search.DefaultLimit,
				},
				&cli.Float64Flag{
					Name:  "threshold",
					Usage: "Minimum semantic score",
					Value: float64(search.DefaultScoreThreshold),
				},
				&cli.BoolFlag{
					Name:  "no-rerank",
					Usage: "Rank by semantic score only",
				},
			},
		},
		{
			Name:      "similar",
			Usage:     "Find passages of a document similar to one of its passages",
			ArgsUsage: "DOCUMENT CHUNK_INDEX",
			Action:    similarCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Maximum number of results",
					Value: search.DefaultLimit,
				},
			},
		},
		{
			Name:   "list",
			Usage:  "List documents",
			Action: listCommand,
			Flags: []cli.Flag{
				ownerFlag(false),
				&cli.StringFlag{
					Name:  "status",
					Usage: "Only documents with this status (processing, done, failed)",
				},
				&cli.StringFlag{
					Name:  "type",
					Usage: "Only documents of this content type, e.g. .pdf",
				},
				&cli.StringFlag{
					Name:    "search",
					Aliases: []string{"s"},
					Usage:   "Substring of the title or file name",
				},
				&cli.IntFlag{
					Name:  "offset",
					Usage: "Number of documents to skip",
				},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Page size",
					Value: storage.DefaultListLimit,
				},
				&cli.StringFlag{
					Name:  "sort",
					Usage: "Sort field (created_at, updated_at, title, filename, byte_size)",
					Value: string(storage.SortByCreatedAt),
				},
				&cli.BoolFlag{
					Name:  "asc",
					Usage: "Sort ascending",
				},
			},
		},
		{
			Name:      "show",
			Usage:     "Show one document",
			ArgsUsage: "DOCUMENT",
			Action:    showCommand,
		},
		{
			Name:      "update",
			Usage:     "Change a document's title or metadata",
			ArgsUsage: "DOCUMENT",
			Action:    updateCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "title",
					Usage: "New title",
				},
				&cli.StringSliceFlag{
					Name:  "set",
					Usage: "Set a metadata key (key=value); an empty value removes the key",
				},
			},
		},
		{
			Name:      "delete",
			Usage:     "Delete a document and its passages",
			ArgsUsage: "DOCUMENT",
			Action:    deleteCommand,
		},
		{
			Name:      "reprocess",
			Usage:     "Process a failed or stuck document again from its archived upload",
			ArgsUsage: "DOCUMENT",
			Action:    reprocessCommand,
			Flags:     []cli.Flag{noWaitFlag()},
		},
		{
			Name:   "recover",
			Usage:  "Mark documents stuck in processing as failed",
			Action: recoverCommand,
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "older-than",
					Usage: "Minimum time since the last update",
					Value: 30 * time.Minute,
				},
			},
		},
		{
			Name:   "reindex",
			Usage:  "Re-embed every finished document into the configured collection",
			Action: reindexCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "from",
					Usage: "Collection to read passages from (defaults to the configured collection)",
				},
				&cli.IntFlag{
					Name:  "page-size",
					Usage: "Number of documents fetched per page",
					Value: reindex.DefaultPageSize,
				},
				&cli.IntFlag{
					Name:  "report-interval",
					Usage: "Report progress every N documents",
					Value: reindex.DefaultConfig().ReportInterval,
				},
				&cli.BoolFlag{
					Name:  "prune-source",
					Usage: "Delete passages from the source collection once moved",
				},
			},
		},
		{
			Name:   "stats",
			Usage:  "Show document totals",
			Action: statsCommand,
			Flags:  []cli.Flag{ownerFlag(false)},
		},
		{
			Name:   "health",
			Usage:  "Check the stores and the embedding provider",
			Action: healthCommand,
		},
	}
}
