package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/ingestion"
)

// uploadCandidate reports whether a filesystem event names a file that
// should be uploaded.
func uploadCandidate(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return "", false
	}
	if !core.IsSupportedContentType(core.ContentTypeOf(event.Name)) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return event.Name, true
}

// debouncer holds paths until no event has touched them for quiet.
type debouncer struct {
	quiet   time.Duration
	pending map[string]time.Time
}

func newDebouncer(quiet time.Duration) *debouncer {
	return &debouncer{quiet: quiet, pending: make(map[string]time.Time)}
}

func (d *debouncer) touch(path string, now time.Time) {
	d.pending[path] = now
}

// due removes and returns the settled paths in lexical order.
func (d *debouncer) due(now time.Time) []string {
	var ready []string
	for path, last := range d.pending {
		if now.Sub(last) >= d.quiet {
			ready = append(ready, path)
			delete(d.pending, path)
		}
	}
	slices.Sort(ready)
	return ready
}

func watchCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("exactly one directory is required")
	}
	dir := c.Args().First()
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	quiet := c.Duration("settle")
	if quiet <= 0 {
		return fmt.Errorf("settle must be greater than 0")
	}

	l, closeFn, err := openLectern(c)
	if err != nil {
		return err
	}
	defer closeFn()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	orch := l.Orchestrator()
	owner := c.String("owner")
	upload := func(path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("failed to read file", "path", path, "err", err)
			return
		}
		res, err := orch.Upload(c.Context, ingestion.UploadRequest{
			OwnerID:  owner,
			Filename: path,
			Content:  content,
		})
		if err != nil {
			slog.Warn("upload rejected", "path", path, "err", err)
			return
		}
		if res.Duplicate {
			fmt.Fprintf(c.App.Writer, "%s: unchanged (%s)\n", path, res.Document.ID)
			return
		}
		fmt.Fprintf(c.App.Writer, "%s: accepted as %s\n", path, res.Document.ID)
	}

	pending := newDebouncer(quiet)
	if !c.Bool("skip-existing") {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if _, ok := uploadCandidate(fsnotify.Event{Name: path, Op: fsnotify.Create}); ok {
				pending.touch(path, now.Add(-quiet))
			}
		}
	}

	ticker := time.NewTicker(quiet / 2)
	defer ticker.Stop()

	fmt.Fprintf(c.App.ErrWriter, "Watching %s for owner %s (Ctrl-C to stop)\n", dir, owner)
	for {
		select {
		case <-c.Context.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if path, ok := uploadCandidate(event); ok {
				pending.touch(path, time.Now())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "dir", dir, "err", err)
		case now := <-ticker.C:
			for _, path := range pending.due(now) {
				upload(path)
			}
		}
	}
}
