package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadCandidate(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o600))
		return path
	}
	notes := write("notes.md")
	hidden := write(".notes.md")
	binary := write("tool.exe")
	sub := filepath.Join(dir, "nested.txt")
	require.NoError(t, os.Mkdir(sub, 0o700))

	tests := []struct {
		name   string
		event  fsnotify.Event
		wantOK bool
	}{
		{name: "create", event: fsnotify.Event{Name: notes, Op: fsnotify.Create}, wantOK: true},
		{name: "write", event: fsnotify.Event{Name: notes, Op: fsnotify.Write}, wantOK: true},
		{name: "write with chmod", event: fsnotify.Event{Name: notes, Op: fsnotify.Write | fsnotify.Chmod}, wantOK: true},
		{name: "chmod only", event: fsnotify.Event{Name: notes, Op: fsnotify.Chmod}},
		{name: "remove", event: fsnotify.Event{Name: notes, Op: fsnotify.Remove}},
		{name: "rename", event: fsnotify.Event{Name: notes, Op: fsnotify.Rename}},
		{name: "hidden file", event: fsnotify.Event{Name: hidden, Op: fsnotify.Create}},
		{name: "unsupported extension", event: fsnotify.Event{Name: binary, Op: fsnotify.Create}},
		{name: "directory", event: fsnotify.Event{Name: sub, Op: fsnotify.Create}},
		{name: "vanished", event: fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Write}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := uploadCandidate(tt.event)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.event.Name, path)
			} else {
				assert.Empty(t, path)
			}
		})
	}
}

func TestDebouncer(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d := newDebouncer(2 * time.Second)

	d.touch("b.txt", start)
	d.touch("a.txt", start)
	assert.Empty(t, d.due(start.Add(time.Second)))

	// a fresh write restarts the quiet period
	d.touch("b.txt", start.Add(time.Second))
	assert.Equal(t, []string{"a.txt"}, d.due(start.Add(2*time.Second)))
	assert.Empty(t, d.due(start.Add(2*time.Second)))
	assert.Equal(t, []string{"b.txt"}, d.due(start.Add(3*time.Second)))

	d.touch("c.txt", start)
	d.touch("d.txt", start)
	assert.Equal(t, []string{"c.txt", "d.txt"}, d.due(start.Add(time.Minute)))
}
