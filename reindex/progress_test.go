package reindex

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 4, 2)

	tracker.Start()
	assert.True(t, tracker.started, "should be started")

	for i := 0; i < 4; i++ {
		tracker.Document(3)
	}

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	assert.Equal(t, 12, tracker.Passages())

	output := buf.String()
	assert.Contains(t, output, "4/4", "should show completion")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "12 passages")
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 3)
	tracker.Start()

	tracker.Document(1)
	tracker.Document(1)
	assert.Equal(t, "", buf.String(), "should not print under interval")

	tracker.Document(1)
	assert.Contains(t, buf.String(), "3/10")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 5, 10)

	tracker.Start()
	tracker.Document(2)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "5/5", "finish should set to total")
	assert.Contains(t, output, "passages/s")
	assert.Contains(t, output, "\n", "finish should print newline")
}

func TestProgressTracker_BeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1, 1)

	tracker.Start()
	tracker.Document(1)
	tracker.Document(1)
	assert.Contains(t, buf.String(), "1/1")
	assert.NotContains(t, buf.String(), "2/1", "should not exceed total")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Document(10)
	tracker.Finish()

	assert.Equal(t, "", buf.String(), "should have no output when not started")
	assert.Zero(t, tracker.Elapsed())
}
