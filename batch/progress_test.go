package batch

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "Scoring", 100, 10)

	tracker.Start()
	tracker.Increment(25)
	tracker.Increment(25)
	tracker.Increment(50)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	assert.Equal(t, 100, tracker.Current())

	output := buf.String()
	assert.Contains(t, output, "Scoring: 100/100")
	assert.Contains(t, output, "100.0%")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "Geocoding", 10, 1)

	tracker.Increment(5)
	tracker.Finish()

	assert.Empty(t, buf.String())
	assert.Equal(t, time.Duration(0), tracker.Elapsed())
}

func TestProgressTracker_FinishReportsReachedCount(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "Scoring", 100, 1000)

	tracker.Start()
	tracker.Increment(40)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "40/100")
	assert.Contains(t, output, "\n")
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "Encoding", 10, 0)

	tracker.Start()
	tracker.Increment(25)
	assert.Equal(t, 10, tracker.Current())
}

func TestProgressTracker_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "Scoring", 1000, 100)
	tracker.Start()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				tracker.Increment(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, tracker.Current())
}
