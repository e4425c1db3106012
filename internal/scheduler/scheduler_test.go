package scheduler

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestCronSchedulerRunsAndRemoves(t *testing.T) {
	s := NewCronScheduler(quietLogger())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()
	assert.Error(t, s.Start())

	var runs atomic.Int32
	id, err := s.Every(time.Second, "tick", func() { runs.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	s.Remove(id)
	assert.Equal(t, 0, s.Len())
	after := runs.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestCronSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler(quietLogger())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	var inFlight, maxInFlight, runs atomic.Int32
	release := make(chan struct{})
	_, err := s.Every(time.Second, "slow", func() {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		runs.Add(1)
		<-release
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(2200 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "ticks during a run must be skipped")
	close(release)
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestCronSchedulerRecoversPanics(t *testing.T) {
	s := NewCronScheduler(quietLogger())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	var runs atomic.Int32
	_, err := s.Every(time.Second, "boom", func() {
		runs.Add(1)
		panic("boom")
	})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
}

func TestEveryRejectsBadInput(t *testing.T) {
	s := NewCronScheduler(quietLogger())
	_, err := s.Every(0, "zero", func() {})
	assert.Error(t, err)
	_, err = s.Every(time.Second, "nil", nil)
	assert.Error(t, err)

	m := NewManual()
	_, err = m.Every(-time.Second, "neg", func() {})
	assert.Error(t, err)
}

func TestManualScheduler(t *testing.T) {
	m := NewManual()
	var a, b int
	idA, err := m.Every(time.Second, "a", func() { a++ })
	require.NoError(t, err)
	_, err = m.Every(2*time.Second, "b", func() { b++ })
	require.NoError(t, err)

	assert.Equal(t, 1, m.Fire("a"))
	assert.Equal(t, 1, m.Fire("b"))
	assert.Equal(t, 0, m.Fire("c"))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	m.Remove(idA)
	assert.Equal(t, 0, m.Fire("a"))
	entries := m.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 2*time.Second, entries[0].Interval)
}
