package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestStartTwiceKeepsOneJob(t *testing.T) {
	s := New(time.Hour, func() {}, nil)
	defer s.Stop()

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.Equal(t, 1, s.Len())
}

func TestStopCancelsJob(t *testing.T) {
	var runs atomic.Int32
	s := New(20*time.Millisecond, func() { runs.Inc() }, nil)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Equal(t, 0, s.Len())
	time.Sleep(30 * time.Millisecond)
	after := runs.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestRestartAfterStop(t *testing.T) {
	var runs atomic.Int32
	s := New(20*time.Millisecond, func() { runs.Inc() }, nil)

	require.NoError(t, s.Start())
	s.Stop()
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 1, s.Len())
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	s := New(0, func() {}, nil)
	s.Stop()
	assert.Equal(t, 10*time.Second, s.Interval())
	assert.Equal(t, 0, s.Len())
}

func TestStartWithoutTask(t *testing.T) {
	s := New(time.Second, nil, nil)
	assert.ErrorIs(t, s.Start(), errNoTask)
}
