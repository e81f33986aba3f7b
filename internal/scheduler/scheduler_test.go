package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs int
	err  error
}

func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
}

func TestAddJobAcceptsSixFieldSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("0 */15 * * * *", &countingJob{}))
	require.NoError(t, s.AddJob("@every 30s", &countingJob{}))
}

func TestRunNowExecutesImmediately(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	// The job's error is surfaced to the caller, not swallowed
	failing := &countingJob{err: errors.New("boom")}
	assert.Error(t, s.RunNow(failing))
	assert.Equal(t, 1, failing.runs)
}

func TestStartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 3 * * *", &countingJob{}))

	s.Start()
	s.Stop()
}
