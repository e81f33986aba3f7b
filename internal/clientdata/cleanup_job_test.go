package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobRun(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	mustStore(t, repo,
		Entry{Key: "fresh", Data: []byte("a"), ExpiresAt: futureTime(time.Hour)},
		Entry{Key: "stale", Data: []byte("b"), ExpiresAt: futureTime(-time.Minute)},
	)

	job := NewCleanupJob(repo, zerolog.Nop())
	assert.Equal(t, "quote_cache_cleanup", job.Name())

	require.NoError(t, job.Run())

	n, err := repo.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
