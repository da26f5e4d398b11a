package syncentry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryReadyRequiresScheduledAtInPast(t *testing.T) {
	now := time.Now()
	e := Entry{ScheduledAt: now.Add(time.Minute), MaxRetries: 3}
	assert.False(t, e.Ready(now))

	e.ScheduledAt = now.Add(-time.Minute)
	assert.True(t, e.Ready(now))
}

func TestEntryReadyRequiresRetryBudget(t *testing.T) {
	now := time.Now()
	e := Entry{ScheduledAt: now.Add(-time.Second), RetryCount: 3, MaxRetries: 3}
	assert.False(t, e.Ready(now))
}

func TestEntryDeadLettered(t *testing.T) {
	e := Entry{Status: StatusFailed, RetryCount: 5, MaxRetries: 5}
	assert.True(t, e.DeadLettered())

	e.Status = StatusPending
	assert.False(t, e.DeadLettered())
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "add", OpAdd.String())
	assert.Equal(t, "delete", OpDelete.String())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "in_progress", StatusInProgress.String())
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
