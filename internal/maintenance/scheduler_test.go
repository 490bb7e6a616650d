package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/output"
)

func TestRunOnce_PrunesOldMessages(t *testing.T) {
	db := database.NewTestDB(t)

	require.NoError(t, db.LogMessage(&database.Message{Channel: "#c", Nick: "a", Hostmask: "a!a@h", Content: "fresh"}))
	require.NoError(t, db.LogMessage(&database.Message{
		Timestamp: time.Now().AddDate(0, 0, -40), Channel: "#c", Nick: "b", Hostmask: "b!b@h", Content: "stale",
	}))

	s := New(db, output.NopLogger{}, time.Hour, 30)
	s.RunOnce(context.Background())

	msgs, err := db.RecentMessages("#c", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Content)
	assert.False(t, s.LastVacuum().IsZero())
}

func TestRunOnce_ZeroRetentionKeepsMessages(t *testing.T) {
	db := database.NewTestDB(t)
	require.NoError(t, db.LogMessage(&database.Message{
		Timestamp: time.Now().AddDate(-1, 0, 0), Channel: "#c", Nick: "b", Hostmask: "b!b@h", Content: "ancient",
	}))

	New(db, output.NopLogger{}, time.Hour, 0).RunOnce(context.Background())

	msgs, err := db.RecentMessages("#c", 10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	db := database.NewTestDB(t)
	s := New(db, output.NopLogger{}, 10*time.Millisecond, 30)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())

	require.Eventually(t, func() bool { return !s.LastVacuum().IsZero() }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.Error(t, s.Stop())
}

func TestStart_RejectsZeroInterval(t *testing.T) {
	s := New(database.NewTestDB(t), output.NopLogger{}, 0, 30)
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
