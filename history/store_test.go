package history

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaltesting "github.com/phenobot/carousel/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := internaltesting.CreateTestDB(t)
	require.NoError(t, Migrate(db, nil))
	return NewStore(db)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := internaltesting.CreateTestDB(t)
	require.NoError(t, Migrate(db, nil))
	require.NoError(t, Migrate(db, nil))
}

func TestStoreRecordsAndListsRuns(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	store.RecordRun("guid-1", "morning", base, base.Add(20*time.Minute), "completed")
	store.RecordRun("guid-2", "evening", base.Add(12*time.Hour), base.Add(12*time.Hour+20*time.Minute), "aborted")

	runs, err := store.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "evening", runs[0].JobName)
	assert.Equal(t, "aborted", runs[0].Outcome)
	assert.Equal(t, "morning", runs[1].JobName)
}

func TestStoreFiltersRunsByJob(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	store.RecordRun("guid-1", "morning", base, base.Add(time.Minute), "completed")
	store.RecordRun("guid-1", "morning", base.Add(6*time.Hour), base.Add(6*time.Hour+time.Minute), "completed")
	store.RecordRun("guid-2", "evening", base, base.Add(time.Minute), "completed")

	runs, err := store.RunsForJob("guid-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "guid-1", r.JobGUID)
	}
}

func TestStoreRecordsAndListsCaptures(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	store.RecordCapture("exp1", "p1", 1, "rr#exp1#p1#1#20260301_080000.png", base)
	store.RecordCapture("", "", 2, "rr#noexp_empty#0#20260301_080100.png", base.Add(time.Minute))

	captures, err := store.RecentCaptures(10)
	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, 2, captures[0].Tray)
	assert.Equal(t, "p1", captures[1].PlantName)
}

func TestRecentRunsQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, job_guid").WillReturnError(assert.AnError)

	store := NewStore(db)
	_, err = store.RecentRuns(5)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunSwallowsWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO job_runs").WillReturnError(assert.AnError)

	// Recorder interfaces carry no error return; a write failure must not
	// panic or block the command path.
	store := NewStore(db)
	store.RecordRun("guid-1", "morning", time.Now(), time.Now(), "completed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
