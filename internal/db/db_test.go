package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Idempotent.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = 'payload_len'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestRecordRun_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	want := RunRecord{
		RunID:        uuid.NewString(),
		Started:      time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC),
		Frames:       3,
		Packets:      3072,
		Bytes:        25_165_824,
		Elapsed:      1500 * time.Millisecond,
		Destinations: []string{"127.0.0.1:61649", "127.0.0.2:61649"},
		PayloadLen:   8192,
		StreamBytes:  4_179_008,
	}
	require.NoError(t, db.RecordRun(want))

	runs, err := db.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.True(t, want.Started.Equal(got.Started))
	got.Started = want.Started
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestRuns_NewestFirst(t *testing.T) {
	db := setupTestDB(t)

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.RecordRun(RunRecord{
			RunID:   uuid.NewString(),
			Started: base.Add(time.Duration(i) * time.Minute),
			Frames:  i,
		}))
	}

	runs, err := db.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []int{2, 1, 0}, []int{runs[0].Frames, runs[1].Frames, runs[2].Frames})
	assert.Nil(t, runs[0].Destinations)

	limited, err := db.Runs(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordRun_Errors(t *testing.T) {
	db := setupTestDB(t)

	assert.Error(t, db.RecordRun(RunRecord{}))

	r := RunRecord{RunID: "dup", Started: time.Now(), Continuous: true, Error: "transport: boom"}
	require.NoError(t, db.RecordRun(r))
	assert.Error(t, db.RecordRun(r))

	runs, err := db.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Continuous)
	assert.Equal(t, "transport: boom", runs[0].Error)
}

func TestRunRecord_String(t *testing.T) {
	r := RunRecord{
		RunID:        "abc",
		Started:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Frames:       1,
		Packets:      2,
		Bytes:        3,
		Elapsed:      1234567 * time.Microsecond,
		Destinations: []string{"h:1"},
	}
	assert.Equal(t, "abc 2024-03-01T12:00:00Z frames=1 packets=2 bytes=3 elapsed=1.235s to h:1", r.String())
}
