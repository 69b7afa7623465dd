package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/artpar/templdeploy/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func newTestReport(id, target string, startedAt time.Time) *domain.RunReport {
	return &domain.RunReport{
		ID:         id,
		Target:     target,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
		Units: []domain.UnitReport{
			{
				Name:   "../api",
				Kind:   domain.UnitDependency,
				Status: domain.UnitSkipped,
				Err:    errors.New("configuration file not found"),
			},
			{
				Name:   target,
				Kind:   domain.UnitMain,
				Status: domain.UnitSucceeded,
				Params: &domain.EffectiveParameters{
					Unit:           target,
					Kind:           domain.UnitMain,
					SourceDir:      "dist/",
					TransferFlags:  "avzh",
					DestinationDir: "app_7/",
					User:           "user_7",
					Host:           "h",
					Port:           22,
					RemoteCommand:  "make restart",
					Identity:       domain.Identity{PrivateKey: "secret-key", KeyFile: "/k/id"},
				},
				Transfer: &domain.TransferResult{Command: "rsync -avzh dist/ user_7@h:app_7/"},
				Remote: &domain.RemoteCommandResult{
					Command:  "ssh -p 22 user_7@h 'cd app_7/ && make restart'",
					Stdout:   "restarted",
					Attempts: 2,
				},
			},
		},
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRecordRun_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordRun(ctx, newTestReport("run-1", "prod", started)))

	runs, err := store.ListRuns(ctx, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]

	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "prod", got.Target)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(started.Add(3*time.Second)))
	require.Len(t, got.Units, 2)

	dep := got.Units[0]
	assert.Equal(t, "../api", dep.Name)
	assert.Equal(t, domain.UnitDependency, dep.Kind)
	assert.Equal(t, domain.UnitSkipped, dep.Status)
	require.Error(t, dep.Err)
	assert.Equal(t, "configuration file not found", dep.Err.Error())
	assert.Nil(t, dep.Params)
	assert.Nil(t, dep.Transfer)
	assert.Nil(t, dep.Remote)

	main := got.Units[1]
	assert.Equal(t, domain.UnitMain, main.Kind)
	require.NotNil(t, main.Params)
	assert.Equal(t, "user_7", main.Params.User)
	assert.Equal(t, "app_7/", main.Params.DestinationDir)
	assert.Equal(t, "/k/id", main.Params.Identity.KeyFile)
	require.NotNil(t, main.Transfer)
	assert.Equal(t, "rsync -avzh dist/ user_7@h:app_7/", main.Transfer.Command)
	assert.Equal(t, 0, main.Transfer.ExitCode)
	require.NotNil(t, main.Remote)
	assert.Equal(t, 2, main.Remote.Attempts)
	assert.Contains(t, main.Remote.Command, "make restart")
	assert.NoError(t, main.Err)
}

func TestRecordRun_DoesNotPersistInlineKeys(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	report := newTestReport("run-1", "prod", time.Now())

	require.NoError(t, store.RecordRun(ctx, report))

	var params string
	require.NoError(t, store.db.Get(&params, `SELECT params FROM units WHERE run_id = ? AND kind = 'main'`, "run-1"))
	assert.NotContains(t, params, "secret-key")

	// The caller's report is left untouched.
	assert.Equal(t, "secret-key", report.Units[1].Params.Identity.PrivateKey)
}

func TestRecordRun_Status(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ok := newTestReport("ok", "prod", time.Now())
	failed := newTestReport("failed", "prod", time.Now())
	failed.Units[1].Status = domain.UnitFailed

	require.NoError(t, store.RecordRun(ctx, ok))
	require.NoError(t, store.RecordRun(ctx, failed))

	var status string
	require.NoError(t, store.db.Get(&status, `SELECT status FROM runs WHERE id = ?`, "ok"))
	assert.Equal(t, "succeeded", status)
	require.NoError(t, store.db.Get(&status, `SELECT status FROM runs WHERE id = ?`, "failed"))
	assert.Equal(t, "failed", status)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRun(ctx, newTestReport("run-1", "prod", time.Now())))
	err := store.RecordRun(ctx, newTestReport("run-1", "prod", time.Now()))

	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestRecordRun_RequiresID(t *testing.T) {
	store := setupTestStore(t)

	err := store.RecordRun(context.Background(), newTestReport("", "prod", time.Now()))

	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestListRuns_RejectsUnknownUnitStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.RecordRun(ctx, newTestReport("run-1", "prod", time.Now())))
	_, err := store.db.Exec(`UPDATE units SET status = 'exploded' WHERE position = 0`)
	require.NoError(t, err)

	_, err = store.ListRuns(ctx, DefaultListOptions())

	assert.ErrorIs(t, err, ErrInvalidData)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "ListRuns", storeErr.Op)
	assert.Equal(t, "../api", storeErr.ID)
}

func TestNewSQLiteStore_KeepsCause(t *testing.T) {
	_, err := NewSQLiteStore("/nonexistent-dir/sub/history.db")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Contains(t, err.Error(), "/nonexistent-dir/sub/history.db")
	assert.Contains(t, err.Error(), "unable to open database file")
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		target := "prod"
		if i%2 == 1 {
			target = "staging"
		}
		report := newTestReport(fmt.Sprintf("run-%d", i), target, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.RecordRun(ctx, report))
	}

	t.Run("newest first", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, ListOptions{Limit: 3})
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "run-4", runs[0].ID)
		assert.Equal(t, "run-3", runs[1].ID)
		assert.Equal(t, "run-2", runs[2].ID)
		assert.Len(t, runs[0].Units, 2)
	})

	t.Run("offset", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, ListOptions{Limit: 10, Offset: 3})
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-1", runs[0].ID)
	})

	t.Run("by target", func(t *testing.T) {
		runs, err := store.ListRunsByTarget(ctx, "staging", DefaultListOptions())
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-3", runs[0].ID)
		assert.Equal(t, "run-1", runs[1].ID)
	})

	t.Run("empty", func(t *testing.T) {
		runs, err := store.ListRunsByTarget(ctx, "nope", DefaultListOptions())
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func TestWithTx_RollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx Store) error {
		require.NoError(t, tx.RecordRun(ctx, newTestReport("run-1", "prod", time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	runs, err := store.ListRuns(ctx, DefaultListOptions())
	require.NoError(t, err)
	assert.Empty(t, runs)

	var count int
	require.NoError(t, store.db.Get(&count, `SELECT COUNT(*) FROM units`))
	assert.Zero(t, count)
}

func TestListOptions_Normalize(t *testing.T) {
	tests := []struct {
		in   ListOptions
		want ListOptions
	}{
		{ListOptions{}, ListOptions{Limit: 20}},
		{ListOptions{Limit: 5000, Offset: -1}, ListOptions{Limit: 1000}},
		{ListOptions{Limit: 7, Offset: 3}, ListOptions{Limit: 7, Offset: 3}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Normalize())
	}
}
