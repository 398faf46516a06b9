package lifecycle

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/coldtier/internal/cluster"
	"github.com/syntrixbase/coldtier/internal/events"
)

func TestCleanup_ScenarioC_ZeroEpochNeverDeleted(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.putSnapshot(
		cluster.SnapshotEntry{ID: "log-a-000001", Status: "SUCCESS", EndEpoch: "0"},
		cluster.SnapshotInfo{Snapshot: "log-a-000001", State: cluster.SnapshotSuccess},
	)

	report, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, env.cluster.Mutations())
	assert.True(t, env.cluster.hasSnapshot("log-a-000001"))
}

func TestCleanup_ScenarioD_DeletesOnlyPastRetention(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addSnapshot("log-a-000001", 100)
	env.cluster.addSnapshot("log-a-000002", 70)

	report, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Acted)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"DeleteSnapshot log-a-000001"}, env.cluster.Mutations())
	assert.False(t, env.cluster.hasSnapshot("log-a-000001"))
	assert.True(t, env.cluster.hasSnapshot("log-a-000002"))

	deleted := env.recorder.OfKind(events.KindSnapshotDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "log-a-000001", deleted[0].Snapshot)
}

func TestCleanup_MountDeletedBeforeSnapshot(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addSnapshot("log-a", 100)
	env.cluster.addMount("log-a-snapshot", "log-a", 10)

	_, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	// the mount is aged by its snapshot, not its own creation date
	assert.Equal(t, []string{
		"DeleteIndex log-a-snapshot",
		"DeleteSnapshot log-a",
	}, env.cluster.Mutations())
	assert.False(t, env.cluster.hasIndex("log-a-snapshot"))
	assert.False(t, env.cluster.hasSnapshot("log-a"))
}

func TestCleanup_MountAgeFallsBackToIndexAge(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addMount("log-a-snapshot", "log-a", 95)
	env.cluster.addMount("log-b-snapshot", "log-b", 30)

	_, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"DeleteIndex log-a-snapshot"}, env.cluster.Mutations())
}

func TestCleanup_UnmanagedMountsAreIgnored(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addMount("metrics-a-snapshot", "metrics-a", 200)
	env.cluster.addIndex("metrics-b", 200)

	_, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Empty(t, env.cluster.Mutations())
}

func TestCleanup_RegularIndexWithSnapshot(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addIndex("log-b", 100)
	env.cluster.addSnapshot("log-b", 100)

	_, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)

	mutations := env.cluster.Mutations()
	require.NotEmpty(t, mutations)
	assert.Equal(t, "DeleteIndex log-b", mutations[0])
	assert.Contains(t, mutations, "DeleteSnapshot log-b")
	assert.False(t, env.cluster.hasIndex("log-b"))
	assert.False(t, env.cluster.hasSnapshot("log-b"))
}

func TestCleanup_SnapshotKeptWhileMounted(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addIndex("log-c", 100)
	env.cluster.addSnapshot("log-c", 30)
	env.cluster.addMount("log-c-snapshot", "log-c", 30)

	_, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"DeleteIndex log-c"}, env.cluster.Mutations())
	assert.True(t, env.cluster.hasSnapshot("log-c"))
	assert.True(t, env.cluster.hasIndex("log-c-snapshot"))
}

func TestCleanup_WriteIndexNeverDeleted(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addWriteIndex("log-a-000009", "log-a-write", 500)
	env.cluster.addIndex("log-unreadable", 100)
	env.cluster.failAlways("IndexAliases log-unreadable", errors.New("boom"))

	report, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Empty(t, env.cluster.Mutations())
}

func TestCleanup_ImplausibleAgesAreSkipped(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addIndex("log-ancient", 20100)
	env.cluster.putSnapshot(
		cluster.SnapshotEntry{ID: "log-epoch-one", Status: "SUCCESS", EndEpoch: "1"},
		cluster.SnapshotInfo{Snapshot: "log-epoch-one", State: cluster.SnapshotSuccess},
	)

	_, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Empty(t, env.cluster.Mutations())

	warnings := env.recorder.OfKind(events.KindIntegrityWarning)
	require.Len(t, warnings, 2)
	assert.Equal(t, "log-ancient", warnings[0].Index)
	assert.Equal(t, "log-epoch-one", warnings[1].Snapshot)
	assert.Equal(t, "implausible age", warnings[1].Reason)
}

func TestCleanup_UnmanagedMountBlocksSnapshotDeletion(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addSnapshot("metrics-a", 100)
	env.cluster.addMount("metrics-a-snapshot", "metrics-a", 100)

	report, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, env.cluster.Mutations())
	assert.True(t, env.cluster.hasSnapshot("metrics-a"))
}

func TestCleanup_NothingBelowRetentionIsDeleted(t *testing.T) {
	for _, age := range []float64{0, 1, 7, 45, 89.99} {
		t.Run(strconv.FormatFloat(age, 'f', -1, 64), func(t *testing.T) {
			env := newTestEnv(t, testConfig())
			env.cluster.addIndex("log-a", age)
			env.cluster.addSnapshot("log-b", age)
			env.cluster.addMount("log-b-snapshot", "log-b", age)
			env.cluster.addSnapshot("alert-c", age)

			_, err := env.o.CleanupOldData(context.Background())
			require.NoError(t, err)
			assert.Empty(t, env.cluster.Mutations())
		})
	}
}

func TestCleanup_ContinuesWhenIndexListingFails(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addSnapshot("log-a", 100)
	env.cluster.failOnce("ListIndices", errors.New("boom"))

	report, err := env.o.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Acted)
	assert.False(t, env.cluster.hasSnapshot("log-a"))
}

func TestCleanup_Cancelled(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.cluster.addSnapshot("log-a", 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.o.CleanupOldData(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, env.cluster.Mutations())
}
