// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun(scanID string) *types.PipelineRun {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &types.PipelineRun{
		ScanID:     scanID,
		Status:     types.StatusRunning,
		Stage:      types.StageDetecting,
		ConfigHash: "abc123",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStoreRunRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := sampleRun("scan-1")
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "scan-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.ScanID, got.ScanID)
	assert.Equal(t, run.Status, got.Status)
	assert.Equal(t, run.Stage, got.Stage)
	assert.Equal(t, run.ConfigHash, got.ConfigHash)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
}

func TestStoreGetRunMissing(t *testing.T) {
	store := testStore(t)
	got, err := store.GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got, "missing run is (nil, nil), not an error")
}

func TestStoreUpsertOverwrites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := sampleRun("scan-1")
	require.NoError(t, store.SaveRun(ctx, run))

	run.Status = types.StatusStageFailed
	run.FailedStage = types.StageSegmenting
	run.Error = "patch inference exploded"
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStageFailed, got.Status)
	assert.Equal(t, types.StageSegmenting, got.FailedStage)
	assert.Equal(t, "patch inference exploded", got.Error)
}

func TestStoreListRunsNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	old := sampleRun("scan-old")
	old.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.SaveRun(ctx, old))

	recent := sampleRun("scan-recent")
	require.NoError(t, store.SaveRun(ctx, recent))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "scan-recent", runs[0].ScanID)
	assert.Equal(t, "scan-old", runs[1].ScanID)
}

func TestStoreArtifacts(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, sampleRun("scan-1")))

	require.NoError(t, store.SaveArtifact(ctx, "scan-1", types.StageDetecting, "/tmp/detections.yaml"))

	path, err := store.ArtifactPath(ctx, "scan-1", types.StageDetecting)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/detections.yaml", path)

	// Unrecorded stage yields empty path without error.
	path, err = store.ArtifactPath(ctx, "scan-1", types.StageSegmenting)
	require.NoError(t, err)
	assert.Empty(t, path)

	// Upsert replaces the path.
	require.NoError(t, store.SaveArtifact(ctx, "scan-1", types.StageDetecting, "/tmp/new.yaml"))
	path, err = store.ArtifactPath(ctx, "scan-1", types.StageDetecting)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/new.yaml", path)

	require.NoError(t, store.DeleteArtifacts(ctx, "scan-1"))
	path, err = store.ArtifactPath(ctx, "scan-1", types.StageDetecting)
	require.NoError(t, err)
	assert.Empty(t, path)
}
