package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

// TestPipeline_HappyPath runs the whole lifecycle inline: create, upload
// two chunks, complete, and let assembly, scan, and finalization cascade.
func TestPipeline_HappyPath(t *testing.T) {
	env := newTestEnv(t, syncDispatcher{})

	chunk1 := bytes.Repeat([]byte("a"), 1022)
	chunk2 := bytes.Repeat([]byte("b"), 1022)

	session, err := env.svc.CreateSession(context.Background(), port.CreateSessionInput{
		WorkspaceID: "ws1",
		ContainerID: "proj1",
		UserID:      "user1",
		Filename:    "track.wav",
		TotalSize:   2044,
		ChunksCount: 2,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, session.Status)

	result, err := env.svc.UploadChunk(context.Background(), session.ID, 1, bytes.NewReader(chunk1), "")
	require.NoError(t, err)
	assert.False(t, result.ReadyForAssembly)

	result, err = env.svc.UploadChunk(context.Background(), session.ID, 2, bytes.NewReader(chunk2), "")
	require.NoError(t, err)
	assert.True(t, result.ReadyForAssembly)

	// Complete cascades through every background stage synchronously.
	require.NoError(t, env.svc.CompleteUpload(context.Background(), session.ID))

	view, err := env.svc.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, view.Status)
	assert.Equal(t, 2, view.CompletedChunks)
	assert.Equal(t, 100, view.Progress)
	assert.Empty(t, view.Error)
	assert.Equal(t, domain.OutcomeSucceeded, view.Metadata["virus_scan"]["status"])
	assert.Equal(t, "2044", view.Metadata["finalization"]["file_size"])

	// Exactly one asset holding the concatenated payload.
	asset, err := env.assets.GetBySession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2044), asset.Size)
	assert.Equal(t, "audio/wav", asset.ContentType)
	assert.Equal(t, 2, asset.ChunksCount)
	require.Len(t, env.blob.attached, 1)
	assert.Equal(t, append(append([]byte{}, chunk1...), chunk2...), env.blob.attached[0])

	// The filename slot is free again for a fresh upload.
	_, err = env.svc.CreateSession(context.Background(), port.CreateSessionInput{
		WorkspaceID: "ws1", ContainerID: "proj1", UserID: "user1",
		Filename: "track.wav", TotalSize: 1, ChunksCount: 1,
	})
	assert.NoError(t, err)
}

func TestPipeline_InfectedUploadNeverBecomesAsset(t *testing.T) {
	env := newTestEnv(t, syncDispatcher{})
	env.scanner.results = []scanVerdict{{
		result: &port.ScanResult{Clean: false, Scanner: "clamav", Signature: "Eicar-Test-Signature"},
	}}

	session := createSession(t, env, 2, 10)
	uploadChunks(t, env, session.ID, []byte("AAAAA"), []byte("BBBBB"))
	require.NoError(t, env.svc.CompleteUpload(context.Background(), session.ID))

	view, err := env.svc.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVirusScanFailed, view.Status)
	assert.Contains(t, view.Error, "Eicar-Test-Signature")
	assert.Equal(t, 0, env.assets.count())
	assert.Empty(t, env.blob.attached)
}

func TestPipeline_ScannerDownStillCompletes(t *testing.T) {
	env := newTestEnv(t, syncDispatcher{})
	env.scanner.results = []scanVerdict{{err: port.ErrScannerUnavailable}}

	session := createSession(t, env, 1, 5)
	uploadChunks(t, env, session.ID, []byte("AAAAA"))
	require.NoError(t, env.svc.CompleteUpload(context.Background(), session.ID))

	view, err := env.svc.GetStatus(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, view.Status)
	assert.Equal(t, domain.OutcomeSkipped, view.Metadata["virus_scan"]["status"])

	asset, err := env.assets.GetBySession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, asset.ScanVerdict)
}
