package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jonathanamir1/WubHub-sub004/internal/adapter/outbound/chunkstore"
	"github.com/Jonathanamir1/WubHub-sub004/internal/config"
	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
	"github.com/Jonathanamir1/WubHub-sub004/pkg/idgen"
)

// fakeSessionRepo is an in-memory SessionRepository with the same uniqueness
// and compare-and-swap semantics as the MySQL implementation.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.UploadSession
	chunks   map[string][]domain.Chunk

	transitionErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*domain.UploadSession),
		chunks:   make(map[string][]domain.Chunk),
	}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *domain.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ActiveSlot != nil {
		for _, existing := range r.sessions {
			if existing.ActiveSlot != nil && *existing.ActiveSlot == *session.ActiveSlot {
				return port.ErrDuplicateActiveSession
			}
		}
	}

	stored := *session
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	r.sessions[session.ID] = &stored
	return nil
}

func (r *fakeSessionRepo) Get(ctx context.Context, id string) (*domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[id]
	if !ok {
		return nil, port.ErrSessionNotFound
	}
	copied := *stored
	copied.Events = append(domain.StageEvents(nil), stored.Events...)
	return &copied, nil
}

func (r *fakeSessionRepo) Transition(ctx context.Context, session *domain.UploadSession, from, to domain.SessionStatus) error {
	if r.transitionErr != nil {
		return r.transitionErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[session.ID]
	if !ok || stored.Status != from {
		return port.ErrStatusConflict
	}

	stored.Status = to
	stored.Events = append(domain.StageEvents(nil), session.Events...)
	stored.AssembledPath = session.AssembledPath
	stored.ScanQueuedAt = session.ScanQueuedAt
	stored.ScanCompletedAt = session.ScanCompletedAt
	stored.UpdatedAt = time.Now().UTC()
	if !to.Active() {
		stored.ActiveSlot = nil
	}

	session.Status = to
	if !to.Active() {
		session.ActiveSlot = nil
	}
	return nil
}

func (r *fakeSessionRepo) SaveChunk(ctx context.Context, chunk *domain.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.chunks[chunk.SessionID]
	for i, existing := range stored {
		if existing.Number == chunk.Number {
			stored[i] = *chunk
			return nil
		}
	}
	r.chunks[chunk.SessionID] = append(stored, *chunk)
	return nil
}

func (r *fakeSessionRepo) ListChunks(ctx context.Context, sessionID string) ([]domain.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunks := append([]domain.Chunk(nil), r.chunks[sessionID]...)
	domain.SortChunks(chunks)
	return chunks, nil
}

func (r *fakeSessionRepo) DeleteChunks(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks, sessionID)
	return nil
}

func (r *fakeSessionRepo) ListExpired(ctx context.Context, statuses []domain.SessionStatus, cutoff time.Time, limit int) ([]domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.UploadSession
	for _, stored := range r.sessions {
		if len(out) >= limit {
			break
		}
		for _, st := range statuses {
			if stored.Status == st && stored.UpdatedAt.Before(cutoff) {
				out = append(out, *stored)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListStuck(ctx context.Context, status domain.SessionStatus, cutoff time.Time, limit int) ([]domain.UploadSession, error) {
	return r.ListExpired(ctx, []domain.SessionStatus{status}, cutoff, limit)
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.chunks, id)
	return nil
}

// touch backdates a stored session so retention cutoffs apply.
func (r *fakeSessionRepo) touch(id string, updatedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.sessions[id]; ok {
		stored.UpdatedAt = updatedAt
	}
}

// forceStatus sets a stored status directly, bypassing the transition table.
func (r *fakeSessionRepo) forceStatus(id string, status domain.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.sessions[id]; ok {
		stored.Status = status
		if !status.Active() {
			stored.ActiveSlot = nil
		}
	}
}

// fakeAssetRepo enforces the unique session index in memory.
type fakeAssetRepo struct {
	mu     sync.Mutex
	assets map[string]*domain.Asset // keyed by session ID

	createErr error
}

func newFakeAssetRepo() *fakeAssetRepo {
	return &fakeAssetRepo{assets: make(map[string]*domain.Asset)}
}

func (r *fakeAssetRepo) Create(ctx context.Context, asset *domain.Asset) error {
	if r.createErr != nil {
		return r.createErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[asset.SessionID]; exists {
		return port.ErrAssetExists
	}
	stored := *asset
	r.assets[asset.SessionID] = &stored
	return nil
}

func (r *fakeAssetRepo) GetBySession(ctx context.Context, sessionID string) (*domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.assets[sessionID]
	if !ok {
		return nil, port.ErrAssetNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeAssetRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assets)
}

// fakeScanner returns a scripted verdict per call.
type fakeScanner struct {
	mu      sync.Mutex
	results []scanVerdict
	calls   int
}

type scanVerdict struct {
	result *port.ScanResult
	err    error
}

func (s *fakeScanner) Scan(ctx context.Context, filePath string) (*port.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	verdict := scanVerdict{result: &port.ScanResult{Clean: true, Scanner: "clamav"}}
	if s.calls < len(s.results) {
		verdict = s.results[s.calls]
	} else if len(s.results) > 0 {
		verdict = s.results[len(s.results)-1]
	}
	s.calls++
	return verdict.result, verdict.err
}

func (s *fakeScanner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeBlob captures attached payloads.
type fakeBlob struct {
	mu       sync.Mutex
	attached [][]byte
	err      error
}

func (b *fakeBlob) Attach(ctx context.Context, r io.Reader, filename, contentType string, size int64) (string, error) {
	if b.err != nil {
		return "", b.err
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = append(b.attached, payload)
	return fmt.Sprintf("blob://%d/%s", len(b.attached), filename), nil
}

// syncDispatcher runs stage jobs inline so tests observe the whole cascade.
type syncDispatcher struct{}

func (syncDispatcher) Dispatch(stage, sessionID string, job func(ctx context.Context) error) {
	_ = job(context.Background())
}

// noopDispatcher records dispatches without running them, letting tests
// drive individual stages by hand.
type noopDispatcher struct {
	mu     sync.Mutex
	stages []string
}

func (d *noopDispatcher) Dispatch(stage, sessionID string, job func(ctx context.Context) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stages = append(d.stages, stage)
}

type testEnv struct {
	svc      *UploadServiceImpl
	sessions *fakeSessionRepo
	assets   *fakeAssetRepo
	scanner  *fakeScanner
	blob     *fakeBlob
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Upload.ChunkDir = t.TempDir()
	cfg.Upload.AssembleDir = t.TempDir()
	cfg.Scanner.FailureThreshold = 100
	return cfg
}

func newTestEnv(t *testing.T, dispatcher StageDispatcher) *testEnv {
	t.Helper()

	cfg := testConfig(t)
	sessions := newFakeSessionRepo()
	assets := newFakeAssetRepo()
	scanner := &fakeScanner{}
	blob := &fakeBlob{}

	chunks, err := chunkstore.NewLocal(cfg.Upload.ChunkDir)
	require.NoError(t, err)

	idGen, err := idgen.New(1, nil)
	require.NoError(t, err)

	svc := NewUploadService(cfg, sessions, assets, chunks, scanner, blob, idGen, dispatcher)
	return &testEnv{
		svc:      svc,
		sessions: sessions,
		assets:   assets,
		scanner:  scanner,
		blob:     blob,
	}
}

func createSession(t *testing.T, env *testEnv, chunksCount int, totalSize int64) *domain.UploadSession {
	t.Helper()

	session, err := env.svc.CreateSession(context.Background(), port.CreateSessionInput{
		WorkspaceID: "ws1",
		ContainerID: "proj1",
		UserID:      "user1",
		Filename:    "track.wav",
		TotalSize:   totalSize,
		ChunksCount: chunksCount,
	})
	require.NoError(t, err)
	return session
}

func uploadChunks(t *testing.T, env *testEnv, sessionID string, payloads ...[]byte) {
	t.Helper()

	for i, payload := range payloads {
		_, err := env.svc.UploadChunk(context.Background(), sessionID, i+1, bytes.NewReader(payload), "")
		require.NoError(t, err)
	}
}

func sessionStatus(t *testing.T, env *testEnv, id string) domain.SessionStatus {
	t.Helper()

	session, err := env.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return session.Status
}
