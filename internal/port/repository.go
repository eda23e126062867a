package port

import (
	"context"
	"errors"
	"time"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("upload session not found")
	ErrChunkNotFound   = errors.New("chunk not found")
	ErrAssetNotFound   = errors.New("asset not found")

	// ErrDuplicateActiveSession reports that the (workspace, container,
	// filename) slot is already claimed by an active session.
	ErrDuplicateActiveSession = errors.New("an active upload session already exists for this filename")

	// ErrStatusConflict reports a lost compare-and-swap on the session
	// status: another actor moved the session first.
	ErrStatusConflict = errors.New("session status changed concurrently")

	// ErrAssetExists reports that the session already produced an asset.
	ErrAssetExists = errors.New("asset already exists for session")
)

// SessionRepository persists upload sessions and their chunks. Create must
// enforce the active-filename uniqueness gate with a true storage-level
// constraint, and Transition must be the compare-and-swap that serializes
// pipeline stages.
type SessionRepository interface {
	// Create inserts a new session. Returns ErrDuplicateActiveSession when
	// an active session already claims the same filename slot.
	Create(ctx context.Context, session *domain.UploadSession) error

	// Get loads one session with its event log.
	Get(ctx context.Context, id string) (*domain.UploadSession, error)

	// Transition persists the session's staged field changes and moves its
	// status from -> to in one atomic update. Returns ErrStatusConflict
	// when the stored status no longer equals from.
	Transition(ctx context.Context, session *domain.UploadSession, from, to domain.SessionStatus) error

	// SaveChunk upserts a chunk record keyed by (session, number);
	// re-uploading the same number overwrites the previous record.
	SaveChunk(ctx context.Context, chunk *domain.Chunk) error

	// ListChunks returns all chunk records of a session.
	ListChunks(ctx context.Context, sessionID string) ([]domain.Chunk, error)

	// DeleteChunks removes all chunk records of a session.
	DeleteChunks(ctx context.Context, sessionID string) error

	// ListExpired returns up to limit sessions in any of the given statuses
	// not updated since the cutoff.
	ListExpired(ctx context.Context, statuses []domain.SessionStatus, cutoff time.Time, limit int) ([]domain.UploadSession, error)

	// ListStuck returns up to limit sessions sitting in status since before
	// the cutoff.
	ListStuck(ctx context.Context, status domain.SessionStatus, cutoff time.Time, limit int) ([]domain.UploadSession, error)

	// Delete removes the session and, by cascade, its chunk records.
	Delete(ctx context.Context, id string) error
}

// AssetRepository persists finalized assets.
type AssetRepository interface {
	// Create inserts an asset. Returns ErrAssetExists when the originating
	// session already has one.
	Create(ctx context.Context, asset *domain.Asset) error

	// GetBySession loads the asset produced by a session, if any.
	GetBySession(ctx context.Context, sessionID string) (*domain.Asset, error)
}
