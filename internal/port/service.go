package port

import (
	"context"
	"io"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
)

// CreateSessionInput declares intent to upload one file in pieces.
type CreateSessionInput struct {
	WorkspaceID string `json:"workspace_id"`
	ContainerID string `json:"container_id"`
	UserID      string `json:"user_id"`
	Filename    string `json:"filename"`
	TotalSize   int64  `json:"total_size"`
	ChunksCount int    `json:"chunks_count"`
}

// ChunkUploadResult reports one stored chunk and whether the session now
// satisfies the chunk-completeness invariant.
type ChunkUploadResult struct {
	Chunk            *domain.Chunk `json:"chunk"`
	ReadyForAssembly bool          `json:"ready_for_assembly"`
}

// SessionStatusView is what status polling returns: the latest committed
// stage outcome, progress, and the folded metadata views.
type SessionStatusView struct {
	SessionID       string                       `json:"session_id"`
	Filename        string                       `json:"filename"`
	Status          domain.SessionStatus         `json:"status"`
	ChunksCount     int                          `json:"chunks_count"`
	CompletedChunks int                          `json:"completed_chunks"`
	Progress        int                          `json:"progress"`
	MissingChunks   []int                        `json:"missing_chunks,omitempty"`
	Error           string                       `json:"error,omitempty"`
	Metadata        map[string]map[string]string `json:"metadata,omitempty"`
}

// UploadService is the business surface of the chunked upload pipeline.
type UploadService interface {
	// CreateSession registers a new transfer; rejects when an active
	// session already claims the filename in that location.
	CreateSession(ctx context.Context, in CreateSessionInput) (*domain.UploadSession, error)

	// UploadChunk stores one numbered byte range and marks it completed
	// once durably stored and checksum-verified. declaredChecksum is an
	// optional client CRC32 (decimal string); empty skips the comparison.
	UploadChunk(ctx context.Context, sessionID string, number int, payload io.Reader, declaredChecksum string) (*ChunkUploadResult, error)

	// CompleteUpload signals that the client finished sending chunks and
	// hands the session to the assembly stage.
	CompleteUpload(ctx context.Context, sessionID string) error

	// GetStatus reports progress, missing chunks, and failure reasons.
	GetStatus(ctx context.Context, sessionID string) (*SessionStatusView, error)

	// Cancel moves an active session to cancelled; in-flight stages
	// observe the new status and abort their effect.
	Cancel(ctx context.Context, sessionID string) error
}
