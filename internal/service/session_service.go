package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

// sessionService owns the client-facing session operations: creation behind
// the unique-filename gate, chunk ingest, status polling, and cancellation.
type sessionService struct {
	core *UploadServiceImpl
}

func newSessionService(core *UploadServiceImpl) *sessionService {
	return &sessionService{core: core}
}

func (s *sessionService) create(ctx context.Context, in port.CreateSessionInput) (*domain.UploadSession, error) {
	if err := validateCreateInput(in, s.core.cfg.Upload.MaxFileSize); err != nil {
		return nil, err
	}

	id, err := s.core.idGen.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	slot := domain.SlotKey(in.WorkspaceID, in.ContainerID, in.Filename)
	session := &domain.UploadSession{
		ID:          id,
		WorkspaceID: in.WorkspaceID,
		ContainerID: in.ContainerID,
		UserID:      in.UserID,
		Filename:    filepath.Base(in.Filename),
		TotalSize:   in.TotalSize,
		ChunksCount: in.ChunksCount,
		Status:      domain.StatusPending,
		ActiveSlot:  &slot,
	}

	// The repository's uniqueness constraint is the race gate: two
	// concurrent creations for the same slot cannot both pass it.
	if err := s.core.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	logger.Infow("Upload session created",
		"session_id", session.ID,
		"workspace_id", session.WorkspaceID,
		"filename", session.Filename,
		"total_size", session.TotalSize,
		"chunks_count", session.ChunksCount,
	)
	return session, nil
}

func (s *sessionService) uploadChunk(ctx context.Context, sessionID string, number int, payload io.Reader, declaredChecksum string) (*port.ChunkUploadResult, error) {
	session, err := s.core.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != domain.StatusPending && session.Status != domain.StatusUploading {
		return nil, domain.Terminalf("session is %s, cannot accept chunks", session.Status)
	}
	if number < 1 || number > session.ChunksCount {
		return nil, domain.Terminalf("invalid chunk number %d, session declares %d chunks", number, session.ChunksCount)
	}

	if s.core.cfg.Upload.MaxChunkSize > 0 {
		payload = io.LimitReader(payload, s.core.cfg.Upload.MaxChunkSize+1)
	}

	key, size, checksum, err := s.core.chunks.Store(ctx, sessionID, number, payload)
	if err != nil {
		return nil, err
	}
	if s.core.cfg.Upload.MaxChunkSize > 0 && size > s.core.cfg.Upload.MaxChunkSize {
		_ = s.core.chunks.Delete(ctx, key)
		return nil, domain.Terminalf("chunk %d exceeds maximum chunk size %d", number, s.core.cfg.Upload.MaxChunkSize)
	}

	chunk := &domain.Chunk{
		SessionID:  sessionID,
		Number:     number,
		Size:       size,
		Checksum:   checksum,
		Status:     domain.ChunkCompleted,
		StorageKey: key,
	}

	// A checksum mismatch fails this chunk, never the session: the client
	// retries the same number and the store overwrites.
	if declaredChecksum != "" {
		declared, parseErr := strconv.ParseUint(declaredChecksum, 10, 32)
		if parseErr != nil {
			return nil, domain.Terminalf("invalid chunk checksum %q", declaredChecksum)
		}
		if uint32(declared) != checksum {
			chunk.Status = domain.ChunkFailed
			if saveErr := s.core.sessions.SaveChunk(ctx, chunk); saveErr != nil {
				logger.Warnw("Failed to record failed chunk", "session_id", sessionID, "number", number, "error", saveErr.Error())
			}
			return nil, domain.Terminalf("chunk %d checksum mismatch: declared %d, stored %d", number, declared, checksum)
		}
	}

	if err := s.core.sessions.SaveChunk(ctx, chunk); err != nil {
		return nil, err
	}

	// First chunk moves pending -> uploading; losing this CAS just means a
	// concurrent chunk won it.
	if session.Status == domain.StatusPending {
		if err := s.core.transition(ctx, session, domain.StatusUploading); err != nil && !errors.Is(err, port.ErrStatusConflict) {
			return nil, err
		}
	}

	stored, err := s.core.sessions.ListChunks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &port.ChunkUploadResult{
		Chunk:            chunk,
		ReadyForAssembly: domain.AssemblyReady(stored, session.ChunksCount),
	}, nil
}

func (s *sessionService) complete(ctx context.Context, sessionID string) error {
	session, err := s.core.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.Status != domain.StatusPending && session.Status != domain.StatusUploading {
		return domain.Terminalf("session is %s, cannot signal completion", session.Status)
	}

	chunks, err := s.core.sessions.ListChunks(ctx, sessionID)
	if err != nil {
		return err
	}
	if missing := domain.MissingChunks(chunks, session.ChunksCount); len(missing) > 0 {
		return domain.Terminalf("cannot assemble: missing chunks %v", missing)
	}
	if !domain.AssemblyReady(chunks, session.ChunksCount) {
		return domain.Terminalf("cannot assemble: chunk set inconsistent for %d declared chunks", session.ChunksCount)
	}

	session.AppendEvent(domain.StageAssembly, domain.OutcomeQueued, nil)
	if err := s.core.transition(ctx, session, domain.StatusAssembling); err != nil {
		return err
	}

	logger.Infow("Upload complete, assembly queued", "session_id", sessionID, "chunks", session.ChunksCount)
	s.core.stages.Dispatch(domain.StageAssembly, sessionID, func(jobCtx context.Context) error {
		return s.core.assembleUseCase.run(jobCtx, sessionID)
	})
	return nil
}

func (s *sessionService) status(ctx context.Context, sessionID string) (*port.SessionStatusView, error) {
	session, err := s.core.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.core.sessions.ListChunks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := &port.SessionStatusView{
		SessionID:   session.ID,
		Filename:    session.Filename,
		Status:      session.Status,
		ChunksCount: session.ChunksCount,
		Metadata:    session.MetadataView(),
	}

	for _, c := range chunks {
		if c.Status == domain.ChunkCompleted {
			view.CompletedChunks++
		}
	}
	switch session.Status {
	case domain.StatusPending, domain.StatusUploading:
		view.MissingChunks = domain.MissingChunks(chunks, session.ChunksCount)
	case domain.StatusVirusScanning, domain.StatusFinalizing, domain.StatusCompleted,
		domain.StatusVirusScanFailed, domain.StatusFinalizationFailed:
		// A successful assembly consumed the chunk records; the transfer
		// itself finished. Failed and cancelled sessions keep their real
		// count so an incomplete upload is not reported as complete.
		view.CompletedChunks = session.ChunksCount
	}
	if session.ChunksCount > 0 {
		view.Progress = view.CompletedChunks * 100 / session.ChunksCount
	}
	if session.Status.Terminal() && session.Status != domain.StatusCompleted {
		view.Error = session.LastError()
	}

	return view, nil
}

func (s *sessionService) cancel(ctx context.Context, sessionID string) error {
	for attempt := 0; attempt < 3; attempt++ {
		session, err := s.core.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == domain.StatusCancelled {
			return nil
		}
		if session.Status.Terminal() {
			return domain.Terminalf("session is already %s", session.Status)
		}
		if session.Status == domain.StatusFinalizing {
			// Finalization may already have produced the asset; refuse
			// rather than orphan it.
			return domain.Terminalf("session is finalizing and can no longer be cancelled")
		}

		session.AppendEvent(domain.StageCleanup, domain.OutcomeCancelled, nil)
		err = s.core.transition(ctx, session, domain.StatusCancelled)
		if err == nil {
			logger.Infow("Upload session cancelled", "session_id", sessionID)
			return nil
		}
		if !errors.Is(err, port.ErrStatusConflict) {
			return err
		}
		// Lost the CAS to an in-flight stage; re-observe and try again.
	}
	return port.ErrStatusConflict
}

func validateCreateInput(in port.CreateSessionInput, maxFileSize int64) error {
	switch {
	case in.WorkspaceID == "":
		return domain.Terminalf("workspace_id is required")
	case in.UserID == "":
		return domain.Terminalf("user_id is required")
	case in.Filename == "" || filepath.Base(in.Filename) == "." || filepath.Base(in.Filename) == "/":
		return domain.Terminalf("filename is required")
	case in.TotalSize <= 0:
		return domain.Terminalf("total_size must be positive")
	case in.ChunksCount <= 0:
		return domain.Terminalf("chunks_count must be positive")
	case maxFileSize > 0 && in.TotalSize > maxFileSize:
		return domain.Terminalf("total_size %d exceeds maximum %d", in.TotalSize, maxFileSize)
	}
	return nil
}
