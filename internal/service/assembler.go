package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/google/uuid"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

// assemblerService concatenates a session's chunks, in strict sequence
// order, into one file at a fresh temp path.
type assemblerService struct {
	core *UploadServiceImpl
}

func newAssemblerService(core *UploadServiceImpl) *assemblerService {
	return &assemblerService{core: core}
}

// CanAssemble reports whether the session is in the assembling status and
// its chunk set satisfies the completeness invariant.
func (s *assemblerService) CanAssemble(session *domain.UploadSession, chunks []domain.Chunk) bool {
	return session.Status == domain.StatusAssembling && domain.AssemblyReady(chunks, session.ChunksCount)
}

// run is the background assembly stage. Business failures (incomplete chunk
// set, unreadable chunk, size mismatch) move the session to failed and are
// terminal; only infrastructure errors before any verdict bubble up as
// retryable.
func (s *assemblerService) run(ctx context.Context, sessionID string) error {
	session, err := s.core.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusAssembling {
		// Cancelled or already handled by a concurrent attempt.
		logger.Infow("Skipping assembly, session no longer assembling", "session_id", sessionID, "status", string(session.Status))
		return nil
	}

	chunks, err := s.core.sessions.ListChunks(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.CanAssemble(session, chunks) {
		asmErr := &domain.AssemblyError{SessionID: sessionID, Reason: fmt.Sprintf("chunk set incomplete: missing %v", domain.MissingChunks(chunks, session.ChunksCount))}
		s.core.failSession(ctx, session, domain.StageAssembly, domain.StatusFailed, asmErr.Reason)
		return asmErr
	}

	assembledPath, written, err := s.concatenate(ctx, session, chunks)
	if err != nil {
		var asmErr *domain.AssemblyError
		if errors.As(err, &asmErr) {
			s.core.failSession(ctx, session, domain.StageAssembly, domain.StatusFailed, asmErr.Reason)
		}
		return err
	}

	now := time.Now().UTC()
	session.AssembledPath = assembledPath
	session.ScanQueuedAt = &now
	session.AppendEvent(domain.StageAssembly, domain.OutcomeSucceeded, map[string]string{
		"assembled_bytes": fmt.Sprintf("%d", written),
	})

	if err := s.core.transition(ctx, session, domain.StatusVirusScanning); err != nil {
		// Another actor (cancel) owns the session now; this attempt's file
		// must not survive to be promoted.
		_ = os.Remove(assembledPath)
		if errors.Is(err, port.ErrStatusConflict) {
			logger.Infow("Assembly result discarded, session moved concurrently", "session_id", sessionID)
			return nil
		}
		return err
	}

	s.reclaimChunks(ctx, sessionID)

	logger.Infow("Assembly completed", "session_id", sessionID, "assembled_bytes", written, "path", assembledPath)
	s.core.stages.Dispatch(domain.StageVirusScan, sessionID, func(jobCtx context.Context) error {
		return s.core.scanUseCase.run(jobCtx, sessionID)
	})
	return nil
}

// concatenate streams every chunk, ascending by number, into one new file.
// Each attempt writes to its own path so a concurrent retry can never
// clobber a path another attempt already recorded.
func (s *assemblerService) concatenate(ctx context.Context, session *domain.UploadSession, chunks []domain.Chunk) (string, int64, error) {
	if err := os.MkdirAll(s.core.cfg.Upload.AssembleDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to prepare assembly dir: %w", err)
	}

	path := filepath.Join(
		s.core.cfg.Upload.AssembleDir,
		fmt.Sprintf("%s_%s%s", session.ID, uuid.NewString(), filepath.Ext(session.Filename)),
	)
	out, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create assembled file: %w", err)
	}

	domain.SortChunks(chunks)
	var written int64
	for _, chunk := range chunks {
		n, err := s.appendChunk(ctx, out, chunk)
		if err != nil {
			_ = out.Close()
			_ = os.Remove(path)
			return "", 0, &domain.AssemblyError{
				SessionID: session.ID,
				Reason:    fmt.Sprintf("failed to read chunk %d", chunk.Number),
				Err:       err,
			}
		}
		written += n
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("failed to flush assembled file: %w", err)
	}

	if written != session.TotalSize {
		_ = os.Remove(path)
		return "", 0, &domain.AssemblyError{
			SessionID: session.ID,
			Reason:    fmt.Sprintf("assembled size %d does not match declared total %d", written, session.TotalSize),
		}
	}

	return path, written, nil
}

func (s *assemblerService) appendChunk(ctx context.Context, out io.Writer, chunk domain.Chunk) (int64, error) {
	rc, err := s.core.chunks.Read(ctx, chunk.StorageKey)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		return n, err
	}
	if n != chunk.Size {
		return n, fmt.Errorf("chunk %d stored size %d, read %d", chunk.Number, chunk.Size, n)
	}
	return n, nil
}

// reclaimChunks deletes consumed chunk objects and records. Best effort:
// the sweeper picks up anything left behind.
func (s *assemblerService) reclaimChunks(ctx context.Context, sessionID string) {
	if err := s.core.chunks.DeleteSession(ctx, sessionID); err != nil {
		logger.Warnw("Failed to delete consumed chunk files", "session_id", sessionID, "error", err.Error())
	}
	if err := s.core.sessions.DeleteChunks(ctx, sessionID); err != nil {
		logger.Warnw("Failed to delete consumed chunk records", "session_id", sessionID, "error", err.Error())
	}
}
