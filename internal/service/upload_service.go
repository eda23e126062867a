package service

import (
	"context"
	"io"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/Jonathanamir1/WubHub-sub004/internal/config"
	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
	"github.com/Jonathanamir1/WubHub-sub004/pkg/idgen"
)

// StageDispatcher hands a committed pipeline stage to the background
// execution layer. Implementations decide on worker pools and retry
// policy; the job itself must be safe to re-run.
type StageDispatcher interface {
	Dispatch(stage, sessionID string, job func(ctx context.Context) error)
}

// UploadServiceImpl is the facade that wires use-case services for the
// chunked upload pipeline.
type UploadServiceImpl struct {
	cfg      *config.Config
	sessions port.SessionRepository
	assets   port.AssetRepository
	chunks   port.ChunkStore
	scanner  port.Scanner
	blob     port.BlobStore
	idGen    *idgen.Snowflake
	stages   StageDispatcher

	sessionUseCase  *sessionService
	assembleUseCase *assemblerService
	scanUseCase     *scanService
	finalizeUseCase *finalizerService
	sweepUseCase    *sweeperService
}

// Ensure UploadServiceImpl implements port.UploadService.
var _ port.UploadService = (*UploadServiceImpl)(nil)

// NewUploadService builds the pipeline facade and all use-case services.
func NewUploadService(
	cfg *config.Config,
	sessions port.SessionRepository,
	assets port.AssetRepository,
	chunks port.ChunkStore,
	scanner port.Scanner,
	blob port.BlobStore,
	idGen *idgen.Snowflake,
	stages StageDispatcher,
) *UploadServiceImpl {
	svc := &UploadServiceImpl{
		cfg:      cfg,
		sessions: sessions,
		assets:   assets,
		chunks:   chunks,
		scanner:  scanner,
		blob:     blob,
		idGen:    idGen,
		stages:   stages,
	}

	svc.sessionUseCase = newSessionService(svc)
	svc.assembleUseCase = newAssemblerService(svc)
	svc.scanUseCase = newScanService(svc)
	svc.finalizeUseCase = newFinalizerService(svc)
	svc.sweepUseCase = newSweeperService(svc)

	return svc
}

// CreateSession delegates to the session use-case service.
func (s *UploadServiceImpl) CreateSession(ctx context.Context, in port.CreateSessionInput) (*domain.UploadSession, error) {
	return s.sessionUseCase.create(ctx, in)
}

// UploadChunk delegates to the session use-case service.
func (s *UploadServiceImpl) UploadChunk(ctx context.Context, sessionID string, number int, payload io.Reader, declaredChecksum string) (*port.ChunkUploadResult, error) {
	return s.sessionUseCase.uploadChunk(ctx, sessionID, number, payload, declaredChecksum)
}

// CompleteUpload delegates to the session use-case service.
func (s *UploadServiceImpl) CompleteUpload(ctx context.Context, sessionID string) error {
	return s.sessionUseCase.complete(ctx, sessionID)
}

// GetStatus delegates to the session use-case service.
func (s *UploadServiceImpl) GetStatus(ctx context.Context, sessionID string) (*port.SessionStatusView, error) {
	return s.sessionUseCase.status(ctx, sessionID)
}

// Cancel delegates to the session use-case service.
func (s *UploadServiceImpl) Cancel(ctx context.Context, sessionID string) error {
	return s.sessionUseCase.cancel(ctx, sessionID)
}

// SweepExpired reaps abandoned and cancelled sessions past retention.
func (s *UploadServiceImpl) SweepExpired(ctx context.Context) (int, error) {
	return s.sweepUseCase.sweepExpired(ctx)
}

// SweepStuckAssemblies force-fails sessions stalled in assembling.
func (s *UploadServiceImpl) SweepStuckAssemblies(ctx context.Context) (int, error) {
	return s.sweepUseCase.sweepStuckAssemblies(ctx)
}

// transition validates the state movement and commits it through the
// repository's compare-and-swap. This is the single gate every stage goes
// through; illegal pairs are terminal programming/business failures.
func (s *UploadServiceImpl) transition(ctx context.Context, session *domain.UploadSession, to domain.SessionStatus) error {
	from := session.Status
	if !domain.CanTransition(from, to) {
		return domain.Terminalf("illegal session transition %s -> %s", from, to)
	}
	return s.sessions.Transition(ctx, session, from, to)
}

// failSession records a stage failure and moves the session to a terminal
// failure status. A lost compare-and-swap means another actor (cancel, a
// concurrent stage) already decided the outcome; that is logged, not fought.
func (s *UploadServiceImpl) failSession(ctx context.Context, session *domain.UploadSession, stage string, to domain.SessionStatus, reason string) {
	session.AppendEvent(stage, domain.OutcomeFailed, map[string]string{"error": reason})
	if err := s.transition(ctx, session, to); err != nil {
		logger.Warnw("Failed to record stage failure",
			"session_id", session.ID,
			"stage", stage,
			"target_status", string(to),
			"error", err.Error(),
		)
	}
}
