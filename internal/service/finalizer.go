package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
	"github.com/Jonathanamir1/WubHub-sub004/pkg/mimetype"
)

// finalizerService promotes an assembled, scan-cleared file into a
// permanent asset. The whole stage is idempotent: the unique session index
// on assets plus the recorded finalization event guarantee at most one
// asset per session no matter how often the job reruns.
type finalizerService struct {
	core *UploadServiceImpl
}

func newFinalizerService(core *UploadServiceImpl) *finalizerService {
	return &finalizerService{core: core}
}

// run is the background finalization stage.
func (s *finalizerService) run(ctx context.Context, sessionID string) error {
	session, err := s.core.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusFinalizing {
		logger.Infow("Skipping finalization, session no longer finalizing", "session_id", sessionID, "status", string(session.Status))
		return nil
	}

	// A previous attempt may have produced the asset and then crashed
	// before the status flip. Reuse it instead of attaching twice.
	asset, err := s.existingAsset(ctx, session)
	if err != nil {
		return err
	}
	if asset == nil {
		asset, err = s.attach(ctx, session)
		if err != nil {
			return err
		}
	}

	if session.FinalizedAssetID() == "" {
		session.AppendEvent(domain.StageFinalization, domain.OutcomeSucceeded, map[string]string{
			"asset_id":       asset.ID,
			"asset_filename": asset.Filename,
			"file_size":      fmt.Sprintf("%d", asset.Size),
		})
	}

	assembledPath := session.AssembledPath
	if err := s.core.transition(ctx, session, domain.StatusCompleted); err != nil {
		if errors.Is(err, port.ErrStatusConflict) {
			logger.Infow("Finalization result discarded, session moved concurrently", "session_id", sessionID)
			return nil
		}
		return err
	}

	// The asset owns the bytes now; the temp file is scratch. Failure to
	// remove it is the sweeper's problem, not the upload's.
	if assembledPath != "" {
		if err := os.Remove(assembledPath); err != nil && !os.IsNotExist(err) {
			logger.Warnw("Failed to remove assembled temp file", "session_id", sessionID, "path", assembledPath, "error", err.Error())
		}
	}

	logger.Infow("Upload finalized", "session_id", sessionID, "asset_id", asset.ID, "size", asset.Size)
	return nil
}

// existingAsset returns the asset a previous attempt already produced, or
// nil when this is the first attempt.
func (s *finalizerService) existingAsset(ctx context.Context, session *domain.UploadSession) (*domain.Asset, error) {
	if session.FinalizedAssetID() == "" {
		// Cheap precondition first; still consult storage in case the
		// event write was lost after the insert succeeded.
		asset, err := s.core.assets.GetBySession(ctx, session.ID)
		if errors.Is(err, port.ErrAssetNotFound) {
			return nil, nil
		}
		return asset, err
	}

	asset, err := s.core.assets.GetBySession(ctx, session.ID)
	if errors.Is(err, port.ErrAssetNotFound) {
		return nil, nil
	}
	return asset, err
}

// attach moves the assembled bytes into durable storage and inserts the
// asset record. The database's unique session index is the final arbiter
// of the attach race.
func (s *finalizerService) attach(ctx context.Context, session *domain.UploadSession) (*domain.Asset, error) {
	in, err := os.Open(session.AssembledPath)
	if err != nil {
		if os.IsNotExist(err) {
			// The file cannot be regenerated; retrying is pointless.
			s.core.failSession(ctx, session, domain.StageFinalization, domain.StatusFinalizationFailed, "assembled file missing: "+err.Error())
			return nil, domain.Terminalf("assembled file missing for session %s", session.ID)
		}
		return nil, fmt.Errorf("failed to open assembled file: %w", err)
	}
	defer in.Close()

	contentType := mimetype.Resolve(session.Filename)
	ref, err := s.core.blob.Attach(ctx, in, session.Filename, contentType, session.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to durable storage: %w", err)
	}

	assetID, err := s.core.idGen.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate asset id: %w", err)
	}

	asset := &domain.Asset{
		ID:             assetID,
		WorkspaceID:    session.WorkspaceID,
		ContainerID:    session.ContainerID,
		UserID:         session.UserID,
		Filename:       session.Filename,
		Size:           session.TotalSize,
		ContentType:    contentType,
		StorageRef:     ref,
		SessionID:      session.ID,
		ChunksCount:    session.ChunksCount,
		ScanVerdict:    session.ScanOutcome(),
		UploadDuration: time.Since(session.CreatedAt).Milliseconds(),
	}

	if err := s.core.assets.Create(ctx, asset); err != nil {
		if errors.Is(err, port.ErrAssetExists) {
			return s.core.assets.GetBySession(ctx, session.ID)
		}
		return nil, err
	}
	return asset, nil
}
