package service

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

// reapableStatuses are terminal states whose sessions may be deleted once
// the retention window passes. Completed sessions are kept as history.
var reapableStatuses = []domain.SessionStatus{
	domain.StatusCancelled,
	domain.StatusFailed,
	domain.StatusVirusScanFailed,
	domain.StatusFinalizationFailed,
}

// staleStatuses are pre-assembly states an abandoned client leaves behind.
var staleStatuses = []domain.SessionStatus{
	domain.StatusPending,
	domain.StatusUploading,
}

// sweeperService reclaims storage from dead sessions and unwedges sessions
// stalled mid-assembly. Every session is handled in isolation so one bad
// row never blocks the rest of the batch.
type sweeperService struct {
	core *UploadServiceImpl
}

func newSweeperService(core *UploadServiceImpl) *sweeperService {
	return &sweeperService{core: core}
}

// sweepExpired deletes terminal sessions past retention and stale abandoned
// sessions, together with their chunk files, chunk records, and any
// assembled temp file. Returns how many sessions were reclaimed.
func (s *sweeperService) sweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	batch := s.batchSize()

	terminalCutoff := now.Add(-time.Duration(s.core.cfg.Sweeper.CancelledRetentionHours) * time.Hour)
	terminal, err := s.core.sessions.ListExpired(ctx, reapableStatuses, terminalCutoff, batch)
	if err != nil {
		return 0, err
	}

	staleCutoff := now.Add(-time.Duration(s.core.cfg.Sweeper.StaleRetentionHours) * time.Hour)
	stale, err := s.core.sessions.ListExpired(ctx, staleStatuses, staleCutoff, batch)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, session := range append(terminal, stale...) {
		if ctx.Err() != nil {
			return reclaimed, ctx.Err()
		}
		if err := s.reap(ctx, &session); err != nil {
			logger.Warnw("Failed to reap session", "session_id", session.ID, "status", string(session.Status), "error", err.Error())
			continue
		}
		reclaimed++
	}

	if reclaimed > 0 {
		logger.Infow("Sweep reclaimed sessions", "count", reclaimed)
	}
	return reclaimed, nil
}

// reap removes everything one dead session still holds. A stale active
// session is cancelled first so the filename slot opens even if deleting
// the row fails afterwards.
func (s *sweeperService) reap(ctx context.Context, session *domain.UploadSession) error {
	if session.Status.Active() {
		session.AppendEvent(domain.StageCleanup, domain.OutcomeCancelled, map[string]string{
			"reason": "session abandoned past retention",
		})
		if err := s.core.transition(ctx, session, domain.StatusCancelled); err != nil && !errors.Is(err, port.ErrStatusConflict) {
			return err
		}
	}

	if err := s.core.chunks.DeleteSession(ctx, session.ID); err != nil {
		return err
	}
	s.removeAssembledFile(session)
	return s.core.sessions.Delete(ctx, session.ID)
}

// stuckStages maps each worker-backed status to the terminal status and
// event stage the sweeper uses when force-failing it.
var stuckStages = []struct {
	status domain.SessionStatus
	target domain.SessionStatus
	stage  string
}{
	{domain.StatusAssembling, domain.StatusFailed, domain.StageAssembly},
	{domain.StatusVirusScanning, domain.StatusVirusScanFailed, domain.StageVirusScan},
	{domain.StatusFinalizing, domain.StatusFinalizationFailed, domain.StageFinalization},
}

// sweepStuckAssemblies force-fails sessions sitting in a worker-backed
// stage (assembling, virus_scanning, finalizing) past the staleness window:
// their background job died without a verdict, and nothing else would ever
// release the filename slot. The compare-and-swap makes the force-fail
// race-safe against a slow worker that finishes after all.
func (s *sweeperService) sweepStuckAssemblies(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(s.core.cfg.Sweeper.AssemblyStalenessMinutes) * time.Minute)

	failed := 0
	for _, st := range stuckStages {
		stuck, err := s.core.sessions.ListStuck(ctx, st.status, cutoff, s.batchSize())
		if err != nil {
			return failed, err
		}
		for _, session := range stuck {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			session := session
			session.AppendEvent(st.stage, domain.OutcomeFailed, map[string]string{
				"error": string(session.Status) + " stalled past staleness window",
			})
			if err := s.core.transition(ctx, &session, st.target); err != nil {
				if errors.Is(err, port.ErrStatusConflict) {
					continue
				}
				logger.Warnw("Failed to force-fail stuck session", "session_id", session.ID, "status", string(st.status), "error", err.Error())
				continue
			}
			logger.Warnw("Force-failed stuck session", "session_id", session.ID, "status", string(st.status), "target", string(st.target))
			failed++
		}
	}
	return failed, nil
}

// removeAssembledFile deletes the assembled temp file, if any. Best effort.
func (s *sweeperService) removeAssembledFile(session *domain.UploadSession) {
	if session.AssembledPath == "" {
		return
	}
	if err := os.Remove(session.AssembledPath); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to remove assembled file", "session_id", session.ID, "path", session.AssembledPath, "error", err.Error())
	}
}

func (s *sweeperService) batchSize() int {
	if s.core.cfg.Sweeper.BatchSize > 0 {
		return s.core.cfg.Sweeper.BatchSize
	}
	return 100
}
