package service

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
	"github.com/Jonathanamir1/WubHub-sub004/pkg/resilience"
)

// scanService drives the virus-scanning stage. The scanner is best effort:
// an unreachable daemon (or an open circuit after repeated failures) skips
// the scan instead of blocking the upload.
type scanService struct {
	core    *UploadServiceImpl
	breaker *resilience.CircuitBreaker
}

func newScanService(core *UploadServiceImpl) *scanService {
	return &scanService{
		core: core,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "virus-scanner",
			FailureThreshold: core.cfg.Scanner.FailureThreshold,
			OpenTimeout:      time.Duration(core.cfg.Scanner.OpenTimeoutMS) * time.Millisecond,
		}),
	}
}

// run is the background scan stage. Verdict handling follows the failure
// taxonomy: unavailable degrades to a skipped scan, a missing file and an
// infected verdict are terminal, timeouts and unexpected errors are
// recorded and surfaced for job-level retry.
func (s *scanService) run(ctx context.Context, sessionID string) error {
	session, err := s.core.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.Status {
	case domain.StatusVirusScanning:
	case domain.StatusVirusScanFailed:
		// Re-entry from a job retry after a transient verdict.
		if !s.lastVerdictTransient(session) {
			return nil
		}
		if err := s.core.transition(ctx, session, domain.StatusVirusScanning); err != nil {
			if errors.Is(err, port.ErrStatusConflict) {
				return nil
			}
			return err
		}
	default:
		logger.Infow("Skipping scan, session no longer scanning", "session_id", sessionID, "status", string(session.Status))
		return nil
	}

	var result *port.ScanResult
	scanErr := s.breaker.Execute(ctx, func(execCtx context.Context) error {
		var callErr error
		result, callErr = s.core.scanner.Scan(execCtx, session.AssembledPath)
		return callErr
	})

	if scanErr != nil {
		return s.handleScanError(ctx, session, scanErr)
	}

	now := time.Now().UTC()
	session.ScanCompletedAt = &now

	if !result.Clean {
		session.AppendEvent(domain.StageVirusScan, domain.OutcomeInfected, map[string]string{
			"scanner":   result.Scanner,
			"signature": result.Signature,
			"error":     "infected file detected: " + result.Signature,
		})
		if err := s.core.transition(ctx, session, domain.StatusVirusScanFailed); err != nil && !errors.Is(err, port.ErrStatusConflict) {
			return err
		}
		// The assembled file must never be promoted; drop it now.
		s.core.sweepUseCase.removeAssembledFile(session)
		logger.Warnw("Infected upload rejected", "session_id", sessionID, "signature", result.Signature)
		return nil
	}

	session.AppendEvent(domain.StageVirusScan, domain.OutcomeSucceeded, map[string]string{"scanner": result.Scanner})
	return s.advanceToFinalization(ctx, session)
}

func (s *scanService) handleScanError(ctx context.Context, session *domain.UploadSession, scanErr error) error {
	now := time.Now().UTC()

	switch {
	case errors.Is(scanErr, port.ErrScannerUnavailable) || errors.Is(scanErr, resilience.ErrCircuitOpen):
		// Availability over strict scanning: complete with an annotation.
		session.ScanCompletedAt = &now
		session.AppendEvent(domain.StageVirusScan, domain.OutcomeSkipped, map[string]string{
			"reason": "scanner unavailable: " + scanErr.Error(),
		})
		logger.Warnw("Scanner unavailable, skipping scan", "session_id", session.ID, "error", scanErr.Error())
		return s.advanceToFinalization(ctx, session)

	case errors.Is(scanErr, fs.ErrNotExist):
		// The file is gone; rescanning cannot bring it back.
		session.ScanCompletedAt = &now
		s.core.failSession(ctx, session, domain.StageVirusScan, domain.StatusVirusScanFailed, "assembled file missing: "+scanErr.Error())
		return nil

	case errors.Is(scanErr, port.ErrScanTimeout):
		session.AppendEvent(domain.StageVirusScan, domain.OutcomeFailed, map[string]string{
			"error":     scanErr.Error(),
			"transient": "true",
		})
		if err := s.core.transition(ctx, session, domain.StatusVirusScanFailed); err != nil && !errors.Is(err, port.ErrStatusConflict) {
			return err
		}
		return scanErr

	default:
		session.AppendEvent(domain.StageVirusScan, domain.OutcomeFailed, map[string]string{
			"error":     scanErr.Error(),
			"transient": "true",
		})
		if err := s.core.transition(ctx, session, domain.StatusVirusScanFailed); err != nil && !errors.Is(err, port.ErrStatusConflict) {
			return err
		}
		return scanErr
	}
}

func (s *scanService) advanceToFinalization(ctx context.Context, session *domain.UploadSession) error {
	if err := s.core.transition(ctx, session, domain.StatusFinalizing); err != nil {
		if errors.Is(err, port.ErrStatusConflict) {
			logger.Infow("Scan result discarded, session moved concurrently", "session_id", session.ID)
			return nil
		}
		return err
	}

	s.core.stages.Dispatch(domain.StageFinalization, session.ID, func(jobCtx context.Context) error {
		return s.core.finalizeUseCase.run(jobCtx, session.ID)
	})
	return nil
}

// lastVerdictTransient reports whether the latest scan event was recorded
// as retryable (timeout or unexpected scanner error).
func (s *scanService) lastVerdictTransient(session *domain.UploadSession) bool {
	for i := len(session.Events) - 1; i >= 0; i-- {
		ev := session.Events[i]
		if ev.Stage != domain.StageVirusScan {
			continue
		}
		return ev.Outcome == domain.OutcomeFailed && ev.Detail["transient"] == "true"
	}
	return false
}
