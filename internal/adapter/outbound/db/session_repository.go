package db

import (
	"context"
	"errors"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

const mysqlDuplicateEntry = 1062

// SessionRepository is the GORM implementation of port.SessionRepository.
type SessionRepository struct {
	conn *gorm.DB
}

var _ port.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(conn *gorm.DB) *SessionRepository {
	return &SessionRepository{conn: conn}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.UploadSession) error {
	if err := r.conn.Create(session).Error; err != nil {
		if isDuplicateEntry(err) {
			return port.ErrDuplicateActiveSession
		}
		return err
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.UploadSession, error) {
	var session domain.UploadSession
	if err := r.conn.Where("id = ?", id).First(&session).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, port.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Transition is the stage linearization point: one UPDATE guarded by the
// observed source status. A zero row count means another actor moved the
// session first.
func (r *SessionRepository) Transition(ctx context.Context, session *domain.UploadSession, from, to domain.SessionStatus) error {
	updates := map[string]interface{}{
		"status":            to,
		"events":            session.Events,
		"assembled_path":    session.AssembledPath,
		"scan_queued_at":    session.ScanQueuedAt,
		"scan_completed_at": session.ScanCompletedAt,
		"updated_at":        time.Now(),
	}
	if !to.Active() {
		// Terminal states release the unique filename slot.
		updates["active_slot"] = nil
	}

	res := r.conn.Model(&domain.UploadSession{}).
		Where("id = ? AND status = ?", session.ID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return port.ErrStatusConflict
	}

	session.Status = to
	if !to.Active() {
		session.ActiveSlot = nil
	}
	return nil
}

func (r *SessionRepository) SaveChunk(ctx context.Context, chunk *domain.Chunk) error {
	var existing domain.Chunk
	err := r.conn.Where("session_id = ? AND number = ?", chunk.SessionID, chunk.Number).First(&existing).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return r.conn.Create(chunk).Error
		}
		return err
	}

	chunk.ID = existing.ID
	chunk.CreatedAt = existing.CreatedAt
	return r.conn.Save(chunk).Error
}

func (r *SessionRepository) ListChunks(ctx context.Context, sessionID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	if err := r.conn.Where("session_id = ?", sessionID).Order("number ASC").Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *SessionRepository) DeleteChunks(ctx context.Context, sessionID string) error {
	return r.conn.Where("session_id = ?", sessionID).Delete(&domain.Chunk{}).Error
}

func (r *SessionRepository) ListExpired(ctx context.Context, statuses []domain.SessionStatus, cutoff time.Time, limit int) ([]domain.UploadSession, error) {
	var sessions []domain.UploadSession
	if err := r.conn.
		Where("status IN (?) AND updated_at < ?", statuses, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) ListStuck(ctx context.Context, status domain.SessionStatus, cutoff time.Time, limit int) ([]domain.UploadSession, error) {
	var sessions []domain.UploadSession
	if err := r.conn.
		Where("status = ? AND updated_at < ?", status, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	tx := r.conn.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	if err := tx.Where("session_id = ?", id).Delete(&domain.Chunk{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Where("id = ?", id).Delete(&domain.UploadSession{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysqldrv.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
