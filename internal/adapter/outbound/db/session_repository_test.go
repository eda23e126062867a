package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

func newMockConn(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn, err := gorm.Open("mysql", sqlDB)
	require.NoError(t, err)
	conn.LogMode(false)

	t.Cleanup(func() { _ = conn.Close() })
	return conn, mock
}

func activeSession() *domain.UploadSession {
	slot := "ws1/proj1/track.wav"
	return &domain.UploadSession{
		ID:          "sess1",
		WorkspaceID: "ws1",
		ContainerID: "proj1",
		UserID:      "user1",
		Filename:    "track.wav",
		TotalSize:   2044,
		ChunksCount: 2,
		Status:      domain.StatusPending,
		ActiveSlot:  &slot,
	}
}

func TestSessionRepository_Create_DuplicateSlot(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewSessionRepository(conn)

	mock.ExpectExec("INSERT INTO `upload_sessions`").
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry 'ws1/proj1/track.wav' for key 'active_slot'"})

	err := repo.Create(context.Background(), activeSession())
	assert.ErrorIs(t, err, port.ErrDuplicateActiveSession)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Create_Success(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewSessionRepository(conn)

	mock.ExpectExec("INSERT INTO `upload_sessions`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.Create(context.Background(), activeSession()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Get_NotFound(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewSessionRepository(conn)

	mock.ExpectQuery("SELECT (.+) FROM `upload_sessions`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, port.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Transition_LostCompareAndSwap(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewSessionRepository(conn)

	// Zero rows matched: another actor already moved the session.
	mock.ExpectExec("UPDATE `upload_sessions` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	session := activeSession()
	err := repo.Transition(context.Background(), session, domain.StatusPending, domain.StatusUploading)
	assert.ErrorIs(t, err, port.ErrStatusConflict)
	// The in-memory session keeps its observed status on a lost swap.
	assert.Equal(t, domain.StatusPending, session.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Transition_TerminalReleasesSlot(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewSessionRepository(conn)

	mock.ExpectExec("UPDATE `upload_sessions` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := activeSession()
	err := repo.Transition(context.Background(), session, domain.StatusPending, domain.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, session.Status)
	assert.Nil(t, session.ActiveSlot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Transition_ActiveKeepsSlot(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewSessionRepository(conn)

	mock.ExpectExec("UPDATE `upload_sessions` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := activeSession()
	err := repo.Transition(context.Background(), session, domain.StatusPending, domain.StatusUploading)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUploading, session.Status)
	assert.NotNil(t, session.ActiveSlot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_SaveChunk_InsertsWhenNew(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewSessionRepository(conn)

	mock.ExpectQuery("SELECT (.+) FROM `upload_chunks`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO `upload_chunks`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	chunk := &domain.Chunk{SessionID: "sess1", Number: 1, Size: 5, Status: domain.ChunkCompleted, StorageKey: "sessions/sess1/aa/chunk_000001"}
	assert.NoError(t, repo.SaveChunk(context.Background(), chunk))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Delete_RemovesChunksAndSession(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewSessionRepository(conn)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `upload_chunks`").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `upload_sessions`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.Delete(context.Background(), "sess1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssetRepository_Create_DuplicateSession(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewAssetRepository(conn)

	mock.ExpectExec("INSERT INTO `assets`").
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry 'sess1' for key 'session_id'"})

	err := repo.Create(context.Background(), &domain.Asset{ID: "a1", SessionID: "sess1"})
	assert.ErrorIs(t, err, port.ErrAssetExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssetRepository_GetBySession_NotFound(t *testing.T) {
	conn, mock := newMockConn(t)
	repo := NewAssetRepository(conn)

	mock.ExpectQuery("SELECT (.+) FROM `assets`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetBySession(context.Background(), "sess1")
	assert.ErrorIs(t, err, port.ErrAssetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
