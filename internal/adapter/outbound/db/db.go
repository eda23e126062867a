// Package db provides GORM-backed repositories for sessions, chunks, and
// assets. Database constraints carry the two invariants the pipeline cannot
// enforce in memory: the active-filename slot (unique index on
// upload_sessions.active_slot) and at-most-one asset per session (unique
// index on assets.session_id).
package db

import (
	"fmt"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
)

// Open connects to MySQL and migrates the pipeline tables.
func Open(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.AutoMigrate(
		&domain.UploadSession{},
		&domain.Chunk{},
		&domain.Asset{},
	).Error; err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return conn, nil
}
