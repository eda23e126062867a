package domain

import "time"

// Asset is the permanent, queryable artifact produced by finalizing a clean
// upload session. Immutable after creation except for metadata annotation.
type Asset struct {
	ID          string `gorm:"column:id;size:64;primary_key" json:"id"`
	WorkspaceID string `gorm:"column:workspace_id;size:64;not null;index" json:"workspace_id"`
	ContainerID string `gorm:"column:container_id;size:64" json:"container_id,omitempty"`
	UserID      string `gorm:"column:user_id;size:64;not null" json:"user_id"`

	Filename    string `gorm:"column:filename;size:255;not null" json:"filename"`
	Size        int64  `gorm:"column:size;not null" json:"size"`
	ContentType string `gorm:"column:content_type;size:128;not null" json:"content_type"`

	// StorageRef is the durable-storage reference returned by the blob
	// backend, stable enough to regenerate a download URL later.
	StorageRef string `gorm:"column:storage_ref;size:512;not null" json:"storage_ref"`

	// SessionID carries provenance and is unique: the database itself
	// enforces at most one asset per finalized session.
	SessionID      string `gorm:"column:session_id;size:64;not null;unique_index" json:"session_id"`
	ChunksCount    int    `gorm:"column:chunks_count" json:"chunks_count"`
	ScanVerdict    string `gorm:"column:scan_verdict;size:32" json:"scan_verdict"`
	UploadDuration int64  `gorm:"column:upload_duration_ms" json:"upload_duration_ms"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName maps the model to its table.
func (Asset) TableName() string {
	return "assets"
}
