package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SessionStatus is the closed set of states an upload session moves through.
type SessionStatus string

const (
	StatusPending            SessionStatus = "pending"
	StatusUploading          SessionStatus = "uploading"
	StatusAssembling         SessionStatus = "assembling"
	StatusVirusScanning      SessionStatus = "virus_scanning"
	StatusFinalizing         SessionStatus = "finalizing"
	StatusCompleted          SessionStatus = "completed"
	StatusFailed             SessionStatus = "failed"
	StatusVirusScanFailed    SessionStatus = "virus_scan_failed"
	StatusFinalizationFailed SessionStatus = "finalization_failed"
	StatusCancelled          SessionStatus = "cancelled"
)

// legalTransitions is the single source of truth for state movement.
// The scan stage may re-enter virus_scanning from virus_scan_failed when a
// transient verdict (timeout) is retried by the job layer.
var legalTransitions = map[SessionStatus][]SessionStatus{
	StatusPending:         {StatusUploading, StatusAssembling, StatusFailed, StatusCancelled},
	StatusUploading:       {StatusAssembling, StatusFailed, StatusCancelled},
	StatusAssembling:      {StatusVirusScanning, StatusFailed, StatusCancelled},
	StatusVirusScanning:   {StatusFinalizing, StatusVirusScanFailed, StatusFailed, StatusCancelled},
	StatusVirusScanFailed: {StatusVirusScanning},
	StatusFinalizing:      {StatusCompleted, StatusFinalizationFailed},
}

// CanTransition reports whether from -> to is a legal state movement.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether the status still claims the filename slot.
func (s SessionStatus) Active() bool {
	switch s {
	case StatusPending, StatusUploading, StatusAssembling, StatusVirusScanning, StatusFinalizing:
		return true
	}
	return false
}

// Terminal reports whether no further pipeline stage may act on the session.
// virus_scan_failed is terminal for every caller except the scan stage's own
// transient retry path.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusVirusScanFailed, StatusFinalizationFailed, StatusCancelled:
		return true
	}
	return false
}

// Stage names used in the session event log.
const (
	StageUpload       = "upload"
	StageAssembly     = "assembly"
	StageVirusScan    = "virus_scan"
	StageFinalization = "finalization"
	StageCleanup      = "cleanup"
)

// Event outcomes used in the session event log.
const (
	OutcomeQueued    = "queued"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeInfected  = "infected"
	OutcomeCancelled = "cancelled"
)

// StageEvent is one append-only record of a stage outcome. Stages never
// rewrite each other's entries; readers fold the ordered log into views.
type StageEvent struct {
	Stage   string            `json:"stage"`
	Outcome string            `json:"outcome"`
	Detail  map[string]string `json:"detail,omitempty"`
	At      time.Time         `json:"at"`
}

// StageEvents is the ordered event log, stored as a JSON text column.
type StageEvents []StageEvent

// Value implements driver.Valuer for GORM persistence.
func (e StageEvents) Value() (driver.Value, error) {
	if len(e) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner for GORM persistence.
func (e *StageEvents) Scan(src interface{}) error {
	if src == nil {
		*e = nil
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported event log source type %T", src)
	}
	if len(raw) == 0 {
		*e = nil
		return nil
	}
	return json.Unmarshal(raw, e)
}

// UploadSession is the authoritative record of one logical file transfer.
type UploadSession struct {
	ID          string `gorm:"column:id;size:64;primary_key" json:"id"`
	WorkspaceID string `gorm:"column:workspace_id;size:64;not null;index" json:"workspace_id"`
	ContainerID string `gorm:"column:container_id;size:64" json:"container_id,omitempty"`
	UserID      string `gorm:"column:user_id;size:64;not null" json:"user_id"`

	Filename    string `gorm:"column:filename;size:255;not null" json:"filename"`
	TotalSize   int64  `gorm:"column:total_size;not null" json:"total_size"`
	ChunksCount int    `gorm:"column:chunks_count;not null" json:"chunks_count"`

	Status SessionStatus `gorm:"column:status;size:32;not null;index" json:"status"`

	// ActiveSlot is "workspace/container/filename" while the session is
	// active and NULL once terminal. The unique index on it is the creation
	// race gate; MySQL permits any number of NULLs.
	ActiveSlot *string `gorm:"column:active_slot;size:512;unique_index" json:"-"`

	AssembledPath string `gorm:"column:assembled_path;size:512" json:"-"`

	Events StageEvents `gorm:"column:events;type:text" json:"events,omitempty"`

	ScanQueuedAt    *time.Time `gorm:"column:scan_queued_at" json:"scan_queued_at,omitempty"`
	ScanCompletedAt *time.Time `gorm:"column:scan_completed_at" json:"scan_completed_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName maps the model to its table.
func (UploadSession) TableName() string {
	return "upload_sessions"
}

// SlotKey derives the unique active-filename slot for a location.
func SlotKey(workspaceID, containerID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", workspaceID, containerID, filename)
}

// AppendEvent adds one stage outcome to the in-memory log.
func (s *UploadSession) AppendEvent(stage, outcome string, detail map[string]string) {
	s.Events = append(s.Events, StageEvent{
		Stage:   stage,
		Outcome: outcome,
		Detail:  detail,
		At:      time.Now().UTC(),
	})
}

// LastError folds the event log into the most recent failure reason.
func (s *UploadSession) LastError() string {
	for i := len(s.Events) - 1; i >= 0; i-- {
		ev := s.Events[i]
		if ev.Outcome != OutcomeFailed && ev.Outcome != OutcomeInfected {
			continue
		}
		if reason, ok := ev.Detail["error"]; ok {
			return reason
		}
		return fmt.Sprintf("%s %s", ev.Stage, ev.Outcome)
	}
	return ""
}

// FinalizedAssetID returns the asset already recorded by a finalization
// event, or "" when the session was never finalized. This is the at-most-once
// precondition for the finalizer.
func (s *UploadSession) FinalizedAssetID() string {
	for i := len(s.Events) - 1; i >= 0; i-- {
		ev := s.Events[i]
		if ev.Stage == StageFinalization && ev.Outcome == OutcomeSucceeded {
			return ev.Detail["asset_id"]
		}
	}
	return ""
}

// ScanOutcome folds the event log into the latest scan verdict, or "".
func (s *UploadSession) ScanOutcome() string {
	for i := len(s.Events) - 1; i >= 0; i-- {
		if s.Events[i].Stage == StageVirusScan {
			return s.Events[i].Outcome
		}
	}
	return ""
}

// MetadataView folds the event log into the persisted-metadata shape other
// systems read: virus_scan{status, scanner, queued_at|completed_at, error?}
// and finalization{asset_id, asset_filename, finalized_at, file_size}.
func (s *UploadSession) MetadataView() map[string]map[string]string {
	view := make(map[string]map[string]string)

	if scan := s.foldStage(StageVirusScan); scan != nil {
		entry := map[string]string{"status": scan.Outcome}
		if scanner, ok := scan.Detail["scanner"]; ok {
			entry["scanner"] = scanner
		}
		if reason, ok := scan.Detail["error"]; ok {
			entry["error"] = reason
		}
		if s.ScanCompletedAt != nil {
			entry["completed_at"] = s.ScanCompletedAt.UTC().Format(time.RFC3339)
		} else if s.ScanQueuedAt != nil {
			entry["queued_at"] = s.ScanQueuedAt.UTC().Format(time.RFC3339)
		}
		view["virus_scan"] = entry
	}

	if fin := s.foldStage(StageFinalization); fin != nil && fin.Outcome == OutcomeSucceeded {
		view["finalization"] = map[string]string{
			"asset_id":       fin.Detail["asset_id"],
			"asset_filename": fin.Detail["asset_filename"],
			"file_size":      fin.Detail["file_size"],
			"finalized_at":   fin.At.Format(time.RFC3339),
		}
	}

	return view
}

func (s *UploadSession) foldStage(stage string) *StageEvent {
	for i := len(s.Events) - 1; i >= 0; i-- {
		if s.Events[i].Stage == stage {
			return &s.Events[i]
		}
	}
	return nil
}
