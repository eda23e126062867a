package domain

import (
	"sort"
	"time"
)

// ChunkStatus tracks one chunk through upload and verification.
type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkCompleted ChunkStatus = "completed"
	ChunkFailed    ChunkStatus = "failed"
)

// Chunk is one numbered byte-range of a session's payload. Chunk numbers are
// 1-based and unique within a session.
type Chunk struct {
	ID        uint64 `gorm:"column:id;primary_key;auto_increment" json:"id"`
	SessionID string `gorm:"column:session_id;size:64;not null;unique_index:idx_session_chunk" json:"session_id"`
	Number    int    `gorm:"column:number;not null;unique_index:idx_session_chunk" json:"number"`

	Size       int64       `gorm:"column:size;not null" json:"size"`
	Checksum   uint32      `gorm:"column:checksum" json:"checksum"`
	Status     ChunkStatus `gorm:"column:status;size:16;not null" json:"status"`
	StorageKey string      `gorm:"column:storage_key;size:512" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName maps the model to its table.
func (Chunk) TableName() string {
	return "upload_chunks"
}

// SortChunks orders chunks by ascending sequence number in place.
func SortChunks(chunks []Chunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Number < chunks[j].Number })
}

// AssemblyReady reports the chunk-completeness invariant: exactly chunksCount
// completed chunks numbered contiguously 1..chunksCount with no gaps or
// duplicates.
func AssemblyReady(chunks []Chunk, chunksCount int) bool {
	return len(MissingChunks(chunks, chunksCount)) == 0 && completedCount(chunks) == chunksCount
}

// MissingChunks returns the ascending chunk numbers in 1..chunksCount that
// have no completed chunk yet. Duplicate or out-of-range numbers never
// satisfy a slot.
func MissingChunks(chunks []Chunk, chunksCount int) []int {
	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if c.Status != ChunkCompleted {
			continue
		}
		if c.Number < 1 || c.Number > chunksCount {
			continue
		}
		seen[c.Number] = true
	}

	var missing []int
	for n := 1; n <= chunksCount; n++ {
		if !seen[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

func completedCount(chunks []Chunk) int {
	count := 0
	for _, c := range chunks {
		if c.Status == ChunkCompleted {
			count++
		}
	}
	return count
}
