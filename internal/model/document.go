package model

import (
	"encoding/json"
	"time"
)

// Document is one uploaded file belonging to a RAG instance. PointIDs tracks
// the Qdrant point identifiers produced for it, stored as a JSON array in a
// text column for portability. Once Status is StatusCompleted,
// TotalChunks == len(PointIDVector()).
type Document struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	RAGInstanceID uint   `gorm:"not null;index" json:"rag_instance_id"`
	UserID        uint   `gorm:"not null;index" json:"user_id"`

	Filename string `gorm:"size:255;not null" json:"filename"`
	FilePath string `gorm:"type:text;not null" json:"-"`
	FileType string `gorm:"size:50;not null" json:"file_type"`
	FileSize int64  `gorm:"not null" json:"file_size"`

	Status       string `gorm:"size:20;default:pending;index" json:"status"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	PointIDs    string `gorm:"type:text" json:"-"` // JSON array of Qdrant point IDs
	TotalChunks int    `gorm:"default:0" json:"total_chunks"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// PointIDVector returns the parsed point ID slice; empty on parse error.
func (d *Document) PointIDVector() []string {
	if d.PointIDs == "" {
		return nil
	}
	var ids []string
	_ = json.Unmarshal([]byte(d.PointIDs), &ids)
	return ids
}

// SetPointIDs stores the point IDs as JSON.
func (d *Document) SetPointIDs(ids []string) {
	if len(ids) == 0 {
		d.PointIDs = "[]"
		return
	}
	b, _ := json.Marshal(ids)
	d.PointIDs = string(b)
}
