package model

import "time"

// Lifecycle statuses shared by RAGInstance and Document.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// RAGInstance is one named, isolated retrieval collection. It owns its
// documents (cascade on delete) and exactly one Qdrant collection, addressed
// by the globally unique Collection name.
type RAGInstance struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	Collection string `gorm:"size:64;not null;uniqueIndex" json:"collection"`

	EmbeddingModel string `gorm:"size:64;not null" json:"embedding_model"`
	LLMModel       string `gorm:"size:64;not null" json:"llm_model"`
	ChunkSize      int    `gorm:"not null" json:"chunk_size"`
	ChunkOverlap   int    `gorm:"not null" json:"chunk_overlap"`
	TopK           int    `gorm:"not null" json:"top_k"`

	DocumentCount int    `gorm:"default:0" json:"document_count"`
	IsActive      bool   `gorm:"default:true" json:"is_active"`
	Status        string `gorm:"size:20;default:pending" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
