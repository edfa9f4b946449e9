// Package model provides data models for the SupNum knowledge base.
package model

import (
	"time"
)

// Document represents a document in the knowledge base.
type Document struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string    `json:"title" gorm:"type:varchar(255);not null"`
	Content   string    `json:"content,omitempty" gorm:"type:text;not null"`
	Source    string    `json:"source" gorm:"type:varchar(512)"` // File path or URL
	DocType   string    `json:"doc_type" gorm:"type:varchar(64);index"`
	ChunkNum  int       `json:"chunk_num" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "documents"
}

// Chunk represents a text chunk in the knowledge base.
// Its primary key doubles as the vector id in Milvus.
type Chunk struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	DocumentID int64     `json:"document_id" gorm:"index;not null"`
	ChunkText  string    `json:"chunk_text" gorm:"type:text;not null"`
	ChunkIndex int       `json:"chunk_index" gorm:"not null"` // Position within the document, from 0
	ChunkSize  int       `json:"chunk_size" gorm:"default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Chunk.
func (Chunk) TableName() string {
	return "chunks"
}

// QueryLog records a handled question for audit and analytics.
type QueryLog struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Question        string    `json:"question" gorm:"type:text;not null"`
	Answer          string    `json:"answer" gorm:"type:text"`
	ChunksRetrieved int       `json:"chunks_retrieved" gorm:"default:0"`
	AvgScore        float64   `json:"avg_score" gorm:"default:0"`
	ResponseTimeMs  int64     `json:"response_time_ms" gorm:"default:0"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for QueryLog.
func (QueryLog) TableName() string {
	return "query_logs"
}

// ScoredChunk pairs a chunk with its similarity score and final rank.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
	Rank  int     `json:"rank"`
}
