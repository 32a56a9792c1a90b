package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDim is the fixed vector dimension for a deployment. Every segment
// embedding and every query embedding must have exactly this many components.
const EmbeddingDim = 768

// Segment is one retrievable chunk of an ingested document. ChunkIndex is the
// 0-based position within the parent document. Owner id and filename are
// denormalized so retrieval filters stay single-table.
type Segment struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	DocumentID uint            `gorm:"not null;uniqueIndex:idx_segments_doc_chunk,priority:1" json:"document_id"`
	UserID     uint            `gorm:"not null;index" json:"user_id"`
	Filename   string          `gorm:"size:256;not null" json:"filename"`
	ChunkIndex int             `gorm:"not null;uniqueIndex:idx_segments_doc_chunk,priority:2" json:"chunk_index"`
	Content    string          `gorm:"type:text;not null" json:"content"`
	Embedding  pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}
