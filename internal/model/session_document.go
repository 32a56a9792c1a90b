package model

import "time"

// SessionDocument scopes which documents a chat session retrieves from.
type SessionDocument struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  uint      `gorm:"not null;uniqueIndex:idx_session_documents_pair,priority:1" json:"session_id"`
	DocumentID uint      `gorm:"not null;uniqueIndex:idx_session_documents_pair,priority:2" json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
}
