package model

import "time"

// Document is the metadata row for one ingested file. The extracted text
// itself lives only in the document's segments.
type Document struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Filename  string    `gorm:"size:256;not null" json:"filename"`
	ByteSize  int64     `gorm:"not null" json:"byte_size"`
	PageCount int       `gorm:"not null" json:"page_count"`
	CreatedAt time.Time `json:"upload_date"`
}
