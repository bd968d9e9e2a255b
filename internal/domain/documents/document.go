package documents

import "time"

// Document registers one ingested file. DocumentID is derived from the file bytes.
type Document struct {
	UserID     string `gorm:"column:user_id;primaryKey" json:"user_id"`
	DocumentID string `gorm:"column:document_id;primaryKey" json:"document_id"`

	FileName    string `gorm:"column:file_name;not null" json:"file_name"`
	ContentType string `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes   int64  `gorm:"column:size_bytes;not null" json:"size_bytes"`
	Chunks      int    `gorm:"column:chunks;not null" json:"chunks"`

	IngestedAt time.Time `gorm:"column:ingested_at;not null;index" json:"ingested_at"`
}

func (Document) TableName() string { return "document" }
