package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

type DocumentSource string

const (
	SourceManual DocumentSource = "manual"
	SourceFile   DocumentSource = "file"
	SourceURL    DocumentSource = "url"
)

// EmbeddingDims is the width of the knowledge embedding column.
const EmbeddingDims = 256

type KnowledgeDocument struct {
	ID       string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID   string         `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Title    string         `gorm:"column:title;type:text;not null" json:"title"`
	Content  string         `gorm:"column:content;type:text" json:"content"`
	Category string         `gorm:"column:category;type:text;index" json:"category"`
	Tags     pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`

	SizeBytes   int64          `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	Source      DocumentSource `gorm:"column:source;type:text" json:"source"`
	SourceURL   *string        `gorm:"column:source_url;type:text" json:"source_url,omitempty"`
	StoragePath *string        `gorm:"column:storage_path;type:text" json:"storage_path,omitempty"`
	MimeType    string         `gorm:"column:mime_type;type:text" json:"mime_type,omitempty"`

	Summary         string                      `gorm:"column:summary;type:text" json:"summary,omitempty"`
	KeyPoints       datatypes.JSONSlice[string] `gorm:"column:key_points;type:jsonb" json:"key_points"`
	Status          DocumentStatus              `gorm:"column:status;type:text" json:"status"`
	ProcessingError string                      `gorm:"column:processing_error;type:text" json:"processing_error,omitempty"`

	Embedding *pgvector.Vector `gorm:"column:embedding;type:vector(256)" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (KnowledgeDocument) TableName() string { return "knowledge_documents" }
