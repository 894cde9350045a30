package model

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type RecordID string

// NewRecordID generates a new unique RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

func (id RecordID) String() string { return string(id) }

// EmbeddingDimension is the output size of the default embedding model.
const EmbeddingDimension = 768

type FileType string

const (
	FileTypePDF         FileType = "pdf"
	FileTypeDocx        FileType = "docx"
	FileTypeDoc         FileType = "doc"
	FileTypeGoogleDoc   FileType = "google-doc"
	FileTypeXlsx        FileType = "xlsx"
	FileTypeGoogleSheet FileType = "google-sheet"
	FileTypeHTML        FileType = "html"
	FileTypeText        FileType = "text"
	FileTypeMarkdown    FileType = "markdown"
	FileTypeUnknown     FileType = "unknown"
)

const (
	MIMETypePDF         = "application/pdf"
	MIMETypeDocx        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMETypeDoc         = "application/msword"
	MIMETypeGoogleDoc   = "application/vnd.google-apps.document"
	MIMETypeXlsx        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMETypeGoogleSheet = "application/vnd.google-apps.spreadsheet"
	MIMETypeHTML        = "text/html"
	MIMETypeText        = "text/plain"
	MIMETypeMarkdown    = "text/markdown"
	MIMETypeCSV         = "text/csv"
	MIMETypeFolder      = "application/vnd.google-apps.folder"
)

var fileTypeByMIME = map[string]FileType{
	MIMETypePDF:         FileTypePDF,
	MIMETypeDocx:        FileTypeDocx,
	MIMETypeDoc:         FileTypeDoc,
	MIMETypeGoogleDoc:   FileTypeGoogleDoc,
	MIMETypeXlsx:        FileTypeXlsx,
	MIMETypeGoogleSheet: FileTypeGoogleSheet,
	MIMETypeHTML:        FileTypeHTML,
	MIMETypeText:        FileTypeText,
	MIMETypeMarkdown:    FileTypeMarkdown,
	MIMETypeCSV:         FileTypeText,
}

// FileTypeFromMIME maps a source MIME type to the stored file type label.
func FileTypeFromMIME(mimeType string) FileType {
	if ft, ok := fileTypeByMIME[mimeType]; ok {
		return ft
	}
	return FileTypeUnknown
}

// SyncableMIMETypes returns MIME types that sources should list.
func SyncableMIMETypes() []string {
	return []string{
		MIMETypePDF,
		MIMETypeDocx,
		MIMETypeDoc,
		MIMETypeGoogleDoc,
		MIMETypeXlsx,
		MIMETypeGoogleSheet,
		MIMETypeHTML,
		MIMETypeText,
		MIMETypeMarkdown,
	}
}

// RecordMetadata carries source provenance. ModifiedTime is the change-detection oracle.
type RecordMetadata struct {
	ModifiedTime time.Time `json:"modifiedTime" firestore:"modified_time"`
	Size         int64     `json:"size" firestore:"size"`
	MIMEType     string    `json:"mimeType" firestore:"mime_type"`
	TextLength   int       `json:"textLength" firestore:"text_length"`
	SourceID     string    `json:"sourceId,omitempty" firestore:"source_id"`
	Source       string    `json:"source,omitempty" firestore:"source"`
}

// KnowledgeRecord is one synchronized source file with its whole-document embedding.
// FileName is the natural key: at most one record exists per file name.
type KnowledgeRecord struct {
	ID         RecordID       `json:"id" firestore:"id"`
	Title      string         `json:"title" firestore:"title"`
	Content    string         `json:"content" firestore:"content"`
	FileName   string         `json:"file_name" firestore:"file_name"`
	FileURL    string         `json:"file_url,omitempty" firestore:"file_url"`
	FileType   FileType       `json:"file_type" firestore:"file_type"`
	FilePath   string         `json:"file_path,omitempty" firestore:"file_path"`
	Embedding  []float32      `json:"embedding,omitempty" firestore:"-"`
	Metadata   RecordMetadata `json:"metadata" firestore:"metadata"`
	ChunkIndex int            `json:"chunk_index" firestore:"chunk_index"`
	TeacherID  string         `json:"teacher_id,omitempty" firestore:"teacher_id"`
	UserID     string         `json:"user_id,omitempty" firestore:"user_id"`
	UpdatedAt  time.Time      `json:"updated_at" firestore:"updated_at"`
}

// HasEmbedding reports whether the record can take part in similarity search.
func (r *KnowledgeRecord) HasEmbedding() bool {
	return r != nil && len(r.Embedding) > 0
}

// LastModified returns the source modification time recorded at sync, or the write time for
// records that carry none. UpdatedAt is not compared when a modification time exists, so this is
// not the later of the two: a source edit made while the record was being written is newer than
// the stored modification time but may be older than UpdatedAt, and must still trigger an update.
func (r *KnowledgeRecord) LastModified() time.Time {
	if !r.Metadata.ModifiedTime.IsZero() {
		return r.Metadata.ModifiedTime
	}
	return r.UpdatedAt
}

func (r *KnowledgeRecord) Validate() error {
	if r.FileName == "" {
		return goerr.New("file name is empty", goerr.T(ErrTagValidation))
	}
	if r.ChunkIndex != 0 {
		return goerr.New("chunk index must be 0", goerr.T(ErrTagValidation), goerr.V("chunk_index", r.ChunkIndex))
	}
	return nil
}

// Clone returns a deep copy so stores never share embedding slices with callers.
func (r *KnowledgeRecord) Clone() *KnowledgeRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Embedding != nil {
		c.Embedding = append([]float32(nil), r.Embedding...)
	}
	return &c
}

// TitleFromFileName strips the extension from a file name.
func TitleFromFileName(name string) string {
	ext := path.Ext(name)
	if ext == "" || ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}
