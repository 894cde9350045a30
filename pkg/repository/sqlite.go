package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sqliteRecord is the row layout of the knowledge_base table. Embedding and metadata are JSON text.
type sqliteRecord struct {
	ID         string `gorm:"primaryKey"`
	Title      string `gorm:"not null;default:''"`
	Content    string `gorm:"not null;default:''"`
	FileName   string `gorm:"uniqueIndex;not null"`
	FileURL    string
	FileType   string
	FilePath   string
	Embedding  string
	Metadata   string
	ChunkIndex int       `gorm:"not null;default:0"`
	TeacherID  string    `gorm:"index"`
	UserID     string    `gorm:"index"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (sqliteRecord) TableName() string { return "knowledge_base" }

var sqliteUpdateColumns = []string{
	"title", "content", "file_url", "file_type", "file_path", "embedding",
	"metadata", "chunk_index", "teacher_id", "user_id", "updated_at",
}

// SQLite stores records in a local SQLite file through gorm (CGO-free driver).
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, goerr.New("sqlite path is required", goerr.T(model.ErrTagConfig))
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, storeError(err, "failed to open sqlite", goerr.V("path", path))
	}

	if err := db.AutoMigrate(&sqliteRecord{}); err != nil {
		return nil, storeError(err, "failed to migrate sqlite schema", goerr.V("path", path))
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) FindByKey(ctx context.Context, fileName string) (*model.KnowledgeRecord, error) {
	var row sqliteRecord
	err := s.db.WithContext(ctx).Where("file_name = ?", fileName).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "failed to find record", goerr.V("file_name", fileName))
	}
	return row.toModel()
}

func (s *SQLite) Upsert(ctx context.Context, record *model.KnowledgeRecord) (*model.KnowledgeRecord, error) {
	r, err := prepareUpsert(record, "")
	if err != nil {
		return nil, err
	}

	row, err := newSQLiteRecord(r)
	if err != nil {
		return nil, err
	}

	var stored sqliteRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The conflict target keeps the original id and rowid, so scan order stays insertion order.
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_name"}},
			DoUpdates: clause.AssignmentColumns(sqliteUpdateColumns),
		}).Create(row).Error; err != nil {
			return err
		}
		return tx.Where("file_name = ?", r.FileName).First(&stored).Error
	})
	if err != nil {
		return nil, storeError(err, "failed to upsert record", goerr.V("file_name", r.FileName))
	}

	return stored.toModel()
}

func (s *SQLite) ScanWithEmbeddings(ctx context.Context) ([]*model.KnowledgeRecord, error) {
	var rows []sqliteRecord
	err := s.db.WithContext(ctx).
		Where("embedding IS NOT NULL AND embedding NOT IN ('', 'null', '[]')").
		Order("rowid").
		Find(&rows).Error
	if err != nil {
		return nil, storeError(err, "failed to scan records")
	}

	out := make([]*model.KnowledgeRecord, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		if r.HasEmbedding() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&sqliteRecord{}).Count(&n).Error; err != nil {
		return 0, storeError(err, "failed to count records")
	}
	return int(n), nil
}

func (s *SQLite) Delete(ctx context.Context, fileName string) error {
	result := s.db.WithContext(ctx).Where("file_name = ?", fileName).Delete(&sqliteRecord{})
	if result.Error != nil {
		return storeError(result.Error, "failed to delete record", goerr.V("file_name", fileName))
	}
	if result.RowsAffected == 0 {
		return notFound(fileName)
	}
	return nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeError(err, "failed to get sqlite handle")
	}
	return sqlDB.Close()
}

func newSQLiteRecord(r *model.KnowledgeRecord) (*sqliteRecord, error) {
	var embedding string
	if len(r.Embedding) > 0 {
		raw, err := json.Marshal(r.Embedding)
		if err != nil {
			return nil, storeError(err, "failed to encode embedding")
		}
		embedding = string(raw)
	}

	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, storeError(err, "failed to encode metadata")
	}

	return &sqliteRecord{
		ID:         r.ID.String(),
		Title:      r.Title,
		Content:    r.Content,
		FileName:   r.FileName,
		FileURL:    r.FileURL,
		FileType:   string(r.FileType),
		FilePath:   r.FilePath,
		Embedding:  embedding,
		Metadata:   string(metadata),
		ChunkIndex: r.ChunkIndex,
		TeacherID:  r.TeacherID,
		UserID:     r.UserID,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func (row *sqliteRecord) toModel() (*model.KnowledgeRecord, error) {
	r := &model.KnowledgeRecord{
		ID:         model.RecordID(row.ID),
		Title:      row.Title,
		Content:    row.Content,
		FileName:   row.FileName,
		FileURL:    row.FileURL,
		FileType:   model.FileType(row.FileType),
		FilePath:   row.FilePath,
		ChunkIndex: row.ChunkIndex,
		TeacherID:  row.TeacherID,
		UserID:     row.UserID,
		UpdatedAt:  row.UpdatedAt.UTC(),
	}

	if row.Embedding != "" {
		if err := json.Unmarshal([]byte(row.Embedding), &r.Embedding); err != nil {
			return nil, storeError(err, "failed to decode embedding", goerr.V("file_name", row.FileName))
		}
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &r.Metadata); err != nil {
			return nil, storeError(err, "failed to decode metadata", goerr.V("file_name", row.FileName))
		}
	}
	return r, nil
}
