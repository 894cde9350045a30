package repository

import (
	"context"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const pgColumns = `id, title, content, file_name, file_url, file_type, file_path, embedding,
	metadata, chunk_index, teacher_id, user_id, updated_at`

// Postgres stores records in PostgreSQL with the pgvector extension. Similarity is still
// computed in Go over the scanned corpus.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and applies pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, goerr.New("database url is required", goerr.T(model.ErrTagConfig))
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse database url", goerr.T(model.ErrTagConfig))
	}

	// The vector type only exists after the first migration, so migrate with a plain pool first.
	if err := migratePostgres(ctx, cfg); err != nil {
		return nil, err
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storeError(err, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeError(err, "failed to connect to postgres")
	}

	return &Postgres{pool: pool}, nil
}

func migratePostgres(ctx context.Context, cfg *pgxpool.Config) error {
	pool, err := pgxpool.NewWithConfig(ctx, cfg.Copy())
	if err != nil {
		return storeError(err, "failed to create migration pool")
	}
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		_ = db.Close()
		pool.Close()
	}()

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return storeError(err, "failed to open embedded migrations")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return storeError(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return storeError(err, "failed to create migration instance")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logging.From(ctx).Warn("failed to close migration source", "error", srcErr)
		}
		if dbErr != nil {
			logging.From(ctx).Warn("failed to close migration database", "error", dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logging.From(ctx).Debug("no migrations to apply")
			return nil
		}
		return storeError(err, "failed to run migrations")
	}

	version, _, _ := m.Version()
	logging.From(ctx).Info("applied migrations", "version", version)
	return nil
}

func (p *Postgres) FindByKey(ctx context.Context, fileName string) (*model.KnowledgeRecord, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM knowledge_base WHERE file_name = $1`, fileName)
	r, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "failed to find record", goerr.V("file_name", fileName))
	}
	return r, nil
}

func (p *Postgres) Upsert(ctx context.Context, record *model.KnowledgeRecord) (*model.KnowledgeRecord, error) {
	r, err := prepareUpsert(record, "")
	if err != nil {
		return nil, err
	}

	var embedding any
	if len(r.Embedding) > 0 {
		embedding = pgvector.NewVector(r.Embedding)
	}

	row := p.pool.QueryRow(ctx, `
INSERT INTO knowledge_base (`+pgColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (file_name) DO UPDATE SET
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	file_url = EXCLUDED.file_url,
	file_type = EXCLUDED.file_type,
	file_path = EXCLUDED.file_path,
	embedding = EXCLUDED.embedding,
	metadata = EXCLUDED.metadata,
	chunk_index = EXCLUDED.chunk_index,
	teacher_id = EXCLUDED.teacher_id,
	user_id = EXCLUDED.user_id,
	updated_at = EXCLUDED.updated_at
RETURNING `+pgColumns,
		r.ID.String(), r.Title, r.Content, r.FileName, r.FileURL, string(r.FileType), r.FilePath,
		embedding, r.Metadata, r.ChunkIndex, r.TeacherID, r.UserID, r.UpdatedAt,
	)

	stored, err := scanPostgresRecord(row)
	if err != nil {
		return nil, storeError(err, "failed to upsert record", goerr.V("file_name", r.FileName))
	}
	return stored, nil
}

func (p *Postgres) ScanWithEmbeddings(ctx context.Context) ([]*model.KnowledgeRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgColumns+` FROM knowledge_base
WHERE embedding IS NOT NULL ORDER BY inserted_seq`)
	if err != nil {
		return nil, storeError(err, "failed to scan records")
	}
	defer rows.Close()

	var out []*model.KnowledgeRecord
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, storeError(err, "failed to read record")
		}
		if r.HasEmbedding() {
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "failed to iterate records")
	}
	return out, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&n); err != nil {
		return 0, storeError(err, "failed to count records")
	}
	return n, nil
}

func (p *Postgres) Delete(ctx context.Context, fileName string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM knowledge_base WHERE file_name = $1`, fileName)
	if err != nil {
		return storeError(err, "failed to delete record", goerr.V("file_name", fileName))
	}
	if tag.RowsAffected() == 0 {
		return notFound(fileName)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPostgresRecord(row pgx.Row) (*model.KnowledgeRecord, error) {
	var (
		r         model.KnowledgeRecord
		id        string
		fileType  string
		embedding *pgvector.Vector
	)

	if err := row.Scan(
		&id, &r.Title, &r.Content, &r.FileName, &r.FileURL, &fileType, &r.FilePath,
		&embedding, &r.Metadata, &r.ChunkIndex, &r.TeacherID, &r.UserID, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.ID = model.RecordID(id)
	r.FileType = model.FileType(fileType)
	r.UpdatedAt = r.UpdatedAt.UTC()
	if embedding != nil {
		r.Embedding = embedding.Slice()
	}
	return &r, nil
}
