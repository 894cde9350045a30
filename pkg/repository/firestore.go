package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "knowledge_base"

// firestoreRecord is the document layout. The document ID is derived from the file name, so the
// natural key maps to exactly one document.
type firestoreRecord struct {
	ID         string               `firestore:"id"`
	Title      string               `firestore:"title"`
	Content    string               `firestore:"content"`
	FileName   string               `firestore:"file_name"`
	FileURL    string               `firestore:"file_url"`
	FileType   string               `firestore:"file_type"`
	FilePath   string               `firestore:"file_path"`
	Embedding  firestore.Vector32   `firestore:"embedding"`
	Metadata   model.RecordMetadata `firestore:"metadata"`
	ChunkIndex int                  `firestore:"chunk_index"`
	TeacherID  string               `firestore:"teacher_id"`
	UserID     string               `firestore:"user_id"`
	CreatedAt  time.Time            `firestore:"created_at"`
	UpdatedAt  time.Time            `firestore:"updated_at"`
}

// Firestore stores records in a Cloud Firestore collection.
type Firestore struct {
	client     *firestore.Client
	collection string
}

type FirestoreOption func(*Firestore)

func WithCollection(name string) FirestoreOption {
	return func(f *Firestore) {
		f.collection = name
	}
}

func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("firestore project is required", goerr.T(model.ErrTagConfig))
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, storeError(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	f := &Firestore{
		client:     client,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func docID(fileName string) string {
	sum := sha256.Sum256([]byte(fileName))
	return hex.EncodeToString(sum[:])
}

func (f *Firestore) doc(fileName string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(docID(fileName))
}

func (f *Firestore) FindByKey(ctx context.Context, fileName string) (*model.KnowledgeRecord, error) {
	snap, err := f.doc(fileName).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "failed to get document", goerr.V("file_name", fileName))
	}

	var doc firestoreRecord
	if err := snap.DataTo(&doc); err != nil {
		return nil, storeError(err, "failed to decode document", goerr.V("file_name", fileName))
	}
	return doc.toModel(), nil
}

func (f *Firestore) Upsert(ctx context.Context, record *model.KnowledgeRecord) (*model.KnowledgeRecord, error) {
	if record == nil {
		return nil, goerr.New("record is nil", goerr.T(model.ErrTagValidation))
	}
	ref := f.doc(record.FileName)

	var stored *model.KnowledgeRecord
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var (
			existingID model.RecordID
			createdAt  time.Time
		)

		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var existing firestoreRecord
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			existingID = model.RecordID(existing.ID)
			createdAt = existing.CreatedAt
		}

		r, err := prepareUpsert(record, existingID)
		if err != nil {
			return err
		}
		if createdAt.IsZero() {
			createdAt = r.UpdatedAt
		}

		if err := tx.Set(ref, newFirestoreRecord(r, createdAt)); err != nil {
			return err
		}
		stored = r
		return nil
	})
	if err != nil {
		if goerr.HasTag(err, model.ErrTagValidation) {
			return nil, err
		}
		return nil, storeError(err, "failed to upsert document", goerr.V("file_name", record.FileName))
	}
	return stored, nil
}

func (f *Firestore) ScanWithEmbeddings(ctx context.Context) ([]*model.KnowledgeRecord, error) {
	iter := f.client.Collection(f.collection).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*model.KnowledgeRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, storeError(err, "failed to iterate documents")
		}

		var doc firestoreRecord
		if err := snap.DataTo(&doc); err != nil {
			return nil, storeError(err, "failed to decode document", goerr.V("id", snap.Ref.ID))
		}
		if r := doc.toModel(); r.HasEmbedding() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *Firestore) Count(ctx context.Context) (int, error) {
	result, err := f.client.Collection(f.collection).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, storeError(err, "failed to count documents")
	}

	v, ok := result["all"].(*firestorepb.Value)
	if !ok {
		return 0, storeError(goerr.New("unexpected count result"), "failed to count documents")
	}
	return int(v.GetIntegerValue()), nil
}

func (f *Firestore) Delete(ctx context.Context, fileName string) error {
	ref := f.doc(fileName)
	// Exists precondition turns a missing document into NotFound.
	_, err := ref.Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return notFound(fileName)
	}
	if err != nil {
		return storeError(err, "failed to delete document", goerr.V("file_name", fileName))
	}
	return nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func newFirestoreRecord(r *model.KnowledgeRecord, createdAt time.Time) *firestoreRecord {
	return &firestoreRecord{
		ID:         r.ID.String(),
		Title:      r.Title,
		Content:    r.Content,
		FileName:   r.FileName,
		FileURL:    r.FileURL,
		FileType:   string(r.FileType),
		FilePath:   r.FilePath,
		Embedding:  firestore.Vector32(r.Embedding),
		Metadata:   r.Metadata,
		ChunkIndex: r.ChunkIndex,
		TeacherID:  r.TeacherID,
		UserID:     r.UserID,
		CreatedAt:  createdAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (d *firestoreRecord) toModel() *model.KnowledgeRecord {
	return &model.KnowledgeRecord{
		ID:         model.RecordID(d.ID),
		Title:      d.Title,
		Content:    d.Content,
		FileName:   d.FileName,
		FileURL:    d.FileURL,
		FileType:   model.FileType(d.FileType),
		FilePath:   d.FilePath,
		Embedding:  []float32(d.Embedding),
		Metadata:   d.Metadata,
		ChunkIndex: d.ChunkIndex,
		TeacherID:  d.TeacherID,
		UserID:     d.UserID,
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}
