package repository

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

// Kind selects a store backend.
type Kind string

const (
	KindMemory    Kind = "memory"
	KindSQLite    Kind = "sqlite"
	KindPostgres  Kind = "postgres"
	KindFirestore Kind = "firestore"
)

var (
	_ interfaces.Store = (*Memory)(nil)
	_ interfaces.Store = (*SQLite)(nil)
	_ interfaces.Store = (*Postgres)(nil)
	_ interfaces.Store = (*Firestore)(nil)
)

// nowFunc is replaced in tests that need deterministic timestamps.
var nowFunc = func() time.Time { return time.Now().UTC() }

// prepareUpsert validates record and returns a copy ready to be written. The ID of an existing
// record is kept; a new one is assigned otherwise.
func prepareUpsert(record *model.KnowledgeRecord, existingID model.RecordID) (*model.KnowledgeRecord, error) {
	if record == nil {
		return nil, goerr.New("record is nil", goerr.T(model.ErrTagValidation))
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	r := record.Clone()
	switch {
	case existingID != "":
		r.ID = existingID
	case r.ID == "":
		r.ID = model.NewRecordID()
	}
	if r.Title == "" {
		r.Title = model.TitleFromFileName(r.FileName)
	}
	r.UpdatedAt = nowFunc()
	return r, nil
}

func storeError(err error, msg string, opts ...goerr.Option) error {
	opts = append(opts, goerr.T(model.ErrTagStore))
	return goerr.Wrap(err, msg, opts...)
}

func notFound(fileName string) error {
	return goerr.Wrap(model.ErrRecordNotFound, "no record for file name", goerr.V("file_name", fileName))
}
