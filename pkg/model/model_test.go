package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

func TestFileTypeFromMIME(t *testing.T) {
	testCases := []struct {
		mime   string
		expect model.FileType
	}{
		{"application/pdf", model.FileTypePDF},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", model.FileTypeDocx},
		{"application/msword", model.FileTypeDoc},
		{"application/vnd.google-apps.document", model.FileTypeGoogleDoc},
		{"image/png", model.FileTypeUnknown},
		{"", model.FileTypeUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.mime, func(t *testing.T) {
			gt.Equal(t, model.FileTypeFromMIME(tc.mime), tc.expect)
		})
	}
}

func TestTitleFromFileName(t *testing.T) {
	gt.Equal(t, model.TitleFromFileName("report.pdf"), "report")
	gt.Equal(t, model.TitleFromFileName("archive.tar.gz"), "archive.tar")
	gt.Equal(t, model.TitleFromFileName("README"), "README")
	gt.Equal(t, model.TitleFromFileName(".env"), ".env")
}

func TestRecordLastModified(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	t.Run("metadata newer", func(t *testing.T) {
		r := &model.KnowledgeRecord{Metadata: model.RecordMetadata{ModifiedTime: t1}, UpdatedAt: t0}
		gt.Equal(t, r.LastModified(), t1)
	})

	t.Run("metadata wins over write time", func(t *testing.T) {
		r := &model.KnowledgeRecord{Metadata: model.RecordMetadata{ModifiedTime: t0}, UpdatedAt: t1}
		gt.Equal(t, r.LastModified(), t0)
	})

	t.Run("metadata missing", func(t *testing.T) {
		r := &model.KnowledgeRecord{UpdatedAt: t0}
		gt.Equal(t, r.LastModified(), t0)
	})
}

func TestRecordValidate(t *testing.T) {
	gt.NoError(t, (&model.KnowledgeRecord{FileName: "a.pdf"}).Validate())

	err := (&model.KnowledgeRecord{}).Validate()
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))

	err = (&model.KnowledgeRecord{FileName: "a.pdf", ChunkIndex: 1}).Validate()
	gt.Error(t, err)
}

func TestRecordClone(t *testing.T) {
	orig := &model.KnowledgeRecord{FileName: "a.pdf", Embedding: []float32{1, 2}}
	c := orig.Clone()
	c.Embedding[0] = 9
	gt.Equal(t, orig.Embedding[0], float32(1))
}

func TestQueryOptionsNormalize(t *testing.T) {
	opts := model.QueryOptions{}.Normalize()
	gt.Equal(t, opts.MaxResults, 5)
	gt.Equal(t, opts.Threshold(), 0.5)
	gt.True(t, opts.WithMetadata())
	gt.Equal(t, opts.Language, model.LanguageVI)
	gt.NoError(t, opts.Validate())

	zero := 0.0
	opts = model.QueryOptions{SimilarityThreshold: &zero}.Normalize()
	gt.Equal(t, opts.Threshold(), 0.0)
}

func TestQueryOptionsValidate(t *testing.T) {
	over := 1.5
	under := -0.1
	testCases := map[string]model.QueryOptions{
		"max results too large": {MaxResults: 101},
		"max results negative":  {MaxResults: -1},
		"threshold over one":    {SimilarityThreshold: &over},
		"threshold negative":    {SimilarityThreshold: &under},
		"unknown language":      {Language: "fr"},
	}

	for name, opts := range testCases {
		t.Run(name, func(t *testing.T) {
			err := opts.Normalize().Validate()
			gt.Error(t, err)
			gt.Equal(t, model.ErrorKind(err), "validation")
		})
	}
}

func TestNoInformationAnswer(t *testing.T) {
	gt.S(t, model.NoInformationAnswer(model.LanguageEN)).Contains("could not find relevant information")
	gt.S(t, model.NoInformationAnswer(model.LanguageVI)).Contains("Xin lỗi")
	gt.S(t, model.NoInformationAnswer("")).Contains("Xin lỗi")
}

func TestQueryResultStripEmbeddings(t *testing.T) {
	r := &model.QueryResult{
		QueryEmbedding: []float32{1},
		Sources:        []*model.Source{{Embedding: []float32{1}}, {Embedding: []float32{2}}},
	}
	r.StripEmbeddings()
	gt.Nil(t, r.QueryEmbedding)
	for _, s := range r.Sources {
		gt.Nil(t, s.Embedding)
	}
}

func TestSyncStatsSummary(t *testing.T) {
	stats := model.NewSyncStats()
	stats.Record(model.FileResult{FileName: "a", State: model.FileStateDone})
	stats.Record(model.FileResult{FileName: "b", State: model.FileStateSkipped})
	stats.Record(model.FileResult{FileName: "c", State: model.FileStateSkipped})
	stats.Record(model.FileResult{FileName: "d", State: model.FileStateSkipped})
	stats.Record(model.FileResult{FileName: "e", State: model.FileStateFailed})

	summary := stats.Finish()
	gt.Equal(t, summary.Processed, 1)
	gt.Equal(t, summary.Skipped, 3)
	gt.Equal(t, summary.Errors, 1)
	gt.Equal(t, summary.Total, 5)
	gt.Equal(t, summary.SkipRatio, 0.75)
	gt.A(t, stats.Results()).Length(5)
}

func TestSyncStatsEmptySkipRatio(t *testing.T) {
	summary := model.NewSyncStats().Finish()
	gt.Equal(t, summary.SkipRatio, 0.0)
	gt.Equal(t, summary.Total, 0)
}

func TestFileState(t *testing.T) {
	gt.Equal(t, model.FileStatePersisting.String(), "PERSISTING")
	gt.Equal(t, model.FileState(99).String(), "UNKNOWN")
	gt.True(t, model.FileStateDone.Terminal())
	gt.True(t, model.FileStateSkipped.Terminal())
	gt.False(t, model.FileStateEmbedding.Terminal())
}

func TestErrorKind(t *testing.T) {
	gt.Equal(t, model.ErrorKind(nil), "")
	gt.Equal(t, model.ErrorKind(goerr.New("x")), "internal")
	gt.Equal(t, model.ErrorKind(goerr.New("x", goerr.T(model.ErrTagStore))), "store")
	gt.Equal(t, model.ErrorKind(goerr.Wrap(model.ErrRecordNotFound, "lookup")), "not_found")
}
