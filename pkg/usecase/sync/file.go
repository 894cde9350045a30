package sync

import (
	"context"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/extract"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
)

// NeedsUpdate reports whether file must be (re)processed given the stored record. A missing
// record always needs processing; otherwise the source modification time must be strictly
// later than the recorded one.
func NeedsUpdate(file *model.SourceFile, record *model.KnowledgeRecord) bool {
	if record == nil {
		return true
	}
	return file.ModifiedTime.After(record.LastModified())
}

// processFile walks one file through the state machine. It never returns an error; failures are
// carried in the result.
func (uc *UseCase) processFile(ctx context.Context, file *model.SourceFile) model.FileResult {
	logger := logging.From(ctx).With("file_name", file.Name, "file_id", file.ID)
	res := model.FileResult{FileName: file.Name, State: model.FileStateDiscovered}

	fail := func(err error) model.FileResult {
		res.Reached = res.State
		res.State = model.FileStateFailed
		res.Err = err
		logger.Error("failed to process file", "state", res.Reached.String(), "error", err)
		return res
	}
	skip := func() model.FileResult {
		res.Reached = res.State
		res.State = model.FileStateSkipped
		return res
	}

	existing, err := withTimeout(ctx, uc.timeout, func(ctx context.Context) (*model.KnowledgeRecord, error) {
		return uc.store.FindByKey(ctx, file.Name)
	})
	if err != nil {
		logger.Warn("failed to look up existing record, processing anyway", "error", err)
		existing = nil
	} else if !NeedsUpdate(file, existing) {
		logger.Debug("file unchanged", "modified_time", file.ModifiedTime)
		return skip()
	}

	if existing == nil {
		logger.Info("new file detected")
	} else {
		logger.Info("file modified", "source", file.ModifiedTime, "stored", existing.LastModified())
		if existing.Metadata.SourceID != "" && existing.Metadata.SourceID != file.ID {
			logger.Warn("file name collision", "stored_source_id", existing.Metadata.SourceID)
		}
	}

	res.State = model.FileStateFetching
	type fetched struct {
		data     []byte
		mimeType string
	}
	content, err := withTimeout(ctx, uc.timeout, func(ctx context.Context) (*fetched, error) {
		data, mimeType, err := uc.source.Fetch(ctx, file)
		if err != nil {
			return nil, err
		}
		return &fetched{data: data, mimeType: mimeType}, nil
	})
	if err != nil {
		return fail(goerr.Wrap(err, "failed to fetch file", goerr.V("file_name", file.Name), goerr.T(model.ErrTagUpstream)))
	}

	res.State = model.FileStateExtracting
	raw, err := uc.extractor.Extract(ctx, content.data, content.mimeType)
	if err != nil {
		return fail(goerr.Wrap(err, "failed to extract text",
			goerr.V("file_name", file.Name),
			goerr.V("mime_type", content.mimeType),
			goerr.T(model.ErrTagFileProcessing)))
	}

	text := extract.Normalize(raw)
	if utf8.RuneCountInString(text) < uc.minText {
		logger.Warn("file has no extractable text content", "mime_type", content.mimeType, "length", utf8.RuneCountInString(text))
		return skip()
	}
	if cut, truncated := extract.Truncate(text, uc.maxText); truncated {
		logger.Debug("text truncated", "limit", uc.maxText)
		text = cut
	}

	res.State = model.FileStateEmbedding
	vec, err := withTimeout(ctx, uc.timeout, func(ctx context.Context) ([]float32, error) {
		return uc.embedder.Embed(ctx, text)
	})
	if err != nil {
		return fail(goerr.Wrap(err, "failed to embed text", goerr.V("file_name", file.Name), goerr.T(model.ErrTagUpstream)))
	}

	res.State = model.FileStatePersisting
	record := &model.KnowledgeRecord{
		Title:     model.TitleFromFileName(file.Name),
		Content:   text,
		FileName:  file.Name,
		FileURL:   file.URL,
		FileType:  model.FileTypeFromMIME(file.MIMEType),
		FilePath:  file.Path,
		Embedding: vec,
		Metadata: model.RecordMetadata{
			ModifiedTime: file.ModifiedTime,
			Size:         file.Size,
			MIMEType:     file.MIMEType,
			TextLength:   utf8.RuneCountInString(text),
			SourceID:     file.ID,
			Source:       string(uc.source.Kind()),
		},
		TeacherID: uc.teacherID,
		UserID:    uc.userID,
	}
	if existing != nil {
		record.ID = existing.ID
	}

	if _, err := withTimeout(ctx, uc.timeout, func(ctx context.Context) (*model.KnowledgeRecord, error) {
		return uc.store.Upsert(ctx, record)
	}); err != nil {
		return fail(goerr.Wrap(err, "failed to save record", goerr.V("file_name", file.Name), goerr.T(model.ErrTagStore)))
	}

	res.Reached = res.State
	res.State = model.FileStateDone
	logger.Info("file synchronized", "text_length", record.Metadata.TextLength)
	return res
}
