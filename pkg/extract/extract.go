// Package extract converts downloaded file bytes into plain text keyed by MIME type.
package extract

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

// Func extracts text from one file format.
type Func func(ctx context.Context, data []byte) (string, error)

// Registry dispatches to a Func by MIME type. Unknown types yield empty text.
type Registry struct {
	funcs map[string]Func
}

type Option func(*Registry)

// WithFunc registers or overrides the extractor for mimeType.
func WithFunc(mimeType string, fn Func) Option {
	return func(r *Registry) {
		r.funcs[mimeType] = fn
	}
}

// New returns a registry with the built-in extractors.
func New(opts ...Option) *Registry {
	r := &Registry{
		funcs: map[string]Func{
			model.MIMETypePDF:      PDF,
			model.MIMETypeDocx:     Docx,
			model.MIMETypeDoc:      LegacyDoc,
			model.MIMETypeXlsx:     Xlsx,
			model.MIMETypeHTML:     HTML,
			model.MIMETypeText:     Text,
			model.MIMETypeMarkdown: Text,
			model.MIMETypeCSV:      Text,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supports reports whether mimeType has a registered extractor.
func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.funcs[mimeType]
	return ok
}

// Extract returns the text of data. Parser failures and panics come back as errors.
func (r *Registry) Extract(ctx context.Context, data []byte, mimeType string) (text string, err error) {
	fn, ok := r.funcs[mimeType]
	if !ok {
		return "", nil
	}

	// Third-party parsers panic on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = goerr.New("extractor panicked", goerr.V("mime_type", mimeType), goerr.V("panic", fmt.Sprint(rec)))
		}
	}()

	text, err = fn(ctx, data)
	if err != nil {
		return "", goerr.Wrap(err, "failed to extract text", goerr.V("mime_type", mimeType))
	}
	return text, nil
}
