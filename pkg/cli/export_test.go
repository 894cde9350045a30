package cli

import (
	"context"
	"io"

	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

var (
	NewApp      = newApp
	LoadTargets = loadTargets
)

type sliceReader struct {
	lines []string
	errs  []error
}

func (r *sliceReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line, err := r.lines[0], r.errs[0]
	r.lines, r.errs = r.lines[1:], r.errs[1:]
	return line, err
}

// ChatForTest feeds lines to a chat session. errs[i] is returned along with lines[i].
func ChatForTest(ctx context.Context, retriever interfaces.Retriever, w io.Writer, lines []string, errs []error) error {
	if errs == nil {
		errs = make([]error, len(lines))
	}
	s := &chatSession{
		retriever: retriever,
		out:       w,
		opts:      model.QueryOptions{Language: model.LanguageEN},
	}
	return s.loop(ctx, &sliceReader{lines: lines, errs: errs})
}
