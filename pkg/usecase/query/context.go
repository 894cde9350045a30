package query

import (
	"fmt"
	"strings"

	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/extract"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/vector"
)

const (
	DefaultMaxContextDocs  = 5
	DefaultMaxContextChars = 2000

	contextSeparator = "\n---\n"
	truncationMarker = "\n..."
)

// BuildContext renders up to maxDocs ranked documents into one prompt block. Each document is
// labeled with its position and title and cut to maxChars runes. Non-positive limits fall back
// to the defaults.
func BuildContext(docs []vector.Scored[*model.KnowledgeRecord], maxDocs, maxChars int) string {
	if maxDocs <= 0 {
		maxDocs = DefaultMaxContextDocs
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	if len(docs) > maxDocs {
		docs = docs[:maxDocs]
	}

	blocks := make([]string, 0, len(docs))
	for i, doc := range docs {
		content, cut := extract.Truncate(doc.Item.Content, maxChars)
		block := fmt.Sprintf("[Document %d: %s]\n%s", i+1, titleOf(doc.Item), content)
		if cut {
			block += truncationMarker
		}
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, contextSeparator)
}

func titleOf(r *model.KnowledgeRecord) string {
	if r.Title != "" {
		return r.Title
	}
	return r.FileName
}
