package query

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

//go:embed prompt/vi.md
var viPromptRaw string

//go:embed prompt/en.md
var enPromptRaw string

var (
	viPromptTmpl = template.Must(template.New("vi").Parse(viPromptRaw))
	enPromptTmpl = template.Must(template.New("en").Parse(enPromptRaw))
)

// BuildPrompt renders the answer instruction for lang around docContext and question.
func BuildPrompt(lang model.Language, docContext, question string) (string, error) {
	tmpl := viPromptTmpl
	if lang == model.LanguageEN {
		tmpl = enPromptTmpl
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{
		"Context":  docContext,
		"Question": question,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute answer prompt template", goerr.V("language", lang))
	}
	return buf.String(), nil
}
