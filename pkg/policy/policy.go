// Package policy evaluates Rego rules that decide which discovered files are synchronized.
//
// Policies live in package "sync" and add reasons to the deny set for files that must be
// skipped:
//
//	package sync
//
//	deny contains "drafts are not indexed" if {
//		startswith(input.name, "DRAFT")
//	}
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

const query = "data.sync"

// Filter is a prepared sync policy. A nil *Filter allows every file.
type Filter struct {
	prepared *rego.PreparedEvalQuery
}

// Load reads every .rego file in dir. It returns nil when dir holds no policy.
func Load(ctx context.Context, dir string) (*Filter, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", dir), goerr.T(model.ErrTagConfig))
	}
	if len(files) == 0 {
		return nil, nil
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file), goerr.T(model.ErrTagConfig))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}

	return prepare(ctx, modules)
}

// FromSource builds a filter from in-memory modules keyed by file name.
func FromSource(ctx context.Context, sources map[string]string) (*Filter, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	modules := make([]func(*rego.Rego), 0, len(names))
	for _, name := range names {
		modules = append(modules, rego.Module(name, sources[name]))
	}
	return prepare(ctx, modules)
}

func prepare(ctx context.Context, modules []func(*rego.Rego)) (*Filter, error) {
	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query(query))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy", goerr.V("query", query), goerr.T(model.ErrTagConfig))
	}
	return &Filter{prepared: &prepared}, nil
}

func input(file *model.SourceFile) map[string]any {
	return map[string]any{
		"id":            file.ID,
		"name":          file.Name,
		"mime_type":     file.MIMEType,
		"modified_time": file.ModifiedTime.UTC().Format(time.RFC3339),
		"size":          file.Size,
		"path":          file.Path,
		"url":           file.URL,
	}
}

// Allow evaluates the policy for file. Denied files come back with their reasons.
func (f *Filter) Allow(ctx context.Context, file *model.SourceFile) (bool, []string, error) {
	if f == nil || f.prepared == nil {
		return true, nil, nil
	}

	rs, err := f.prepared.Eval(ctx, rego.EvalInput(input(file)))
	if err != nil {
		return false, nil, goerr.Wrap(err, "failed to evaluate policy", goerr.V("file_name", file.Name))
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return true, nil, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return true, nil, nil
	}
	deny, ok := data["deny"].([]any)
	if !ok || len(deny) == 0 {
		return true, nil, nil
	}

	reasons := make([]string, 0, len(deny))
	for _, d := range deny {
		reasons = append(reasons, fmt.Sprint(d))
	}
	sort.Strings(reasons)
	return false, reasons, nil
}
