package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/policy"
)

const denyDrafts = `package sync

deny contains "draft documents are not indexed" if {
	startswith(input.name, "DRAFT")
}

deny contains "file too large" if {
	input.size > 1000
}
`

func TestLoadAndAllow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "sync.rego"), []byte(denyDrafts), 0644))

	filter, err := policy.Load(ctx, dir)
	gt.NoError(t, err)
	gt.V(t, filter).NotNil()

	ok, reasons, err := filter.Allow(ctx, &model.SourceFile{Name: "lesson.pdf", Size: 10, ModifiedTime: time.Now()})
	gt.NoError(t, err)
	gt.True(t, ok)
	gt.A(t, reasons).Length(0)

	ok, reasons, err = filter.Allow(ctx, &model.SourceFile{Name: "DRAFT lesson.pdf", Size: 5000})
	gt.NoError(t, err)
	gt.False(t, ok)
	gt.A(t, reasons).Length(2)
	gt.Equal(t, reasons[0], "draft documents are not indexed")
}

func TestLoadEmptyDirAllowsAll(t *testing.T) {
	ctx := context.Background()
	filter, err := policy.Load(ctx, t.TempDir())
	gt.NoError(t, err)
	gt.Nil(t, filter)

	ok, _, err := filter.Allow(ctx, &model.SourceFile{Name: "DRAFT.pdf"})
	gt.NoError(t, err)
	gt.True(t, ok)
}

func TestInvalidPolicy(t *testing.T) {
	_, err := policy.FromSource(context.Background(), map[string]string{
		"bad.rego": "package sync\n\ndeny contains x if {",
	})
	gt.Error(t, err)
	gt.Equal(t, model.ErrorKind(err), "config")
}

func TestPolicyByPath(t *testing.T) {
	ctx := context.Background()
	filter, err := policy.FromSource(ctx, map[string]string{
		"path.rego": `package sync

deny contains "archived" if {
	startswith(input.path, "archive/")
}
`,
	})
	gt.NoError(t, err)

	ok, _, err := filter.Allow(ctx, &model.SourceFile{Name: "a.pdf", Path: "archive/2020"})
	gt.NoError(t, err)
	gt.False(t, ok)

	ok, _, err = filter.Allow(ctx, &model.SourceFile{Name: "a.pdf", Path: "current"})
	gt.NoError(t, err)
	gt.True(t, ok)
}
