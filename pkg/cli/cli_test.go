package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/cli"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/repository"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := cli.NewApp(&stdout, &stderr).Run(context.Background(), append([]string{"ragdrive"}, args...))
	return stdout.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func seedSQLite(t *testing.T, names ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.db")
	store, err := repository.NewSQLite(path)
	gt.NoError(t, err)
	defer store.Close()

	for _, name := range names {
		_, err := store.Upsert(context.Background(), &model.KnowledgeRecord{
			Title:     model.TitleFromFileName(name),
			Content:   "content of " + name,
			FileName:  name,
			FileType:  model.FileTypePDF,
			Embedding: []float32{1, 0, 0},
			Metadata: model.RecordMetadata{
				ModifiedTime: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
				MIMEType:     model.MIMETypePDF,
			},
		})
		gt.NoError(t, err)
	}
	return path
}

func TestStatsCommand(t *testing.T) {
	path := seedSQLite(t, "a.pdf", "b.pdf")

	out, err := run(t, "stats", "--store", "sqlite", "--sqlite-path", path)
	gt.NoError(t, err)

	var stats model.Stats
	gt.NoError(t, json.Unmarshal([]byte(out), &stats))
	gt.Equal(t, stats.TotalDocuments, 2)
	gt.Equal(t, stats.Status, "ready")
}

func TestDeleteCommand(t *testing.T) {
	path := seedSQLite(t, "a.pdf", "b.pdf")

	out, err := run(t, "delete", "--store", "sqlite", "--sqlite-path", path, "a.pdf")
	gt.NoError(t, err)
	gt.S(t, out).Contains("Deleted a.pdf")

	store, err := repository.NewSQLite(path)
	gt.NoError(t, err)
	defer store.Close()
	n, err := store.Count(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, n, 1)

	t.Run("unknown file", func(t *testing.T) {
		_, err := run(t, "delete", "--store", "sqlite", "--sqlite-path", path, "missing.pdf")
		gt.Error(t, err)
		gt.Equal(t, model.ErrorKind(err), "not_found")
	})

	t.Run("file name required", func(t *testing.T) {
		_, err := run(t, "delete", "--store", "memory")
		gt.Error(t, err)
		gt.Equal(t, model.ErrorKind(err), "validation")
	})
}

func TestConfigErrors(t *testing.T) {
	t.Setenv("DRIVE_FOLDER_ID", "")
	t.Setenv("GOOGLE_DRIVE_FOLDER_ID", "")
	t.Setenv("RAGDRIVE_SOURCES", "")

	testCases := map[string][]string{
		"unknown store":        {"stats", "--store", "mongodb"},
		"postgres without url": {"stats", "--store", "postgres", "--database-url", ""},
		"unknown provider":     {"query", "--store", "memory", "--llm-provider", "claude", "what is a variable"},
		"sync without folder":  {"sync", "--once", "--store", "memory"},
		"sync bad schedule":    {"sync", "--folder-id", "root", "--schedule", "every night", "--store", "memory"},
		"bad log format":       {"--log-format", "xml", "stats", "--store", "memory"},
	}

	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, args...)
			gt.Error(t, err)
			gt.Equal(t, model.ErrorKind(err), "config")
		})
	}
}

func TestLoadTargets(t *testing.T) {
	t.Run("multiple sources", func(t *testing.T) {
		path := writeFile(t, "sources.yaml", `
sources:
  - name: course-a
    root: folder-a
    teacher_id: teacher-1
  - name: archive
    type: gcs
    bucket: kb-archive
    root: lectures/
    user_id: user-9
`)
		targets, err := cli.LoadTargets(path)
		gt.NoError(t, err)
		gt.A(t, targets).Length(2)

		gt.Equal(t, targets[0].Type, model.SourceKindDrive)
		gt.Equal(t, targets[0].Root, "folder-a")
		gt.Equal(t, targets[0].TeacherID, "teacher-1")

		gt.Equal(t, targets[1].Type, model.SourceKindGCS)
		gt.Equal(t, targets[1].Bucket, "kb-archive")
		gt.Equal(t, targets[1].UserID, "user-9")
	})

	t.Run("name defaults to root", func(t *testing.T) {
		path := writeFile(t, "sources.yaml", "sources:\n  - root: folder-x\n")
		targets, err := cli.LoadTargets(path)
		gt.NoError(t, err)
		gt.Equal(t, targets[0].Name, "folder-x")
	})

	invalid := map[string]string{
		"empty":          "sources: []\n",
		"drive no root":  "sources:\n  - name: a\n",
		"gcs no bucket":  "sources:\n  - type: gcs\n    root: x\n",
		"unknown type":   "sources:\n  - type: dropbox\n    root: x\n",
		"malformed yaml": "sources: [\n",
	}
	for name, content := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := cli.LoadTargets(writeFile(t, "sources.yaml", content))
			gt.Error(t, err)
			gt.Equal(t, model.ErrorKind(err), "config")
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := cli.LoadTargets(filepath.Join(t.TempDir(), "nope.yaml"))
		gt.Error(t, err)
		gt.Equal(t, model.ErrorKind(err), "config")
	})
}

type mockRetriever struct {
	queries []string
	err     error
}

func (m *mockRetriever) Query(ctx context.Context, text string, opts model.QueryOptions) (*model.QueryResult, error) {
	m.queries = append(m.queries, text)
	if m.err != nil {
		return nil, m.err
	}
	return &model.QueryResult{
		Answer:     "answer to " + text,
		Confidence: 0.8,
		Sources: []*model.Source{
			{Title: "Lesson 1", FileName: "lesson1.pdf", Similarity: 0.8, URL: "https://drive.example/lesson1"},
		},
	}, nil
}

func (m *mockRetriever) Stats(ctx context.Context) (*model.Stats, error) {
	return &model.Stats{Status: "ready", Initialized: true}, nil
}

func TestChatSession(t *testing.T) {
	t.Run("answers until exit", func(t *testing.T) {
		var buf bytes.Buffer
		retriever := &mockRetriever{}
		err := cli.ChatForTest(context.Background(), retriever, &buf,
			[]string{"what is a variable", "  ", "exit", "never asked"}, nil)
		gt.NoError(t, err)

		gt.A(t, retriever.queries).Length(1)
		gt.Equal(t, retriever.queries[0], "what is a variable")
		gt.S(t, buf.String()).Contains("answer to what is a variable")
		gt.S(t, buf.String()).Contains("lesson1.pdf")
		gt.S(t, buf.String()).Contains("Chat session completed")
	})

	t.Run("query errors keep the session alive", func(t *testing.T) {
		var buf bytes.Buffer
		retriever := &mockRetriever{err: goerr.New("quota exceeded", goerr.T(model.ErrTagUpstream))}
		err := cli.ChatForTest(context.Background(), retriever, &buf,
			[]string{"first question", "second question"}, nil)
		gt.NoError(t, err)

		gt.A(t, retriever.queries).Length(2)
		gt.S(t, buf.String()).Contains("Error: quota exceeded")
	})

	t.Run("interrupt on empty line ends the session", func(t *testing.T) {
		var buf bytes.Buffer
		retriever := &mockRetriever{}
		err := cli.ChatForTest(context.Background(), retriever, &buf,
			[]string{"", "ignored"}, []error{readline.ErrInterrupt, nil})
		gt.NoError(t, err)
		gt.A(t, retriever.queries).Length(0)
	})
}
