package adapter

import (
	"context"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"google.golang.org/api/iterator"
)

// Bucket is a Source backed by a Cloud Storage bucket. The root passed to ListFiles is an object
// prefix that plays the role of a folder.
type Bucket struct {
	bucketName string
	client     *storage.Client
}

// NewBucket creates a new Cloud Storage source
func NewBucket(ctx context.Context, bucketName string) (*Bucket, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required", goerr.T(model.ErrTagConfig))
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.T(model.ErrTagConfig))
	}

	return &Bucket{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (b *Bucket) Kind() model.SourceKind {
	return model.SourceKindGCS
}

// mimeTypeOf prefers the object content type and falls back to the file extension.
func mimeTypeOf(attrs *storage.ObjectAttrs) string {
	ct := strings.TrimSpace(strings.SplitN(attrs.ContentType, ";", 2)[0])
	if model.FileTypeFromMIME(ct) != model.FileTypeUnknown {
		return ct
	}

	switch strings.ToLower(path.Ext(attrs.Name)) {
	case ".pdf":
		return model.MIMETypePDF
	case ".docx":
		return model.MIMETypeDocx
	case ".doc":
		return model.MIMETypeDoc
	case ".xlsx":
		return model.MIMETypeXlsx
	case ".html", ".htm":
		return model.MIMETypeHTML
	case ".md":
		return model.MIMETypeMarkdown
	case ".txt":
		return model.MIMETypeText
	case ".csv":
		return model.MIMETypeCSV
	}
	return ct
}

func (b *Bucket) ListFiles(ctx context.Context, root string) ([]*model.SourceFile, error) {
	prefix := strings.TrimPrefix(root, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var files []*model.SourceFile
	it := b.client.Bucket(b.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list objects",
				goerr.V("service", "gcs"),
				goerr.V("bucket", b.bucketName),
				goerr.V("prefix", prefix),
				goerr.T(model.ErrTagUpstream))
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}

		mimeType := mimeTypeOf(attrs)
		if model.FileTypeFromMIME(mimeType) == model.FileTypeUnknown {
			continue
		}

		dir := path.Dir(strings.TrimPrefix(attrs.Name, prefix))
		if dir == "." {
			dir = ""
		}
		files = append(files, &model.SourceFile{
			ID:           attrs.Name,
			Name:         path.Base(attrs.Name),
			MIMEType:     mimeType,
			ModifiedTime: attrs.Updated,
			Size:         attrs.Size,
			URL:          "gs://" + b.bucketName + "/" + attrs.Name,
			Path:         dir,
		})
	}

	return files, nil
}

func (b *Bucket) Fetch(ctx context.Context, file *model.SourceFile) ([]byte, string, error) {
	reader, err := b.client.Bucket(b.bucketName).Object(file.ID).NewReader(ctx)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to read from storage",
			goerr.V("service", "gcs"),
			goerr.V("key", file.ID),
			goerr.T(model.ErrTagUpstream))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to read object body",
			goerr.V("key", file.ID),
			goerr.T(model.ErrTagUpstream))
	}

	return data, file.MIMEType, nil
}

func (b *Bucket) Close() error {
	return b.client.Close()
}
