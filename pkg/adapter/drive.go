package adapter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const drivePageSize = 1000

// exportFormats maps Google native documents to the office format they are downloaded as.
var exportFormats = map[string]string{
	model.MIMETypeGoogleDoc:   model.MIMETypeDocx,
	model.MIMETypeGoogleSheet: model.MIMETypeXlsx,
}

// Drive lists and downloads files from Google Drive folders.
type Drive struct {
	service *drive.Service
	maxSize int64
}

type DriveOption func(*driveConfig)

type driveConfig struct {
	credentialsFile string
	clientOptions   []option.ClientOption
	maxSize         int64
}

// WithDriveCredentialsFile uses a service account key file instead of default credentials.
func WithDriveCredentialsFile(path string) DriveOption {
	return func(c *driveConfig) {
		c.credentialsFile = path
	}
}

// WithDriveClientOptions passes raw client options to the Drive service.
func WithDriveClientOptions(opts ...option.ClientOption) DriveOption {
	return func(c *driveConfig) {
		c.clientOptions = append(c.clientOptions, opts...)
	}
}

// WithDriveMaxSize skips downloads of files larger than n bytes. Zero disables the check.
func WithDriveMaxSize(n int64) DriveOption {
	return func(c *driveConfig) {
		c.maxSize = n
	}
}

func NewDrive(ctx context.Context, opts ...DriveOption) (*Drive, error) {
	cfg := &driveConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	clientOpts := []option.ClientOption{option.WithScopes(drive.DriveReadonlyScope)}
	if cfg.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.credentialsFile))
	}
	clientOpts = append(clientOpts, cfg.clientOptions...)

	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create drive service",
			goerr.V("credentials_file", cfg.credentialsFile),
			goerr.T(model.ErrTagConfig))
	}

	return &Drive{service: svc, maxSize: cfg.maxSize}, nil
}

func (d *Drive) Kind() model.SourceKind {
	return model.SourceKindDrive
}

func driveQuery(folderID string) string {
	mimeTypes := append(model.SyncableMIMETypes(), model.MIMETypeFolder)
	conds := make([]string, 0, len(mimeTypes))
	for _, m := range mimeTypes {
		conds = append(conds, fmt.Sprintf("mimeType='%s'", m))
	}
	return fmt.Sprintf("'%s' in parents and (%s) and trashed=false",
		strings.ReplaceAll(folderID, "'", `\'`), strings.Join(conds, " or "))
}

// ListFiles walks root and its sub folders. Every page of every folder is read before it returns.
func (d *Drive) ListFiles(ctx context.Context, root string) ([]*model.SourceFile, error) {
	if root == "" {
		return nil, goerr.New("drive folder ID is required", goerr.T(model.ErrTagConfig))
	}

	var files []*model.SourceFile
	visited := map[string]bool{}
	if err := d.walk(ctx, root, "", visited, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (d *Drive) walk(ctx context.Context, folderID, path string, visited map[string]bool, out *[]*model.SourceFile) error {
	if visited[folderID] {
		return nil
	}
	visited[folderID] = true

	logger := logging.From(ctx)
	pageToken := ""
	for {
		call := d.service.Files.List().
			Q(driveQuery(folderID)).
			Fields(googleapi.Field("nextPageToken, files(id, name, mimeType, modifiedTime, size, webViewLink)")).
			PageSize(drivePageSize).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return goerr.Wrap(err, "failed to list drive folder",
				goerr.V("service", "drive"),
				goerr.V("folder_id", folderID),
				goerr.T(model.ErrTagUpstream))
		}

		for _, f := range resp.Files {
			if f.MimeType == model.MIMETypeFolder {
				if err := d.walk(ctx, f.Id, joinPath(path, f.Name), visited, out); err != nil {
					return err
				}
				continue
			}

			modified, err := time.Parse(time.RFC3339, f.ModifiedTime)
			if err != nil {
				// A zero time would hide every later edit, so treat the file as just changed.
				logger.Warn("invalid modified time", "file_id", f.Id, "value", f.ModifiedTime)
				modified = time.Now().UTC()
			}
			*out = append(*out, &model.SourceFile{
				ID:           f.Id,
				Name:         f.Name,
				MIMEType:     f.MimeType,
				ModifiedTime: modified,
				Size:         f.Size,
				URL:          f.WebViewLink,
				Path:         path,
			})
		}

		logger.Debug("listed drive page", "folder_id", folderID, "files", len(resp.Files))
		if resp.NextPageToken == "" {
			return nil
		}
		pageToken = resp.NextPageToken
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Fetch downloads file. Google Docs and Sheets are exported to docx and xlsx.
func (d *Drive) Fetch(ctx context.Context, file *model.SourceFile) ([]byte, string, error) {
	if d.maxSize > 0 && file.Size > d.maxSize {
		return nil, "", goerr.New("file exceeds size limit",
			goerr.V("file_name", file.Name),
			goerr.V("size", file.Size),
			goerr.V("limit", d.maxSize),
			goerr.T(model.ErrTagFileProcessing))
	}

	mimeType := file.MIMEType
	var (
		body io.ReadCloser
		err  error
	)
	if export, ok := exportFormats[file.MIMEType]; ok {
		mimeType = export
		body, err = d.export(ctx, file.ID, export)
	} else {
		body, err = d.download(ctx, file.ID)
	}
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to download drive file",
			goerr.V("service", "drive"),
			goerr.V("file_id", file.ID),
			goerr.V("file_name", file.Name),
			goerr.T(model.ErrTagUpstream))
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to read drive file",
			goerr.V("file_name", file.Name),
			goerr.T(model.ErrTagUpstream))
	}
	return data, mimeType, nil
}

func (d *Drive) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := d.service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (d *Drive) export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	resp, err := d.service.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
