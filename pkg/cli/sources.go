package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/adapter"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// target is one folder tree to mirror into the knowledge base
type target struct {
	Name      string           `yaml:"name"`
	Type      model.SourceKind `yaml:"type"`
	Root      string           `yaml:"root"`
	Bucket    string           `yaml:"bucket"`
	TeacherID string           `yaml:"teacher_id"`
	UserID    string           `yaml:"user_id"`
}

type sourcesFile struct {
	Sources []target `yaml:"sources"`
}

// sourceConfig holds flags describing where documents come from
type sourceConfig struct {
	kind            string
	folderID        string
	bucket          string
	prefix          string
	credentialsFile string
	maxFileSize     int64
	teacherID       string
	userID          string
	sourcesPath     string
}

func sourceFlags(cfg *sourceConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "source",
			Usage:       "Document source (drive, gcs)",
			Value:       string(model.SourceKindDrive),
			Sources:     cli.EnvVars("RAGDRIVE_SOURCE"),
			Destination: &cfg.kind,
		},
		&cli.StringFlag{
			Name:        "folder-id",
			Usage:       "Google Drive folder ID to mirror",
			Sources:     cli.EnvVars("DRIVE_FOLDER_ID", "GOOGLE_DRIVE_FOLDER_ID"),
			Destination: &cfg.folderID,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket to mirror when source is gcs",
			Sources:     cli.EnvVars("STORAGE_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object prefix inside the bucket",
			Sources:     cli.EnvVars("STORAGE_PREFIX"),
			Destination: &cfg.prefix,
		},
		&cli.StringFlag{
			Name:        "credentials-file",
			Usage:       "Service account key file for Google Drive",
			Sources:     cli.EnvVars("GOOGLE_SERVICE_ACCOUNT_FILE"),
			Destination: &cfg.credentialsFile,
			TakesFile:   true,
		},
		&cli.IntFlag{
			Name:        "max-file-size",
			Usage:       "Skip Drive files larger than this many bytes (0 for no limit)",
			Value:       50 << 20,
			Sources:     cli.EnvVars("MAX_FILE_SIZE"),
			Destination: &cfg.maxFileSize,
		},
		&cli.StringFlag{
			Name:        "teacher-id",
			Usage:       "Owner tag written to every record",
			Sources:     cli.EnvVars("TEACHER_ID"),
			Destination: &cfg.teacherID,
		},
		&cli.StringFlag{
			Name:        "user-id",
			Usage:       "User tag written to every record",
			Sources:     cli.EnvVars("USER_ID"),
			Destination: &cfg.userID,
		},
		&cli.StringFlag{
			Name:        "sources",
			Usage:       "YAML file listing several source folders; overrides the single source flags",
			Sources:     cli.EnvVars("RAGDRIVE_SOURCES"),
			Destination: &cfg.sourcesPath,
			TakesFile:   true,
		},
	}
}

// loadTargets parses a sources file and validates every entry
func loadTargets(path string) ([]target, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read sources file", goerr.V("path", path), goerr.T(model.ErrTagConfig))
	}

	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse sources file", goerr.V("path", path), goerr.T(model.ErrTagConfig))
	}
	if len(file.Sources) == 0 {
		return nil, configError("sources file has no sources", goerr.V("path", path))
	}

	for i := range file.Sources {
		t := &file.Sources[i]
		if t.Type == "" {
			t.Type = model.SourceKindDrive
		}
		if t.Name == "" {
			t.Name = t.Root
		}
		if err := t.validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid source entry", goerr.V("index", i), goerr.V("path", path))
		}
	}
	return file.Sources, nil
}

func (t target) validate() error {
	switch t.Type {
	case model.SourceKindDrive:
		if t.Root == "" {
			return configError("root folder ID is required for drive sources", goerr.V("name", t.Name))
		}
	case model.SourceKindGCS:
		if t.Bucket == "" {
			return configError("bucket is required for gcs sources", goerr.V("name", t.Name))
		}
	default:
		return configError("unknown source type", goerr.V("type", t.Type))
	}
	return nil
}

// targets returns the folder trees selected by flags or by the sources file
func (cfg *sourceConfig) targets() ([]target, error) {
	if cfg.sourcesPath != "" {
		return loadTargets(cfg.sourcesPath)
	}

	t := target{
		Type:      model.SourceKind(cfg.kind),
		TeacherID: cfg.teacherID,
		UserID:    cfg.userID,
	}
	switch t.Type {
	case model.SourceKindDrive:
		t.Root = cfg.folderID
		if t.Root == "" {
			return nil, configError("folder-id is required")
		}
	case model.SourceKindGCS:
		t.Bucket = cfg.bucket
		t.Root = cfg.prefix
	}
	t.Name = t.Root
	if t.Name == "" {
		t.Name = t.Bucket
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return []target{t}, nil
}

// newSource opens the source backend of t
func (cfg *sourceConfig) newSource(ctx context.Context, t target) (interfaces.Source, func() error, error) {
	switch t.Type {
	case model.SourceKindDrive:
		opts := []adapter.DriveOption{adapter.WithDriveMaxSize(cfg.maxFileSize)}
		if cfg.credentialsFile != "" {
			opts = append(opts, adapter.WithDriveCredentialsFile(cfg.credentialsFile))
		}
		d, err := adapter.NewDrive(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		return d, func() error { return nil }, nil

	case model.SourceKindGCS:
		b, err := adapter.NewBucket(ctx, t.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil

	default:
		return nil, nil, configError("unknown source type", goerr.V("type", t.Type))
	}
}
