package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Version is set at build time with -ldflags
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

const (
	exitFailure = 1
	exitConfig  = 2
)

func Run(ctx context.Context, argv []string) *Error {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		code := exitFailure
		if model.ErrorKind(err) == "config" {
			code = exitConfig
		}
		return &Error{
			Code:    code,
			Message: err.Error(),
		}
	}

	return nil
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	var (
		logLevel  string
		logFormat string
	)

	return &cli.Command{
		Name:      "ragdrive",
		Usage:     "Question answering over documents synchronized from Google Drive",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (console, json)",
				Value:       string(logging.FormatConsole),
				Sources:     cli.EnvVars("LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, err := logging.Configure(logLevel, logging.Format(logFormat), stderr)
			if err != nil {
				return ctx, goerr.Wrap(err, "invalid logging flags", goerr.T(model.ErrTagConfig))
			}
			logging.SetDefault(logger)
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			syncCommand(),
			queryCommand(),
			chatCommand(),
			serveCommand(),
			mcpCommand(),
			statsCommand(),
			deleteCommand(),
		},
	}
}
