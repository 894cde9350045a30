package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/server"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/service/mcp"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg     config
		addr    string
		timeout time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address of the HTTP API",
			Value:       ":3000",
			Sources:     cli.EnvVars("RAGDRIVE_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "shutdown-timeout",
			Usage:       "Grace period for in-flight requests on shutdown",
			Value:       server.DefaultShutdownTimeout,
			Destination: &timeout,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the query API over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeFn, err := cfg.newRetriever(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			srv := server.New(uc,
				server.WithLogger(logging.From(ctx)),
				server.WithShutdownTimeout(timeout),
			)
			return srv.Run(ctx, addr)
		},
	}
}

func mcpCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "http",
			Usage:       "Serve the streamable HTTP transport on this address instead of stdio",
			Sources:     cli.EnvVars("RAGDRIVE_MCP_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Expose knowledge base tools to MCP clients",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeFn, err := cfg.newRetriever(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			s := mcp.NewServer(uc, c.Root().Version)
			if addr == "" {
				return mcp.ServeStdio(ctx, s)
			}
			return serveHTTP(ctx, addr, mcp.HTTPHandler(s))
		},
	}
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.From(ctx).Info("MCP server started", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return goerr.Wrap(err, "MCP server stopped", goerr.V("addr", addr))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down MCP server")
	}
	return nil
}
