package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg  config
		opts queryOptions
	)

	flags := queryFlags(&opts)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions about the knowledge base interactively",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeFn, err := cfg.newRetriever(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile(),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          c.Root().Writer,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			session := &chatSession{
				retriever: uc,
				out:       w,
				opts:      opts.toModel(),
				progress: func() func() {
					s := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
						spinner.WithWriter(w),
						spinner.WithSuffix(" searching documents..."),
					)
					s.Start()
					return s.Stop
				},
			}
			return session.loop(ctx, rl)
		},
	}
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "ragdrive")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "chat_history")
}

type lineReader interface {
	Readline() (string, error)
}

// chatSession answers one question per input line until exit, EOF or interrupt
type chatSession struct {
	retriever interfaces.Retriever
	out       io.Writer
	opts      model.QueryOptions
	progress  func() (stop func())
}

func (s *chatSession) loop(ctx context.Context, r lineReader) error {
	fmt.Fprintf(s.out, "Chat session started. Type 'exit' to quit.\n")

	for {
		line, err := r.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		message := strings.TrimSpace(line)
		if message == "exit" || message == "quit" {
			break
		}
		if message == "" {
			continue
		}

		if err := s.ask(ctx, message); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}

	fmt.Fprintf(s.out, "\nChat session completed\n")
	return nil
}

func (s *chatSession) ask(ctx context.Context, message string) error {
	stop := func() {}
	if s.progress != nil {
		stop = s.progress()
	}
	result, err := s.retriever.Query(ctx, message, s.opts)
	stop()
	if err != nil {
		return err
	}

	printResult(s.out, result)
	fmt.Fprintln(s.out)
	return nil
}
