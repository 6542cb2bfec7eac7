// Package main implements docqactl, a command-line client for the docqa HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docqa/internal/language"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command.
type options struct {
	server  string
	timeout time.Duration
	out     io.Writer
}

func (o *options) client() *client {
	return newClient(o.server, o.timeout)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{out: out}
	root := &cobra.Command{
		Use:   "docqactl",
		Short: "CLI for the docqa document QA server",
		Long: `docqactl talks to a running docqa server. It creates sessions, uploads
extracted document pages, and asks questions about them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", "http://127.0.0.1:8420", "docqa server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(
		newHealthCmd(opts),
		newLanguagesCmd(opts),
		newSessionCmd(opts),
		newIngestCmd(opts),
		newContextCmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
	)
	return root
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check docqa server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(opts.out, "Active Sessions: %d\n", resp.Sessions)
			fmt.Fprintf(opts.out, "Server URL: %s\n", opts.server)
			return nil
		},
	}
}

func newLanguagesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported document languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().Languages(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range resp.Languages {
				fmt.Fprintf(opts.out, "%-4s %s\n", l.Code, l.Name)
			}
			return nil
		},
	}
}

func newSessionCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, inspect, reset and end sessions",
	}

	var input, translation string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its ID",
		Long: `Create a session for documents in --language.

Examples:
  # Hindi documents
  docqactl session create --language Hindi

  # Marathi documents with an English translation
  docqactl session create --language mr --translation en`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := language.Parse(input)
			if err != nil {
				return err
			}
			tr, err := parseOptionalLanguage(translation)
			if err != nil {
				return err
			}
			info, err := opts.client().CreateSession(cmd.Context(), in, tr)
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out, info.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&input, "language", "l", "English", "document language")
	create.Flags().StringVarP(&translation, "translation", "t", "", "translation language")

	show := &cobra.Command{
		Use:   "show <session>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := opts.client().GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Session:     %s\n", info.ID)
			fmt.Fprintf(opts.out, "Language:    %s\n", info.InputLanguage)
			if info.TranslationLanguage != language.None {
				fmt.Fprintf(opts.out, "Translation: %s\n", info.TranslationLanguage)
			}
			fmt.Fprintf(opts.out, "Chunks:      %d\n", info.Chunks)
			fmt.Fprintf(opts.out, "Backend:     %s\n", info.Backend)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset <session>",
		Short: "Remove every document from a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.client().ResetSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Session %s reset\n", args[0])
			return nil
		},
	}

	end := &cobra.Command{
		Use:   "end <session>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().EndSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Session %s ended\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, show, reset, end)
	return cmd
}

func newIngestCmd(opts *options) *cobra.Command {
	var lang string
	var translation bool
	cmd := &cobra.Command{
		Use:   "ingest <session> <manifest|dir>",
		Short: "Upload a document's extracted pages to a session",
		Long: `Upload extracted pages from a YAML or TOML manifest, or from a directory of
<n>.txt files (one per page).

Examples:
  docqactl ingest $SESSION report.yaml
  docqactl ingest $SESSION ./pages --language Hindi
  docqactl ingest $SESSION ./pages-en --language English --translation`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[1])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("language") {
				if doc.Language, err = language.Parse(lang); err != nil {
					return err
				}
			}
			if translation {
				doc.Translation = true
			}
			if doc.Translation && doc.Language == language.None {
				return errors.New("a translation needs a language: set it in the manifest or with --language")
			}

			report, err := opts.client().Ingest(cmd.Context(), args[0], doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Indexed %d chunks from %d pages (%s)\n", report.Chunks, report.Pages, report.Language)
			if len(report.SkippedPages) > 0 {
				fmt.Fprintf(opts.out, "Skipped pages with failed extraction: %v\n", report.SkippedPages)
			}
			if report.FailedBatches > 0 {
				fmt.Fprintf(opts.out, "Warning: %d embedding batches failed and were skipped\n", report.FailedBatches)
			}
			fmt.Fprintf(opts.out, "Session now holds %d chunks\n", report.TotalChunks)
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "language", "l", "", "document language (overrides the manifest)")
	cmd.Flags().BoolVar(&translation, "translation", false, "pages are a translation of the session's document")
	return cmd
}

func newContextCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "context <session> <question...>",
		Short: "Show the passages retrieved for a question",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Context(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if resp.Insufficient {
				fmt.Fprintln(opts.out, language.Message(resp.QuestionLanguage, language.NoResults))
				return nil
			}
			fmt.Fprintf(opts.out, "Question language: %s, passages mostly in %s\n\n", resp.QuestionLanguage, resp.PredominantLanguage)
			for i, s := range resp.Sources {
				fmt.Fprintf(opts.out, "[%d] chunk %d (%s, distance %.4f)\n%s\n\n", i+1, s.ID, s.Language, s.Distance, s.Text)
			}
			return nil
		},
	}
}

func newAskCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <session> <question...>",
		Short: "Answer a question from a session's documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := opts.client().Ask(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out, answer.Text)
			return nil
		},
	}
}

func newChatCmd(opts *options) *cobra.Command {
	var lang, file string
	cmd := &cobra.Command{
		Use:   "chat [session]",
		Short: "Ask questions interactively",
		Long: `Open an interactive chat over a session. Without a session argument a new
session is created in --language, optionally loaded from --file, and ended on exit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			ctx := cmd.Context()

			id, owned := "", false
			if len(args) == 1 {
				id = args[0]
			} else {
				in, err := language.Parse(lang)
				if err != nil {
					return err
				}
				info, err := c.CreateSession(ctx, in, language.None)
				if err != nil {
					return err
				}
				id, owned = info.ID, true
				defer func() {
					endCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					_ = c.EndSession(endCtx, id)
				}()
			}

			if file != "" {
				doc, err := loadDocument(file)
				if err != nil {
					return err
				}
				if _, err := c.Ingest(ctx, id, doc); err != nil {
					return err
				}
			}

			info, err := c.GetSession(ctx, id)
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("session %s · %s · %d chunks", info.ID, info.InputLanguage, info.Chunks)
			if owned {
				summary += " · ends on exit"
			}
			return runChat(ctx, c, id, summary)
		},
	}
	cmd.Flags().StringVarP(&lang, "language", "l", "English", "document language for a new session")
	cmd.Flags().StringVarP(&file, "file", "f", "", "manifest or page directory to ingest before chatting")
	return cmd
}
