package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/packrelay/internal/engine"
	"github.com/roach88/packrelay/internal/event"
	"github.com/roach88/packrelay/internal/store"
)

// maxImportLine bounds one JSONL record.
const maxImportLine = 4 * 1024 * 1024

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
}

// ImportRejection is one line that was not stored.
type ImportRejection struct {
	Line   int    `json:"line"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult holds per-outcome counts.
type ImportResult struct {
	Lines      int               `json:"lines"`
	Stored     int               `json:"stored"`
	Duplicate  int               `json:"duplicate"`
	Rejected   int               `json:"rejected"`
	Rejections []ImportRejection `json:"rejections"`
}

// RenderText prints the counts and, verbosely, every rejection.
func (r ImportResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Imported %d line(s): %d stored, %d duplicate, %d rejected\n",
		r.Lines, r.Stored, r.Duplicate, r.Rejected)
	for i, rej := range r.Rejections {
		if !verbose && i == 10 {
			fmt.Fprintf(w, "  ... %d more (use --verbose)\n", len(r.Rejections)-i)
			break
		}
		fmt.Fprintf(w, "  line %d: %s\n", rej.Line, rej.Reason)
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Ingest newline-delimited events",
		Long: `Read one event per line and publish each through the same validate,
compress and store pipeline the relay uses. Use "-" to read stdin.

Exit codes:
  0 - Every line was stored or already present
  1 - One or more lines were rejected
  2 - Command error (unreadable file, database cannot be opened, etc.)

Examples:
  packrelay import --db ./relay.db dump.jsonl
  cat dump.jsonl | packrelay import --db ./relay.db -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer f.Close()
		in = f
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	eng := engine.New(st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	result, scanErr := importLines(ctx, eng, in, out)

	eng.Stop()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "ingest loop failed", err)
	}
	if scanErr != nil {
		return WrapExitError(ExitCommandError, "failed to read input", scanErr)
	}

	if result.Rejected == 0 {
		return out.Success(result)
	}
	if err := out.Failure(CodeImport, "some events were rejected", result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d line(s) rejected", result.Rejected))
}

// importLines submits every non-blank line in order.
func importLines(ctx context.Context, eng *engine.Engine, in io.Reader, out *OutputFormatter) (ImportResult, error) {
	result := ImportResult{Rejections: []ImportRejection{}}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		result.Lines++

		ev, err := event.Parse(data)
		if err != nil {
			result.Rejected++
			result.Rejections = append(result.Rejections, ImportRejection{Line: line, Reason: "invalid: " + err.Error()})
			continue
		}

		res := eng.Submit(ctx, ev)
		switch res.Outcome {
		case engine.OutcomeStored:
			result.Stored++
			out.VerboseLog("line %d: stored %s", line, res.ID)
		case engine.OutcomeDuplicate:
			result.Duplicate++
			out.VerboseLog("line %d: duplicate %s", line, res.ID)
		default:
			result.Rejected++
			result.Rejections = append(result.Rejections, ImportRejection{Line: line, ID: res.ID, Reason: res.Reason()})
		}
	}

	return result, scanner.Err()
}
