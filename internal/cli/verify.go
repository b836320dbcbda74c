package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/packrelay/internal/codec"
	"github.com/roach88/packrelay/internal/event"
	"github.com/roach88/packrelay/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
	SkipSig  bool
}

// VerifyProblem is one row that failed a check.
type VerifyProblem struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Checked  int             `json:"checked"`
	Failed   int             `json:"failed"`
	Problems []VerifyProblem `json:"problems"`
}

// OK reports whether every row passed.
func (r VerifyResult) OK() bool {
	return r.Failed == 0
}

// RenderText prints a summary and one line per problem.
func (r VerifyResult) RenderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Verify Summary: %d event(s) checked\n", r.Checked)
	for _, p := range r.Problems {
		fmt.Fprintf(w, "✗ %s: %s\n", p.ID, p.Reason)
	}
	if r.OK() {
		fmt.Fprintln(w, "✓ All events round-trip")
		return
	}
	fmt.Fprintf(w, "✗ %d event(s) failed verification\n", r.Failed)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every stored event round-trips",
		Long: `Walk every stored row and check that its payload decompresses to the
recorded size, parses, re-serializes to the same bytes, hashes to its id,
agrees with its indexed columns, and carries a valid signature.

Exit codes:
  0 - Every row passed
  1 - One or more rows failed
  2 - Command error (database not found, etc.)

Examples:
  packrelay verify --db ./relay.db
  packrelay verify --db ./relay.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.SkipSig, "skip-signatures", false, "skip signature verification")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	result := VerifyResult{Problems: []VerifyProblem{}}
	err = st.Scan(context.Background(), func(row store.StoredEvent) error {
		result.Checked++
		if reason := verifyRow(row, !opts.SkipSig); reason != "" {
			result.Failed++
			result.Problems = append(result.Problems, VerifyProblem{ID: row.ID, Reason: reason})
			return nil
		}
		out.VerboseLog("ok %s (%d -> %d bytes)", row.ID, row.RawSize, row.CompressedSize)
		return nil
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to scan events", err)
	}

	if result.OK() {
		return out.Success(result)
	}
	if err := out.Failure(CodeVerify, "verification failed", result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d event(s) failed verification", result.Failed))
}

// verifyRow returns why row is inconsistent, or "" if it is sound.
func verifyRow(row store.StoredEvent, checkSig bool) string {
	if row.CompressedSize != len(row.Payload) {
		return fmt.Sprintf("compressed_size %d but payload is %d bytes", row.CompressedSize, len(row.Payload))
	}

	canonical, err := codec.Decode(row.Payload, row.RawSize)
	if err != nil {
		return err.Error()
	}

	ev, err := event.Parse(canonical)
	if err != nil {
		return err.Error()
	}

	if !bytes.Equal(event.Canonical(ev), canonical) {
		return "stored bytes are not the canonical serialization"
	}
	if ev.ID != row.ID {
		return fmt.Sprintf("payload id %s does not match row id", ev.ID)
	}
	if computed := event.ComputeID(ev); computed != row.ID {
		return fmt.Sprintf("content hashes to %s", computed)
	}
	if ev.PubKey != row.PubKey || ev.Kind != row.Kind || ev.CreatedAt != row.CreatedAt {
		return "indexed columns disagree with payload"
	}

	if checkSig {
		if err := event.Validate(ev); err != nil {
			return err.Error()
		}
	}
	return ""
}
