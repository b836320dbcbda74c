package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/packrelay/internal/codec"
	"github.com/roach88/packrelay/internal/store"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Database string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one stored event",
		Long: `Decompress and print one stored event exactly as it was accepted.

Exit codes:
  0 - Event printed
  1 - No event with that id
  2 - Command error (database not found, corrupt payload, etc.)

Examples:
  packrelay get --db ./relay.db 5c83da77af1dec6d7289834998ad7aafbd9e2191396d75ec3cc27f5a77226f36`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runGet(opts *GetOptions, id string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ev, err := st.GetByID(context.Background(), id)
	if errors.Is(err, store.ErrNotFound) {
		if err := out.Error(CodeNotFound, "event not found", map[string]string{"id": id}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("event not found: %s", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event", err)
	}

	canonical, err := codec.Decode(ev.Payload, ev.RawSize)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode event", err)
	}

	out.VerboseLog("%s: %d bytes stored, %d bytes decoded", ev.ID, ev.CompressedSize, ev.RawSize)

	if opts.Format == "json" {
		return out.Success(json.RawMessage(canonical))
	}
	_, err = fmt.Fprintf(out.Writer, "%s\n", canonical)
	return err
}
