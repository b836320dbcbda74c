package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/packrelay/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
}

// StatsResult is the stats command output.
type StatsResult struct {
	Events           int64   `json:"events"`
	RawBytes         int64   `json:"raw_bytes"`
	CompressedBytes  int64   `json:"compressed_bytes"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// RenderText prints the totals with digit grouping.
func (r StatsResult) RenderText(w io.Writer, verbose bool) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "Events:            %d\n", r.Events)
	p.Fprintf(w, "Raw bytes:         %d\n", r.RawBytes)
	p.Fprintf(w, "Compressed bytes:  %d\n", r.CompressedBytes)
	p.Fprintf(w, "Compression ratio: %.2fx\n", r.CompressionRatio)
	if verbose && r.Events > 0 {
		p.Fprintf(w, "Average raw size:  %d bytes\n", r.RawBytes/r.Events)
		p.Fprintf(w, "Average stored:    %d bytes\n", r.CompressedBytes/r.Events)
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print storage totals",
		Long: `Print the stored event count, raw and compressed byte totals, and the
resulting compression ratio.

Examples:
  packrelay stats --db ./relay.db
  packrelay stats --db ./relay.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read stats", err)
	}

	return newFormatter(opts.RootOptions, cmd).Success(StatsResult{
		Events:           stats.Events,
		RawBytes:         stats.RawBytes,
		CompressedBytes:  stats.CompressedBytes,
		CompressionRatio: stats.Ratio(),
	})
}

// openExisting opens a database that must already exist. store.Open would
// silently create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path), err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
