package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/skypro1111/form-relay-service/internal/config"
	"github.com/skypro1111/form-relay-service/internal/storage"
)

// EntriesOptions holds flags for the entries command.
type EntriesOptions struct {
	*RootOptions
	Format string // "text" | "json"
}

// NewEntriesCommand creates the entries command.
func NewEntriesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntriesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Print stored form submissions, newest first",
		Long: `Print every submission held by the configured store.

Example:
  formrelay entries
  formrelay entries --format json --config configs/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return WrapExitError(ExitCommandError, "invalid format", fmt.Errorf("%q: must be text or json", opts.Format))
			}
			return runEntries(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "output format (json|text)")

	return cmd
}

func runEntries(cmd *cobra.Command, opts *EntriesOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer store.Close()

	log, err := store.Load(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load entries", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		data, err := log.Encode()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode entries", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	writeEntriesText(out, log)
	return nil
}

func writeEntriesText(w io.Writer, log *storage.Log) {
	if log.Len() == 0 {
		fmt.Fprintln(w, "No submissions stored.")
		return
	}

	for _, e := range log.Entries() {
		fmt.Fprintln(w, e.Timestamp)
		for _, f := range e.Fields.Pairs() {
			fmt.Fprintf(w, "  %s: %s\n", f.Key, f.Value)
		}
	}
}
