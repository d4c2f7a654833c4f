package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

const (
	serviceName    = "form-relay-service"
	serviceVersion = "1.0.0"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // runtime failure
	ExitCommandError = 2 // bad configuration, unusable store, socket bind failure
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the formrelay CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "formrelay",
		Short: "Contact form server with a UDP relay to a JSON log",
		Long: `formrelay serves a small static site with a contact form. Every form post
is forwarded as a UDP datagram to a relay listener in the same process, which
appends the decoded fields to a JSON log keyed by receive time.`,
		Version: serviceVersion,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML configuration (built-in defaults when empty)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewEntriesCommand(opts))

	return cmd
}
