// Package cli implements the fintrack operator command line and the setup
// helpers shared by the worker binaries.
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Deps are the services commands run against.
type Deps struct {
	Rules     *services.RuleService
	Processor *services.RecurringProcessor
	Location  *time.Location
	Now       func() time.Time
}

// Today is the current calendar day in the configured zone.
func (d *Deps) Today() core.Date {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return core.Today(now(), d.Location)
}

// Opener builds the Deps for a command invocation. The returned func
// releases whatever was opened.
type Opener func(ctx context.Context) (*Deps, func() error, error)

// RootOptions holds global flags and the opened services.
type RootOptions struct {
	Format string
	User   string

	open    Opener
	deps    *Deps
	closeFn func() error
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func (o *RootOptions) userID() (uuid.UUID, error) {
	if o.User == "" {
		return uuid.Nil, NewExitError(ExitCommandError, "--user is required (or set FINTRACK_USER)")
	}
	id, err := uuid.Parse(o.User)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, "invalid --user", err)
	}
	return id, nil
}

// NewRootCommand creates the root command. open is called once before any
// subcommand runs.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "fintrack",
		Short: "fintrack - recurring transactions",
		Long:  "Manage recurrence rules, preview their occurrences and run or review materialization.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			deps, closeFn, err := opts.open(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open backend", err)
			}
			opts.deps, opts.closeFn = deps, closeFn
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.closeFn != nil {
				return opts.closeFn()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.User, "user", os.Getenv("FINTRACK_USER"), "user id (defaults to $FINTRACK_USER)")

	cmd.AddCommand(NewRuleCommand(opts))
	cmd.AddCommand(NewUpcomingCommand(opts))
	cmd.AddCommand(NewProcessCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewApproveCommand(opts))
	cmd.AddCommand(NewRejectCommand(opts))
	cmd.AddCommand(NewRRuleCommand(opts))

	return cmd
}

func parseID(what, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, WrapExitError(ExitCommandError, "invalid "+what+" id", err)
	}
	return id, nil
}

// commandError maps service errors onto exit codes.
func commandError(message string, err error) error {
	return WrapExitError(ExitCommandError, message, err)
}
