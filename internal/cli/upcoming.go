package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/export"
)

type upcomingOptions struct {
	Count int
	From  string
	XLSX  string
}

// NewUpcomingCommand previews the next occurrences of a rule.
func NewUpcomingCommand(root *RootOptions) *cobra.Command {
	opts := &upcomingOptions{}
	cmd := &cobra.Command{
		Use:   "upcoming <rule-id>",
		Short: "Preview the next occurrences of a rule",
		Long:  "Preview the next occurrences of a rule without materializing anything. --xlsx also writes them to a workbook.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("rule", args[0])
			if err != nil {
				return err
			}
			if opts.Count < 1 {
				return NewExitError(ExitCommandError, "-n must be at least 1")
			}
			from := root.deps.Today()
			if opts.From != "" {
				if from, err = core.ParseDate(opts.From); err != nil {
					return WrapExitError(ExitCommandError, "invalid --from", err)
				}
			}

			occurrences, err := root.deps.Processor.UpcomingOccurrences(cmd.Context(), id, from, opts.Count)
			if err != nil {
				return commandError("project occurrences", err)
			}
			if opts.XLSX != "" {
				if err := writeWorkbook(opts.XLSX, occurrences); err != nil {
					return WrapExitError(ExitFailure, "write workbook", err)
				}
			}

			return root.output(cmd).Success(occurrences, func(w io.Writer) {
				if len(occurrences) == 0 {
					fmt.Fprintln(w, "No upcoming occurrences")
					return
				}
				fmt.Fprintln(w, "DATE\tAMOUNT\tKIND\tAPPROVAL\tDESCRIPTION")
				for _, o := range occurrences {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
						o.Date, core.FormatAmount(o.Amount), o.Kind, o.RequiresApproval, o.Description)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 5, "number of occurrences")
	cmd.Flags().StringVar(&opts.From, "from", "", "project from this date instead of today (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.XLSX, "xlsx", "", "also write the occurrences to this .xlsx file")
	return cmd
}

func writeWorkbook(path string, occurrences []core.Occurrence) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return export.WriteUpcomingXLSX(f, occurrences)
}
