package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type processResult struct {
	RuleID        uuid.UUID        `json:"rule_id"`
	UserID        uuid.UUID        `json:"user_id"`
	Date          core.Date        `json:"date"`
	Outcome       services.Outcome `json:"outcome"`
	TransactionID *uuid.UUID       `json:"transaction_id,omitempty"`
	ApprovalID    *uuid.UUID       `json:"approval_id,omitempty"`
	Error         string           `json:"error,omitempty"`
}

type processReport struct {
	Date           core.Date       `json:"date"`
	Checked        int             `json:"checked"`
	Due            int             `json:"due"`
	Created        int             `json:"created"`
	PendingCreated int             `json:"pending_created"`
	Duplicates     int             `json:"duplicates"`
	Failed         int             `json:"failed"`
	SkippedUsers   int             `json:"skipped_users"`
	Results        []processResult `json:"results"`
}

func newProcessReport(r services.TickReport) processReport {
	out := processReport{
		Date:           r.Date,
		Checked:        r.Checked,
		Due:            r.Due,
		Created:        r.Created,
		PendingCreated: r.PendingCreated,
		Duplicates:     r.Duplicates,
		Failed:         r.Failed,
		SkippedUsers:   r.SkippedUsers,
		Results:        make([]processResult, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		pr := processResult{RuleID: res.RuleID, UserID: res.UserID, Date: res.Date, Outcome: res.Outcome}
		if res.TransactionID != uuid.Nil {
			id := res.TransactionID
			pr.TransactionID = &id
		}
		if res.ApprovalID != uuid.Nil {
			id := res.ApprovalID
			pr.ApprovalID = &id
		}
		if res.Err != nil {
			pr.Error = res.Err.Error()
		}
		out.Results = append(out.Results, pr)
	}
	return out
}

// NewProcessCommand runs one materialization tick.
func NewProcessCommand(root *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Materialize the rules due today",
		Long: `Run one materialization tick. With --user only that user's rules are
processed, otherwise every user with an active rule. Running it twice on the
same day is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			today := root.deps.Today()
			if date != "" {
				var err error
				if today, err = core.ParseDate(date); err != nil {
					return WrapExitError(ExitCommandError, "invalid --date", err)
				}
			}

			var (
				report services.TickReport
				err    error
			)
			if root.User != "" {
				userID, uerr := root.userID()
				if uerr != nil {
					return uerr
				}
				report, err = root.deps.Processor.ProcessUser(cmd.Context(), userID, today)
			} else {
				report, err = root.deps.Processor.ProcessAll(cmd.Context(), today)
			}

			out := newProcessReport(report)
			if werr := root.output(cmd).Success(out, func(w io.Writer) {
				fmt.Fprintf(w, "Date\t%s\n", out.Date)
				fmt.Fprintf(w, "Checked\t%d\n", out.Checked)
				fmt.Fprintf(w, "Due\t%d\n", out.Due)
				fmt.Fprintf(w, "Created\t%d\n", out.Created)
				fmt.Fprintf(w, "Pending approvals\t%d\n", out.PendingCreated)
				fmt.Fprintf(w, "Duplicates\t%d\n", out.Duplicates)
				fmt.Fprintf(w, "Failed\t%d\n", out.Failed)
				if out.SkippedUsers > 0 {
					fmt.Fprintf(w, "Skipped users\t%d\n", out.SkippedUsers)
				}
				for _, r := range out.Results {
					if r.Error != "" {
						fmt.Fprintf(w, "  %s\t%s\n", r.RuleID, r.Error)
					}
				}
			}); werr != nil {
				return werr
			}
			if err != nil {
				return WrapExitError(ExitFailure, "processing finished with errors", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "process as of this date (YYYY-MM-DD, default today)")
	return cmd
}
