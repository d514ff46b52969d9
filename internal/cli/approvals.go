package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
)

// NewPendingCommand lists undecided approvals.
func NewPendingCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List occurrences waiting for approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := root.userID()
			if err != nil {
				return err
			}
			pending, err := root.deps.Processor.ListPending(cmd.Context(), userID)
			if err != nil {
				return commandError("list pending approvals", err)
			}
			if pending == nil {
				pending = []core.PendingApproval{}
			}
			return root.output(cmd).Success(pending, func(w io.Writer) {
				if len(pending) == 0 {
					fmt.Fprintln(w, "Nothing to approve")
					return
				}
				fmt.Fprintln(w, "ID\tRULE\tSCHEDULED")
				for _, p := range pending {
					fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.RuleID, p.ScheduledDate)
				}
			})
		},
	}
}

// NewApproveCommand books the occurrence behind a pending approval.
func NewApproveCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <approval-id>",
		Short: "Approve a pending occurrence and book its transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("approval", args[0])
			if err != nil {
				return err
			}
			tx, err := root.deps.Processor.Approve(cmd.Context(), id)
			if err != nil {
				return commandError("approve", err)
			}
			return root.output(cmd).Success(tx, func(w io.Writer) {
				fmt.Fprintf(w, "Approved: transaction %s on %s for %s\n", tx.ID, tx.Date, core.FormatAmount(tx.Amount))
			})
		},
	}
}

// NewRejectCommand declines a pending approval.
func NewRejectCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <approval-id>",
		Short: "Reject a pending occurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("approval", args[0])
			if err != nil {
				return err
			}
			if err := root.deps.Processor.Reject(cmd.Context(), id); err != nil {
				return commandError("reject", err)
			}
			return root.output(cmd).Success(map[string]any{"id": id, "status": core.ApprovalRejected}, func(w io.Writer) {
				fmt.Fprintf(w, "Rejected %s\n", id)
			})
		},
	}
}
