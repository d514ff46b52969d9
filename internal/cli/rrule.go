package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fintrack/internal/recurrence"
)

// NewRRuleCommand prints a rule as an RFC 5545 RRULE.
func NewRRuleCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rrule <rule-id>",
		Short: "Print a rule as an iCalendar RRULE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("rule", args[0])
			if err != nil {
				return err
			}
			rule, err := root.deps.Rules.GetRule(cmd.Context(), id)
			if err != nil {
				return commandError("get rule", err)
			}
			s, err := recurrence.RRuleString(rule)
			if err != nil {
				return commandError("render rrule", err)
			}
			return root.output(cmd).Success(map[string]string{"id": id.String(), "rrule": s}, func(w io.Writer) {
				fmt.Fprintln(w, s)
			})
		},
	}
}
