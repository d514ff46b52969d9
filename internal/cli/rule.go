package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
)

type ruleAddOptions struct {
	Amount           string
	Description      string
	Kind             string
	Frequency        string
	DayOfWeek        string
	DayOfMonth       int
	Start            string
	End              string
	Category         string
	RequiresApproval bool
}

// NewRuleCommand groups the rule management subcommands.
func NewRuleCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage recurrence rules",
	}
	cmd.AddCommand(newRuleAddCommand(root))
	cmd.AddCommand(newRuleListCommand(root))
	cmd.AddCommand(newRuleToggleCommand(root, "pause", false))
	cmd.AddCommand(newRuleToggleCommand(root, "resume", true))
	cmd.AddCommand(newRuleDeleteCommand(root))
	return cmd
}

func newRuleAddCommand(root *RootOptions) *cobra.Command {
	opts := &ruleAddOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a recurrence rule",
		Example: `  fintrack rule add --amount 1200 --description Rent --frequency monthly --day-of-month 1
  fintrack rule add --amount 9.99 --frequency weekly --day-of-week friday --requires-approval`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := root.userID()
			if err != nil {
				return err
			}
			rule, err := opts.build(userID, root.deps.Today())
			if err != nil {
				return err
			}
			created, err := root.deps.Rules.CreateRule(cmd.Context(), rule)
			if err != nil {
				return commandError("create rule", err)
			}
			return root.output(cmd).Success(created, func(w io.Writer) {
				fmt.Fprintf(w, "Created rule %s\n", created.ID)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Amount, "amount", "", "positive amount, dot or comma decimals")
	f.StringVar(&opts.Description, "description", "", "description copied to every transaction")
	f.StringVar(&opts.Kind, "kind", string(core.KindExpense), "income or expense")
	f.StringVar(&opts.Frequency, "frequency", string(core.FrequencyMonthly), "daily, weekly or monthly")
	f.StringVar(&opts.DayOfWeek, "day-of-week", "", "weekday for weekly rules (0-6 or a name, Sunday first)")
	f.IntVar(&opts.DayOfMonth, "day-of-month", 0, "day for monthly rules (1-31, clamped to short months)")
	f.StringVar(&opts.Start, "start", "", "first date (YYYY-MM-DD, default today)")
	f.StringVar(&opts.End, "end", "", "last date, inclusive (YYYY-MM-DD)")
	f.StringVar(&opts.Category, "category", "", "category id")
	f.BoolVar(&opts.RequiresApproval, "requires-approval", false, "queue occurrences for approval instead of booking them")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (o *ruleAddOptions) build(userID uuid.UUID, today core.Date) (core.RecurrenceRule, error) {
	amount, err := core.ParseAmount(o.Amount)
	if err != nil {
		return core.RecurrenceRule{}, WrapExitError(ExitCommandError, "invalid --amount", err)
	}
	rule := core.RecurrenceRule{
		UserID:           userID,
		Amount:           amount,
		Description:      o.Description,
		Kind:             core.Kind(strings.ToLower(o.Kind)),
		Frequency:        core.Frequency(strings.ToLower(o.Frequency)),
		RequiresApproval: o.RequiresApproval,
		IsActive:         true,
		StartDate:        today,
	}
	if o.DayOfWeek != "" {
		dow, err := parseWeekday(o.DayOfWeek)
		if err != nil {
			return core.RecurrenceRule{}, err
		}
		rule.DayOfWeek = core.IntPtr(dow)
	}
	if o.DayOfMonth != 0 {
		rule.DayOfMonth = core.IntPtr(o.DayOfMonth)
	}
	if o.Start != "" {
		if rule.StartDate, err = core.ParseDate(o.Start); err != nil {
			return core.RecurrenceRule{}, WrapExitError(ExitCommandError, "invalid --start", err)
		}
	}
	if o.End != "" {
		if rule.EndDate, err = core.ParseDate(o.End); err != nil {
			return core.RecurrenceRule{}, WrapExitError(ExitCommandError, "invalid --end", err)
		}
	}
	if o.Category != "" {
		id, err := parseID("category", o.Category)
		if err != nil {
			return core.RecurrenceRule{}, err
		}
		rule.CategoryID = uuid.NullUUID{UUID: id, Valid: true}
	}
	return rule, nil
}

func parseWeekday(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return int(d), nil
		}
	}
	return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid --day-of-week %q", s))
}

func newRuleListCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the rules of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := root.userID()
			if err != nil {
				return err
			}
			rules, err := root.deps.Rules.ListRules(cmd.Context(), userID)
			if err != nil {
				return commandError("list rules", err)
			}
			return root.output(cmd).Success(rules, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tFREQUENCY\tSCHEDULE\tAMOUNT\tKIND\tACTIVE\tLAST GENERATED\tDESCRIPTION")
				for _, r := range rules {
					last := "-"
					if !r.LastGeneratedDate.IsZero() {
						last = r.LastGeneratedDate.String()
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
						r.ID, r.Frequency, schedule(r), core.FormatAmount(r.Amount), r.Kind, r.IsActive, last, r.Description)
				}
			})
		},
	}
}

func schedule(r core.RecurrenceRule) string {
	switch {
	case r.Frequency == core.FrequencyWeekly && r.DayOfWeek != nil:
		return time.Weekday(*r.DayOfWeek).String()
	case r.Frequency == core.FrequencyMonthly && r.DayOfMonth != nil:
		return "day " + strconv.Itoa(*r.DayOfMonth)
	default:
		return "every day"
	}
}

func newRuleToggleCommand(root *RootOptions, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("rule", args[0])
			if err != nil {
				return err
			}
			if err := root.deps.Rules.SetActive(cmd.Context(), id, active); err != nil {
				return commandError(use+" rule", err)
			}
			return root.output(cmd).Success(map[string]any{"id": id, "is_active": active}, func(w io.Writer) {
				fmt.Fprintf(w, "Rule %s active=%t\n", id, active)
			})
		},
	}
}

func newRuleDeleteCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule, keeping its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("rule", args[0])
			if err != nil {
				return err
			}
			if err := root.deps.Rules.DeleteRule(cmd.Context(), id); err != nil {
				return commandError("delete rule", err)
			}
			return root.output(cmd).Success(map[string]any{"id": id, "deleted": true}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted rule %s\n", id)
			})
		},
	}
}
