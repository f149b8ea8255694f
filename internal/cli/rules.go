package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/irb-determination-server/internal/domain"
	"github.com/irb-determination-server/internal/service"
)

type rulesOutput struct {
	DeterminationRules []domain.RuleInfo             `json:"determinationRules"`
	ConsistencyRules   []service.ConsistencyRuleInfo `json:"consistencyRules,omitempty"`
}

// NewRuleCommand creates the rule subcommand
func NewRuleCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rule <rule-code> <answers-file>",
		Short: "Evaluate a single determination rule",
		Long: `Evaluate one determination rule, such as FB-PRISONERS or EX-2, in
isolation and report whether it fires for the given answers.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := readSnapshot(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}

			code := strings.ToUpper(strings.TrimSpace(args[0]))
			eval, err := opts.newService(cmd.ErrOrStderr()).EvaluateRule(cmd.Context(), code, snapshot)
			if err != nil {
				return err
			}

			if opts.format != formatText {
				return writeStructured(cmd.OutOrStdout(), opts.format, eval)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s: ", eval.Code, eval.Name)
			if eval.Fired {
				reviewTypeColor(eval.Tier).Fprintf(out, "FIRED")
				fmt.Fprintf(out, " -> %s\n", eval.Tier)
			} else {
				color.New(color.FgHiBlack).Fprintf(out, "not fired\n")
			}
			if eval.Reason != "" {
				fmt.Fprintf(out, "  %s\n", eval.Reason)
			}
			return nil
		},
	}
}

// NewRulesCommand creates the rules subcommand
func NewRulesCommand(opts *globalOptions) *cobra.Command {
	var includeConsistency bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the determination rule catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := opts.newService(cmd.ErrOrStderr())
			out := rulesOutput{DeterminationRules: svc.Rules()}
			if includeConsistency {
				out.ConsistencyRules = svc.ConsistencyRules()
			}

			if opts.format != formatText {
				return writeStructured(cmd.OutOrStdout(), opts.format, out)
			}

			w := cmd.OutOrStdout()
			cyan := color.New(color.FgCyan, color.Bold)
			cyan.Fprintf(w, "Determination rules (%d)\n", len(out.DeterminationRules))
			for _, rule := range out.DeterminationRules {
				fmt.Fprintf(w, "  %-16s ", rule.Code)
				reviewTypeColor(rule.Tier).Fprintf(w, "%-18s", rule.Tier)
				fmt.Fprintf(w, " %s\n", rule.Name)
			}
			if includeConsistency {
				cyan.Fprintf(w, "\nConsistency rules (%d)\n", len(out.ConsistencyRules))
				for _, rule := range out.ConsistencyRules {
					fmt.Fprintf(w, "  %-28s %-12s %s.%s\n", rule.ID, rule.Class, rule.Section, rule.Field)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeConsistency, "consistency", false, "also list the consistency rules")
	return cmd
}

// NewReviewTypesCommand creates the review-types subcommand
func NewReviewTypesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "review-types",
		Short: "List the review types and their oversight levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]domain.ReviewTypeInfo, 0, len(domain.ReviewTypes()))
			for _, t := range domain.ReviewTypes() {
				infos = append(infos, t.Info())
			}

			if opts.format != formatText {
				return writeStructured(cmd.OutOrStdout(), opts.format, infos)
			}

			w := cmd.OutOrStdout()
			for _, info := range infos {
				reviewTypeColor(info.Type).Fprintf(w, "%-20s", info.Type)
				fmt.Fprintf(w, " level %d  %-24s %s\n", info.OversightLevel, info.Label, info.TypicalTimeline)
			}
			return nil
		},
	}
}
