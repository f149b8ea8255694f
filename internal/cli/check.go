package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/irb-determination-server/internal/domain"
)

// ErrIssuesFound is returned by check when error-severity issues exist, so
// the process exits non-zero.
var ErrIssuesFound = errors.New("consistency errors found")

type checkOutput struct {
	Issues  []domain.ConsistencyIssue `json:"issues"`
	Summary domain.IssueSummary       `json:"summary"`
}

// NewCheckCommand creates the check subcommand
func NewCheckCommand(opts *globalOptions) *cobra.Command {
	var (
		failOnWarning bool
		severity      string
	)

	cmd := &cobra.Command{
		Use:   "check <answers-file>",
		Short: "Check protocol answers for contradictions and gaps",
		Long: `Run the consistency rules against an answer file and list every
contradiction, missing detail and policy threshold violation.

Exit code: 0 if no errors were found, 1 otherwise`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch domain.Severity(severity) {
			case "", domain.SeverityError, domain.SeverityWarning, domain.SeverityInfo:
			default:
				return fmt.Errorf("unsupported severity %q (use error, warning or info)", severity)
			}

			snapshot, err := readSnapshot(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			issues := opts.newService(cmd.ErrOrStderr()).Check(cmd.Context(), snapshot)
			if issues == nil {
				issues = []domain.ConsistencyIssue{}
			}
			summary := domain.Summarize(issues)

			shown := issues
			if severity != "" {
				shown = domain.FilterBySeverity(issues, domain.Severity(severity))
			}

			if opts.format != formatText {
				if err := writeStructured(cmd.OutOrStdout(), opts.format, checkOutput{Issues: shown, Summary: summary}); err != nil {
					return err
				}
			} else {
				printIssues(cmd.OutOrStdout(), shown, summary)
			}

			if summary.Errors > 0 || (failOnWarning && summary.Warnings > 0) {
				return fmt.Errorf("%w: %d errors, %d warnings", ErrIssuesFound, summary.Errors, summary.Warnings)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&severity, "severity", "", "only list issues of this severity: error, warning or info")
	cmd.Flags().BoolVar(&failOnWarning, "fail-on-warning", false, "also exit non-zero when warnings are found")
	return cmd
}
