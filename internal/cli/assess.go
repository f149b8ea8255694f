package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/irb-determination-server/internal/service"
)

// NewAssessCommand creates the assess subcommand
func NewAssessCommand(opts *globalOptions) *cobra.Command {
	var submissionID string

	cmd := &cobra.Command{
		Use:   "assess <answers-file>",
		Short: "Run determination and consistency checking together",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := readSnapshot(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			assessment, err := opts.newService(cmd.ErrOrStderr()).AssessSubmission(cmd.Context(), snapshot, service.AssessParams{
				SubmissionID: submissionID,
			})
			if err != nil {
				return err
			}

			if opts.format != formatText {
				return writeStructured(cmd.OutOrStdout(), opts.format, assessment)
			}

			out := cmd.OutOrStdout()
			printDetermination(out, assessment.Determination)
			printIssues(out, assessment.Issues, assessment.Summary)
			color.New(color.FgHiBlack).Fprintf(out, "snapshot %s evaluated %s\n",
				shortHash(assessment.SnapshotHash), assessment.EvaluatedAt.Format("2006-01-02"))
			return nil
		},
	}

	cmd.Flags().StringVar(&submissionID, "submission-id", "", "submission identifier to attach to engine logs")
	return cmd
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
