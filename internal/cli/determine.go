package cli

import (
	"github.com/spf13/cobra"
)

// NewDetermineCommand creates the determine subcommand
func NewDetermineCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "determine <answers-file>",
		Short: "Classify a protocol into an IRB review type",
		Long: `Classify the answers in a JSON or YAML file (or "-" for JSON on stdin)
and print the review type with its reasons, confidence, flags and
recommended next steps.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := readSnapshot(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			result := opts.newService(cmd.ErrOrStderr()).Classify(cmd.Context(), snapshot)
			if opts.format != formatText {
				return writeStructured(cmd.OutOrStdout(), opts.format, result)
			}
			printDetermination(cmd.OutOrStdout(), result)
			return nil
		},
	}
}
