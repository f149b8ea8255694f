// Package cli implements irbctl, a command-line front end to the
// determination engine for answer files on disk.
package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irb-determination-server/internal/service"
)

// Version is injected at build time via -ldflags
var Version = "dev"

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type globalOptions struct {
	format  string
	noColor bool
	verbose bool
}

// NewRootCommand creates and returns the root cobra command for irbctl
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "irbctl",
		Short: "Determine the IRB review type for protocol answers",
		Long: `irbctl runs the rules-based IRB determination engine against a
protocol's wizard answers stored as JSON or YAML.

It classifies the protocol (not research, not human subjects, exempt,
expedited or full board), checks the answers for contradictions, and
lists the rule catalogs the engine applies.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case formatText, formatJSON, formatYAML:
			default:
				return fmt.Errorf("unsupported format %q (use text, json or yaml)", opts.format)
			}
			if opts.noColor {
				color.NoColor = true
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", formatText, "output format: text, json or yaml")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(NewDetermineCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewAssessCommand(opts))
	cmd.AddCommand(NewRuleCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewReviewTypesCommand(opts))
	cmd.AddCommand(NewMigrateCommand())

	return cmd
}

// newService builds an engine-only assessment service. Logs go to the
// command's error stream so structured output stays parseable.
func (o *globalOptions) newService(errOut io.Writer) *service.AssessmentService {
	logger := logrus.New()
	logger.SetOutput(errOut)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if o.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return service.NewAssessmentService(logger)
}
