package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/irb-determination-server/internal/domain"
)

// writeStructured renders v as JSON or YAML. YAML goes through the JSON
// encoding first so both formats share the camelCase wire names.
func writeStructured(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if format == formatJSON {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

func reviewTypeColor(t domain.ReviewType) *color.Color {
	switch t {
	case domain.ReviewNotResearch, domain.ReviewNotHumanSubjects:
		return color.New(color.FgHiBlack, color.Bold)
	case domain.ReviewExempt:
		return color.New(color.FgGreen, color.Bold)
	case domain.ReviewExpedited:
		return color.New(color.FgYellow, color.Bold)
	case domain.ReviewFullBoard:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgMagenta, color.Bold)
	}
}

func severityColor(s domain.Severity) *color.Color {
	switch s {
	case domain.SeverityError:
		return color.New(color.FgRed)
	case domain.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func printDetermination(w io.Writer, result *domain.DeterminationResult) {
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)
	info := result.Info()

	cyan.Fprintf(w, "\n=== IRB Determination ===\n\n")
	fmt.Fprintf(w, "Review type: ")
	reviewTypeColor(result.Type).Fprintf(w, "%s", info.Label)
	gray.Fprintf(w, " (%s)\n", result.Type)
	if result.CategoryLabel != "" {
		fmt.Fprintf(w, "Category:    %s\n", result.CategoryLabel)
	}
	fmt.Fprintf(w, "Confidence:  %.0f%%\n", result.Confidence*100)
	fmt.Fprintf(w, "Timeline:    %s\n", info.TypicalTimeline)

	if len(result.Reasons) > 0 {
		cyan.Fprintf(w, "\nReasons\n")
		for _, reason := range result.Reasons {
			fmt.Fprintf(w, "  - %s\n", reason)
		}
	}

	if len(result.Flags) > 0 {
		cyan.Fprintf(w, "\nFlags\n")
		for _, flag := range result.Flags {
			fmt.Fprintf(w, "  ")
			severityColor(flag.Severity).Fprintf(w, "[%s]", flag.Severity)
			fmt.Fprintf(w, " %s\n", flag.Message)
		}
	}

	if len(result.Recommendations) > 0 {
		cyan.Fprintf(w, "\nRecommendations\n")
		for _, rec := range result.Recommendations {
			fmt.Fprintf(w, "  - %s ", rec.Title)
			gray.Fprintf(w, "(%s)\n", rec.Priority)
			if rec.Body != "" {
				fmt.Fprintf(w, "    %s\n", rec.Body)
			}
		}
	}
	fmt.Fprintln(w)
}

func printIssues(w io.Writer, issues []domain.ConsistencyIssue, summary domain.IssueSummary) {
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintf(w, "\n=== Consistency Check ===\n\n")
	if summary.Total() == 0 {
		color.New(color.FgGreen).Fprintf(w, "No issues found\n\n")
		return
	}

	fmt.Fprintf(w, "%d errors, %d warnings, %d info\n\n", summary.Errors, summary.Warnings, summary.Infos)
	for _, issue := range issues {
		severityColor(issue.Severity).Fprintf(w, "%-8s", strings.ToUpper(string(issue.Severity)))
		fmt.Fprintf(w, " %s ", issue.Title)
		gray.Fprintf(w, "[%s, %s.%s]\n", issue.RuleID, issue.Section, issue.Field)
		fmt.Fprintf(w, "         %s\n", issue.Message)
	}
	fmt.Fprintln(w)
}
