// Package report renders run reports for the terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/dhyansraj/qa-testdesk/internal/execution"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// Markdown builds the report document. titles maps test case ids to titles; missing ids are
// shown as "(deleted)".
func Markdown(r execution.RunReport, titles map[string]string) string {
	var b strings.Builder
	run := r.Run
	s := r.Summary

	fmt.Fprintf(&b, "# %s\n\n", run.Name)
	if run.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", run.Description)
	}
	fmt.Fprintf(&b, "- **Status:** %s\n", run.RunStatus)
	if run.Environment != "" {
		fmt.Fprintf(&b, "- **Environment:** %s\n", run.Environment)
	}
	fmt.Fprintf(&b, "- **Created:** %s\n\n", run.CreatedAt.Format("2006-01-02 15:04"))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Total | Passed | Failed | Blocked | Skipped | Untested | Pass rate |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d | %.1f%% |\n\n",
		s.Total, s.Passed, s.Failed, s.Blocked, s.Skipped, s.Untested+s.InProgress, s.PassRate)

	if len(r.Results) == 0 {
		b.WriteString("_No test cases in this run._\n")
		return b.String()
	}

	b.WriteString("## Results\n\n")
	b.WriteString("| # | Test case | Result | Executed by | Comments |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for i, res := range r.Results {
		title, ok := titles[res.TestCaseID]
		if !ok {
			title = "(deleted)"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			i+1, cell(title), verdict(res.ResultStatus), cell(res.ExecutedBy), cell(res.Comments))
	}

	if len(s.FailedCaseIDs) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, res := range r.Results {
			if res.ResultStatus != models.ResultFailed {
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n", titles[res.TestCaseID])
			if res.ActualResult != "" {
				fmt.Fprintf(&b, "%s\n\n", res.ActualResult)
			}
			for _, a := range res.Attachments {
				fmt.Fprintf(&b, "- [%s](%s)\n", a.Name, a.URL)
			}
		}
	}
	return b.String()
}

func verdict(st models.ResultStatus) string {
	switch st {
	case models.ResultPassed:
		return "✓ passed"
	case models.ResultFailed:
		return "✗ failed"
	default:
		return string(st)
	}
}

// cell keeps a value on one table row
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// Renderer writes reports to a terminal.
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer; a nil writer means stdout
func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out}
}

// Render formats the report with glamour, falling back to the raw markdown when the
// terminal renderer cannot be built.
func (r *Renderer) Render(rep execution.RunReport, titles map[string]string) error {
	content := Markdown(rep, titles)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		_, err = fmt.Fprintln(r.out, content)
		return err
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		_, err = fmt.Fprintln(r.out, content)
		return err
	}
	_, err = fmt.Fprint(r.out, rendered)
	return err
}
