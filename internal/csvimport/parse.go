// Package csvimport reads test cases from CSV exports and creates them, together with any
// suites they name, in a project.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// StepSeparator splits a steps_N cell into action and expected result
const StepSeparator = "|"

// Row is one parsed test case with the suite it should land in
type Row struct {
	Line      int             `json:"line"`
	Case      models.TestCase `json:"test_case"`
	SuiteName string          `json:"suite_name,omitempty"`
}

// RowError reports a rejected line
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Message) }

// Result is the outcome of Parse
type Result struct {
	Cases  []Row      `json:"test_cases"`
	Suites []string   `json:"suites"` // distinct suite names, first-seen order
	Errors []RowError `json:"errors"`
}

type stepColumn struct {
	n     int
	index int
}

type columns struct {
	index map[string]int
	steps []stepColumn
}

func (c columns) get(record []string, name string) string {
	i, ok := c.index[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// Parse reads a CSV with a header row. Bad rows are collected in Result.Errors; only an
// unreadable file or a missing title column fails the whole parse.
func Parse(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("empty csv: %w", apperr.ErrInvalidInput)
	}
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %v: %w", err, apperr.ErrInvalidInput)
	}
	cols := parseHeader(header)
	if _, ok := cols.index["title"]; !ok {
		return Result{}, fmt.Errorf("csv has no title column: %w", apperr.ErrInvalidInput)
	}

	var res Result
	seenSuite := map[string]bool{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, Message: err.Error()})
			continue
		}
		if blank(record) {
			continue
		}

		row, rowErr := parseRow(cols, record)
		if rowErr != "" {
			res.Errors = append(res.Errors, RowError{Line: line, Message: rowErr})
			continue
		}
		row.Line = line
		res.Cases = append(res.Cases, row)
		if row.SuiteName != "" && !seenSuite[row.SuiteName] {
			seenSuite[row.SuiteName] = true
			res.Suites = append(res.Suites, row.SuiteName)
		}
	}
	return res, nil
}

func parseHeader(header []string) columns {
	cols := columns{index: make(map[string]int, len(header))}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if n, ok := stepNumber(name); ok {
			cols.steps = append(cols.steps, stepColumn{n: n, index: i})
			continue
		}
		if _, dup := cols.index[name]; !dup {
			cols.index[name] = i
		}
	}
	sort.Slice(cols.steps, func(i, j int) bool { return cols.steps[i].n < cols.steps[j].n })
	return cols
}

// stepNumber recognises steps_N and step_N headers
func stepNumber(name string) (int, bool) {
	for _, prefix := range []string{"steps_", "step_"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			n, err := strconv.Atoi(rest)
			return n, err == nil && n > 0
		}
	}
	return 0, false
}

func parseRow(cols columns, record []string) (Row, string) {
	tc := models.TestCase{
		Title:         cols.get(record, "title"),
		Description:   cols.get(record, "description"),
		TestType:      models.TestType(strings.ToLower(cols.get(record, "test_type"))),
		Priority:      models.Priority(strings.ToLower(cols.get(record, "priority"))),
		Status:        models.CaseStatus(strings.ToLower(cols.get(record, "status"))),
		Preconditions: cols.get(record, "preconditions"),
		Tags:          splitTags(cols.get(record, "tags")),
		Steps:         []models.Step{},
	}
	if tc.Title == "" {
		return Row{}, "title is required"
	}
	tc.ApplyDefaults()
	if !tc.TestType.Valid() {
		return Row{}, fmt.Sprintf("invalid test_type %q", tc.TestType)
	}
	if !tc.Priority.Valid() {
		return Row{}, fmt.Sprintf("invalid priority %q", tc.Priority)
	}
	if !tc.Status.Valid() {
		return Row{}, fmt.Sprintf("invalid status %q", tc.Status)
	}

	for _, sc := range cols.steps {
		if sc.index >= len(record) {
			continue
		}
		if step, ok := parseStep(record[sc.index]); ok {
			tc.Steps = append(tc.Steps, step)
		}
	}
	return Row{Case: tc, SuiteName: cols.get(record, "suite_name")}, ""
}

func parseStep(cell string) (models.Step, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return models.Step{}, false
	}
	action, expected, _ := strings.Cut(cell, StepSeparator)
	return models.Step{Action: strings.TrimSpace(action), ExpectedResult: strings.TrimSpace(expected)}, true
}

func splitTags(cell string) []string {
	tags := []string{}
	for _, t := range strings.Split(cell, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
