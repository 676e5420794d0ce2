// Package models contains the data structures shared by the tree, run and cache layers.
// Field names follow the column names of the relational store.
package models

import (
	"time"
)

// UncategorizedID is the id of the synthetic tree node holding suite-less test cases.
// It is never persisted as a suite row.
const UncategorizedID = "root"

// TestType is the kind of system a test case exercises
type TestType string

const (
	TestTypeWeb    TestType = "web"
	TestTypeMobile TestType = "mobile"
	TestTypeAPI    TestType = "api"
)

// Valid reports whether t is a known test type
func (t TestType) Valid() bool {
	return t == TestTypeWeb || t == TestTypeMobile || t == TestTypeAPI
}

// Priority of a test case
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// CaseStatus is the authoring lifecycle of a test case
type CaseStatus string

const (
	CaseStatusDraft      CaseStatus = "draft"
	CaseStatusReady      CaseStatus = "ready"
	CaseStatusDeprecated CaseStatus = "deprecated"
)

// Valid reports whether s is a known case status
func (s CaseStatus) Valid() bool {
	return s == CaseStatusDraft || s == CaseStatusReady || s == CaseStatusDeprecated
}

// RunStatus represents the aggregate status of a test run
type RunStatus string

const (
	RunStatusNotStarted RunStatus = "not_started"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
)

// Valid reports whether s is a known run status
func (s RunStatus) Valid() bool {
	return s == RunStatusNotStarted || s == RunStatusInProgress || s == RunStatusCompleted
}

// ResultStatus is the verdict of one test case within one run
type ResultStatus string

const (
	ResultUntested   ResultStatus = "untested"
	ResultInProgress ResultStatus = "in_progress"
	ResultPassed     ResultStatus = "passed"
	ResultFailed     ResultStatus = "failed"
	ResultBlocked    ResultStatus = "blocked"
	ResultSkipped    ResultStatus = "skipped"
)

// Valid reports whether s is one of the six stored verdicts
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultUntested, ResultInProgress, ResultPassed, ResultFailed, ResultBlocked, ResultSkipped:
		return true
	}
	return false
}

// IsExecuted returns true for every status other than untested
func (s ResultStatus) IsExecuted() bool {
	return s != ResultUntested && s != ""
}

// Suite is a folder node in the test case hierarchy
type Suite struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *string   `json:"parent_id"` // nil = root level
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntityID returns the suite id
func (s Suite) EntityID() string { return s.ID }

// WithID returns a copy of the suite carrying id
func (s Suite) WithID(id string) Suite {
	s.ID = id
	return s
}

// Clone returns a deep copy
func (s Suite) Clone() Suite {
	s.ParentID = CopyID(s.ParentID)
	return s
}

// Step is one action of a test case with its expected outcome
type Step struct {
	Action         string `json:"action"`
	ExpectedResult string `json:"expected_result"`
}

// TestCase is a leaf of the suite tree
type TestCase struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	SuiteID       *string    `json:"suite_id"` // nil = uncategorized
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	TestType      TestType   `json:"test_type"`
	Priority      Priority   `json:"priority"`
	Status        CaseStatus `json:"status"`
	Position      int        `json:"position"`
	Steps         []Step     `json:"steps"`
	Preconditions string     `json:"preconditions,omitempty"`
	Tags          []string   `json:"tags"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// EntityID returns the case id
func (c TestCase) EntityID() string { return c.ID }

// WithID returns a copy of the case carrying id
func (c TestCase) WithID(id string) TestCase {
	c.ID = id
	return c
}

// Clone returns a deep copy, so snapshots never share slices with live records
func (c TestCase) Clone() TestCase {
	c.SuiteID = CopyID(c.SuiteID)
	if c.Steps != nil {
		c.Steps = append([]Step(nil), c.Steps...)
	}
	if c.Tags != nil {
		c.Tags = append([]string(nil), c.Tags...)
	}
	return c
}

// ApplyDefaults fills unset enum fields with their defaults
func (c *TestCase) ApplyDefaults() {
	if c.TestType == "" {
		c.TestType = TestTypeWeb
	}
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
	if c.Status == "" {
		c.Status = CaseStatusDraft
	}
}

// TestPlan is an ordered selection of test cases that runs are created from
type TestPlan struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CaseIDs     []string  `json:"test_case_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// TestRun is one execution pass over a fixed set of test cases
type TestRun struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	TestPlanID  *string   `json:"test_plan_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Environment string    `json:"environment"`
	RunStatus   RunStatus `json:"run_status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AttachmentType distinguishes uploaded files from plain links
type AttachmentType string

const (
	AttachmentUpload AttachmentType = "upload"
	AttachmentLink   AttachmentType = "link"
)

// Attachment is a piece of execution evidence
type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
	Name string         `json:"name"`
}

// TestRunResult is the verdict row for one (run, case) pair
type TestRunResult struct {
	ID            string       `json:"id"`
	TestRunID     string       `json:"test_run_id"`
	TestCaseID    string       `json:"test_case_id"`
	ResultStatus  ResultStatus `json:"result_status"`
	ActualResult  string       `json:"actual_result,omitempty"`
	Comments      string       `json:"comments,omitempty"`
	Attachments   []Attachment `json:"attachments"`
	ExecutionTime *int         `json:"execution_time,omitempty"` // minutes
	ExecutedBy    string       `json:"executed_by,omitempty"`
	ExecutedAt    *time.Time   `json:"executed_at,omitempty"`
	Position      int          `json:"position"`
}

// CopyID returns an independent copy of a nullable id
func CopyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// SameID compares two nullable ids by value
func SameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IDValue returns the id or "" for nil
func IDValue(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

// StringPtr returns a pointer to a copy of s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
