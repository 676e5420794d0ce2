package models

// Bug is the payload forwarded to the issue tracker proxy when a ticket is created.
// Bug CRUD lives outside this service; only the fields the tracker needs are carried.
type Bug struct {
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	StepsToReproduce string   `json:"steps_to_reproduce,omitempty"`
	ExpectedResult   string   `json:"expected_result,omitempty"`
	ActualResult     string   `json:"actual_result,omitempty"`
	Severity         string   `json:"severity,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	Environment      string   `json:"environment,omitempty"`
	Labels           []string `json:"labels,omitempty"`
	TestCaseID       string   `json:"test_case_id,omitempty"`
	TestRunID        string   `json:"test_run_id,omitempty"`
}

// TicketConfig holds the issue tracker connection settings of a project
type TicketConfig struct {
	BaseURL    string `json:"base_url"`
	Email      string `json:"email"`
	APIToken   string `json:"api_token"`
	ProjectKey string `json:"project_key,omitempty"`
	IssueType  string `json:"issue_type,omitempty"`
}
