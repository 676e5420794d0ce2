package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dhyansraj/qa-testdesk/internal/execution"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// ==================== Plans ====================

// listPlans handles GET /api/projects/:pid/plans
func (s *Server) listPlans(c *gin.Context) {
	plans, err := s.repo.ListTestPlans(c.Request.Context(), c.Param("pid"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plans": emptyIfNil(plans),
		"count": len(plans),
	})
}

// createPlan handles POST /api/projects/:pid/plans
func (s *Server) createPlan(c *gin.Context) {
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		CaseIDs     []string `json:"test_case_ids"`
	}
	if !bindJSON(c, &req) {
		return
	}
	plan, err := s.repo.CreateTestPlan(c.Request.Context(), models.TestPlan{
		ProjectID:   c.Param("pid"),
		Name:        req.Name,
		Description: req.Description,
		CaseIDs:     req.CaseIDs,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// ==================== Runs ====================

// listRuns handles GET /api/projects/:pid/runs
func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.repo.ListTestRuns(c.Request.Context(), c.Param("pid"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  emptyIfNil(runs),
		"count": len(runs),
	})
}

// createRun handles POST /api/projects/:pid/runs. With test_plan_id the plan's cases are
// used; otherwise test_case_ids is required.
func (s *Server) createRun(c *gin.Context) {
	var req execution.NewRun
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	var run models.TestRun
	var err error
	projectID := c.Param("pid")
	if req.TestPlanID != nil && len(req.CaseIDs) == 0 {
		run, err = s.runs.CreateRunFromPlan(ctx, projectID, *req.TestPlanID, req.Name, req.Environment)
	} else {
		req.ProjectID = projectID
		run, err = s.runs.CreateRun(ctx, req)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

// runStats handles GET /api/projects/:pid/stats
func (s *Server) runStats(c *gin.Context) {
	stats, err := s.repo.GetRunStats(c.Request.Context(), c.Param("pid"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getRun handles GET /api/runs/:run_id
func (s *Server) getRun(c *gin.Context) {
	report, err := s.runs.Report(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":     report.Run,
		"summary": report.Summary,
	})
}

// getRunResults handles GET /api/runs/:run_id/results
func (s *Server) getRunResults(c *gin.Context) {
	report, err := s.runs.Report(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": emptyIfNil(report.Results),
		"count":   len(report.Results),
		"summary": report.Summary,
	})
}

// updateRunStatus handles PATCH /api/runs/:run_id
func (s *Server) updateRunStatus(c *gin.Context) {
	var req struct {
		RunStatus models.RunStatus `json:"run_status"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := s.runs.SetRunStatus(c.Request.Context(), c.Param("run_id"), req.RunStatus); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("run_id"), "run_status": req.RunStatus})
}

// deleteRun handles DELETE /api/runs/:run_id
func (s *Server) deleteRun(c *gin.Context) {
	if err := s.runs.DeleteRun(c.Request.Context(), c.Param("run_id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("run_id")})
}

// cloneRun handles POST /api/runs/:run_id/clone
func (s *Server) cloneRun(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&req)

	run, err := s.runs.CloneRun(c.Request.Context(), c.Param("run_id"), req.Name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

// ==================== Executions ====================

func executionView(eid string, st *execution.Stepper) gin.H {
	tc, exec := st.Current()
	return gin.H{
		"execution_id": eid,
		"run_id":       st.RunID(),
		"cursor":       st.Cursor(),
		"total":        st.Len(),
		"test_case":    tc,
		"execution":    exec,
	}
}

// openExecution handles POST /api/runs/:run_id/execute
func (s *Server) openExecution(c *gin.Context) {
	var req struct {
		ExecutedBy string `json:"executed_by"`
	}
	_ = c.ShouldBindJSON(&req)

	st, err := s.runs.Open(c.Request.Context(), c.Param("run_id"), req.ExecutedBy)
	if err != nil {
		s.respondError(c, err)
		return
	}
	eid := s.sessions.AddExecution(st)
	c.JSON(http.StatusCreated, executionView(eid, st))
}

// withExecution resolves :eid or answers 404
func (s *Server) withExecution(c *gin.Context) (*execution.Stepper, bool) {
	st, err := s.sessions.Execution(c.Param("eid"))
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return st, true
}

// getExecution handles GET /api/executions/:eid
func (s *Server) getExecution(c *gin.Context) {
	st, ok := s.withExecution(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, executionView(c.Param("eid"), st))
}

// editExecution handles PUT /api/executions/:eid. An optional cursor jumps first.
func (s *Server) editExecution(c *gin.Context) {
	st, ok := s.withExecution(c)
	if !ok {
		return
	}
	var req struct {
		Cursor *int `json:"cursor"`
		execution.Execution
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Cursor != nil {
		if err := st.GoTo(*req.Cursor); err != nil {
			s.respondError(c, err)
			return
		}
	}
	if err := st.Edit(req.Execution); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, executionView(c.Param("eid"), st))
}

// addAttachment handles POST /api/executions/:eid/attachments
func (s *Server) addAttachment(c *gin.Context) {
	st, ok := s.withExecution(c)
	if !ok {
		return
	}
	var att models.Attachment
	if !bindJSON(c, &att) {
		return
	}
	if err := st.AddAttachment(att); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, executionView(c.Param("eid"), st))
}

// executionNext handles POST /api/executions/:eid/next
func (s *Server) executionNext(c *gin.Context) {
	st, ok := s.withExecution(c)
	if !ok {
		return
	}
	if err := st.SaveAndNext(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, executionView(c.Param("eid"), st))
}

// executionPrevious handles POST /api/executions/:eid/previous
func (s *Server) executionPrevious(c *gin.Context) {
	st, ok := s.withExecution(c)
	if !ok {
		return
	}
	if err := st.SaveAndPrevious(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, executionView(c.Param("eid"), st))
}

// executionClose handles POST /api/executions/:eid/close. The execution stays open when the
// save fails so the edits can be retried.
func (s *Server) executionClose(c *gin.Context) {
	st, ok := s.withExecution(c)
	if !ok {
		return
	}
	status, err := st.SaveAndClose(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.sessions.RemoveExecution(c.Param("eid"))
	c.JSON(http.StatusOK, gin.H{"run_id": st.RunID(), "run_status": status})
}

// ==================== Tickets ====================

// testTicketConnection handles POST /api/tickets/test-connection
func (s *Server) testTicketConnection(c *gin.Context) {
	var cfg models.TicketConfig
	if !bindJSON(c, &cfg) {
		return
	}
	res, err := s.tickets.TestConnection(c.Request.Context(), cfg)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// createTicket handles POST /api/bugs/:bug_id/ticket
func (s *Server) createTicket(c *gin.Context) {
	var req struct {
		Bug    models.Bug          `json:"bug"`
		Config models.TicketConfig `json:"config"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.tickets.CreateIssue(c.Request.Context(), c.Param("bug_id"), req.Bug, req.Config)
	if err != nil {
		if res != nil {
			c.JSON(http.StatusBadGateway, res)
			return
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
