package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/csvimport"
	"github.com/dhyansraj/qa-testdesk/internal/dragdrop"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/tree"
)

// ==================== Sessions ====================

// openSession handles POST /api/sessions
func (s *Server) openSession(c *gin.Context) {
	var req struct {
		ProjectID string `json:"project_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sess, err := s.sessions.Open(req.ProjectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sess.ID, "project_id": sess.ProjectID})
}

// closeSession handles DELETE /api/sessions/:sid
func (s *Server) closeSession(c *gin.Context) {
	if err := s.sessions.Close(c.Param("sid")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// getTree handles GET /api/sessions/:sid/tree
func (s *Server) getTree(c *gin.Context) {
	sess := currentSession(c)

	var expanded tree.Set
	if raw, ok := c.GetQuery("expanded"); ok {
		expanded = tree.NewSet(splitList(raw)...)
	}
	refresh := c.Query("refresh") == "1" || c.Query("refresh") == "true"

	nodes, err := sess.Tree(c.Request.Context(), refresh, expanded)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tree":     nodes,
		"expanded": sess.Expanded(),
	})
}

// toggleSuite handles POST /api/sessions/:sid/tree/toggle
func (s *Server) toggleSuite(c *gin.Context) {
	var req struct {
		SuiteID string `json:"suite_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sess := currentSession(c)
	expanded, err := sess.ToggleExpanded(c.Request.Context(), req.SuiteID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"suite_id":    req.SuiteID,
		"is_expanded": expanded,
		"expanded":    sess.Expanded(),
	})
}

// revealSuite handles POST /api/sessions/:sid/tree/reveal. Every ancestor of the suite is
// expanded so it becomes visible.
func (s *Server) revealSuite(c *gin.Context) {
	var req struct {
		SuiteID string `json:"suite_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sess := currentSession(c)
	if err := sess.Reveal(c.Request.Context(), req.SuiteID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expanded": sess.Expanded()})
}

// ==================== Suites ====================

// listSuites handles GET /api/sessions/:sid/suites
func (s *Server) listSuites(c *gin.Context) {
	sess := currentSession(c)
	suites, err := sess.Suites.Fetch(c.Request.Context(), sess.ProjectID, c.Query("refresh") == "1")
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"suites": emptyIfNil(suites),
		"count":  len(suites),
	})
}

// createSuite handles POST /api/sessions/:sid/suites. New suites go last under their parent.
func (s *Server) createSuite(c *gin.Context) {
	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		ParentID    *string `json:"parent_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	sess := currentSession(c)
	ctx := c.Request.Context()
	idx, err := sess.Engine.Index(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	parent := parentID(req.ParentID)
	if parent != nil && !idx.HasSuite(*parent) {
		s.respondError(c, fmt.Errorf("parent suite %s: %w", *parent, apperr.ErrInvalidTarget))
		return
	}

	created, err := sess.Suites.Add(ctx, models.Suite{
		ProjectID:   sess.ProjectID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ParentID:    parent,
		Position:    len(idx.Children(parent)),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// updateSuite handles PUT /api/sessions/:sid/suites/:id. Placement changes go through move.
func (s *Server) updateSuite(c *gin.Context) {
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if !bindJSON(c, &req) {
		return
	}

	sess := currentSession(c)
	ctx := c.Request.Context()
	idx, err := sess.Engine.Index(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	suite, ok := idx.Suite(c.Param("id"))
	if !ok {
		s.respondError(c, fmt.Errorf("suite %s: %w", c.Param("id"), apperr.ErrNotFound))
		return
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		suite.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		suite.Description = *req.Description
	}

	updated, err := sess.Suites.Update(ctx, suite)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteSuite handles DELETE /api/sessions/:sid/suites/:id
func (s *Server) deleteSuite(c *gin.Context) {
	plan, err := currentSession(c).Engine.DeleteSuite(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id"), "plan": plan})
}

// moveSuite handles POST /api/sessions/:sid/suites/:id/move
func (s *Server) moveSuite(c *gin.Context) {
	var req struct {
		ParentID *string `json:"parent_id"`
		Position int     `json:"position"`
	}
	if !bindJSON(c, &req) {
		return
	}
	plan, err := currentSession(c).Engine.MoveSuite(c.Request.Context(), c.Param("id"), parentID(req.ParentID), req.Position)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// reorderSuites handles POST /api/sessions/:sid/suites/reorder
func (s *Server) reorderSuites(c *gin.Context) {
	var req struct {
		ParentID *string  `json:"parent_id"`
		SuiteIDs []string `json:"suite_ids"`
	}
	if !bindJSON(c, &req) {
		return
	}
	plan, err := currentSession(c).Engine.ReorderSuites(c.Request.Context(), parentID(req.ParentID), req.SuiteIDs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// ==================== Test Cases ====================

type caseRequest struct {
	Title         *string       `json:"title"`
	Description   *string       `json:"description"`
	TestType      *string       `json:"test_type"`
	Priority      *string       `json:"priority"`
	Status        *string       `json:"status"`
	Preconditions *string       `json:"preconditions"`
	Steps         []models.Step `json:"steps"`
	Tags          []string      `json:"tags"`
	SuiteID       *string       `json:"suite_id"`
}

// applyTo copies the provided fields onto tc and validates the result
func (r caseRequest) applyTo(tc *models.TestCase) error {
	if r.Title != nil {
		tc.Title = strings.TrimSpace(*r.Title)
	}
	if r.Description != nil {
		tc.Description = *r.Description
	}
	if r.TestType != nil {
		tc.TestType = models.TestType(*r.TestType)
	}
	if r.Priority != nil {
		tc.Priority = models.Priority(*r.Priority)
	}
	if r.Status != nil {
		tc.Status = models.CaseStatus(*r.Status)
	}
	if r.Preconditions != nil {
		tc.Preconditions = *r.Preconditions
	}
	if r.Steps != nil {
		tc.Steps = r.Steps
	}
	if r.Tags != nil {
		tc.Tags = r.Tags
	}
	tc.ApplyDefaults()

	switch {
	case tc.Title == "":
		return fmt.Errorf("title is required: %w", apperr.ErrInvalidInput)
	case !tc.TestType.Valid():
		return fmt.Errorf("invalid test_type %q: %w", tc.TestType, apperr.ErrInvalidInput)
	case !tc.Priority.Valid():
		return fmt.Errorf("invalid priority %q: %w", tc.Priority, apperr.ErrInvalidInput)
	case !tc.Status.Valid():
		return fmt.Errorf("invalid status %q: %w", tc.Status, apperr.ErrInvalidInput)
	}
	return nil
}

// listCases handles GET /api/sessions/:sid/cases
func (s *Server) listCases(c *gin.Context) {
	sess := currentSession(c)
	cases, err := sess.Cases.Fetch(c.Request.Context(), sess.ProjectID, c.Query("refresh") == "1")
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"test_cases": emptyIfNil(cases),
		"count":      len(cases),
	})
}

// createCase handles POST /api/sessions/:sid/cases. New cases go last in their group.
func (s *Server) createCase(c *gin.Context) {
	var req caseRequest
	if !bindJSON(c, &req) {
		return
	}
	sess := currentSession(c)
	ctx := c.Request.Context()

	tc := models.TestCase{ProjectID: sess.ProjectID, Steps: []models.Step{}, Tags: []string{}}
	if err := req.applyTo(&tc); err != nil {
		s.respondError(c, err)
		return
	}

	idx, err := sess.Engine.Index(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	tc.SuiteID = groupID(req.SuiteID)
	if tc.SuiteID != nil && !idx.HasSuite(*tc.SuiteID) {
		s.respondError(c, fmt.Errorf("suite %s: %w", *tc.SuiteID, apperr.ErrInvalidTarget))
		return
	}
	tc.Position = len(idx.Cases(tc.SuiteID))

	created, err := sess.Cases.Add(ctx, tc)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// updateCase handles PUT /api/sessions/:sid/cases/:id. suite_id is ignored; use move.
func (s *Server) updateCase(c *gin.Context) {
	var req caseRequest
	if !bindJSON(c, &req) {
		return
	}
	sess := currentSession(c)
	ctx := c.Request.Context()

	idx, err := sess.Engine.Index(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	tc, ok := idx.Case(c.Param("id"))
	if !ok {
		s.respondError(c, fmt.Errorf("test case %s: %w", c.Param("id"), apperr.ErrNotFound))
		return
	}
	if err := req.applyTo(&tc); err != nil {
		s.respondError(c, err)
		return
	}

	updated, err := sess.Cases.Update(ctx, tc)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteCase handles DELETE /api/sessions/:sid/cases/:id and closes the gap it leaves
func (s *Server) deleteCase(c *gin.Context) {
	sess := currentSession(c)
	ctx := c.Request.Context()
	id := c.Param("id")

	idx, err := sess.Engine.Index(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if _, ok := idx.Case(id); !ok {
		s.respondError(c, fmt.Errorf("test case %s: %w", id, apperr.ErrNotFound))
		return
	}
	group := idx.GroupOf(id)
	remaining := make([]string, 0)
	for _, other := range idx.Cases(group) {
		if other != id {
			remaining = append(remaining, other)
		}
	}

	if err := sess.Cases.Delete(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	plan, err := sess.Engine.ReorderTestCases(ctx, group, remaining)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id, "plan": plan})
}

// moveCase handles POST /api/sessions/:sid/cases/:id/move
func (s *Server) moveCase(c *gin.Context) {
	var req struct {
		SuiteID  *string `json:"suite_id"`
		Position int     `json:"position"`
	}
	if !bindJSON(c, &req) {
		return
	}
	plan, err := currentSession(c).Engine.MoveTestCase(c.Request.Context(), c.Param("id"), groupID(req.SuiteID), req.Position)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// moveCases handles POST /api/sessions/:sid/cases/move
func (s *Server) moveCases(c *gin.Context) {
	var req struct {
		CaseIDs []string `json:"case_ids"`
		SuiteID *string  `json:"suite_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	plan, err := currentSession(c).Engine.MoveMultipleTestCases(c.Request.Context(), req.CaseIDs, groupID(req.SuiteID))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// reorderCases handles POST /api/sessions/:sid/cases/reorder
func (s *Server) reorderCases(c *gin.Context) {
	var req struct {
		SuiteID *string  `json:"suite_id"`
		CaseIDs []string `json:"case_ids"`
	}
	if !bindJSON(c, &req) {
		return
	}
	plan, err := currentSession(c).Engine.ReorderTestCases(c.Request.Context(), groupID(req.SuiteID), req.CaseIDs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// importCases handles POST /api/sessions/:sid/cases/import with a CSV body
func (s *Server) importCases(c *gin.Context) {
	res, err := csvimport.Parse(c.Request.Body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	sess := currentSession(c)
	report, err := sess.Importer.Import(c.Request.Context(), sess.ProjectID, res)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ==================== Drag and Drop ====================

// dragState handles GET /api/sessions/:sid/drag
func (s *Server) dragState(c *gin.Context) {
	c.JSON(http.StatusOK, currentSession(c).DragDrop.State())
}

// setSelection handles PUT /api/sessions/:sid/selection
func (s *Server) setSelection(c *gin.Context) {
	var req struct {
		CaseIDs []string `json:"case_ids"`
	}
	if !bindJSON(c, &req) {
		return
	}
	dd := currentSession(c).DragDrop
	dd.ClearSelection()
	for _, id := range req.CaseIDs {
		dd.Check(id)
	}
	c.JSON(http.StatusOK, dd.State())
}

// dragStart handles POST /api/sessions/:sid/drag/start
func (s *Server) dragStart(c *gin.Context) {
	var req struct {
		Kind string `json:"kind"` // "case" or "suite"
		ID   string `json:"id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	dd := currentSession(c).DragDrop
	ctx := c.Request.Context()

	var payload dragdrop.Payload
	var err error
	switch req.Kind {
	case "case":
		payload, err = dd.PickUpCase(ctx, req.ID)
	case "suite":
		payload, err = dd.PickUpSuite(ctx, req.ID)
	default:
		err = fmt.Errorf("unknown drag kind %q: %w", req.Kind, apperr.ErrInvalidInput)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload_kind": payload.Kind(), "item_ids": payload.ItemIDs()})
}

// dragHover handles POST /api/sessions/:sid/drag/hover
func (s *Server) dragHover(c *gin.Context) {
	var ref dragdrop.TargetRef
	if !bindJSON(c, &ref) {
		return
	}
	target, err := dragdrop.ParseTarget(ref)
	if err == nil {
		err = currentSession(c).DragDrop.Hover(target)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, currentSession(c).DragDrop.State())
}

// dragDrop handles POST /api/sessions/:sid/drag/drop. An empty body or a missing target
// cancels the drag; so does a body that cannot be read.
func (s *Server) dragDrop(c *gin.Context) {
	dd := currentSession(c).DragDrop
	var req struct {
		Target *dragdrop.TargetRef `json:"target"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		dd.Cancel()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	var target dragdrop.Target
	if req.Target != nil {
		t, err := dragdrop.ParseTarget(*req.Target)
		if err != nil {
			dd.Cancel()
			s.respondError(c, err)
			return
		}
		target = t
	}

	res, err := dd.Drop(c.Request.Context(), target)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// dragCancel handles POST /api/sessions/:sid/drag/cancel
func (s *Server) dragCancel(c *gin.Context) {
	dd := currentSession(c).DragDrop
	dd.Cancel()
	c.JSON(http.StatusOK, dd.State())
}
