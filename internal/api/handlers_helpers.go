package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/session"
)

const sessionKey = "session"

// respondError answers with {"error": ...} and the status matching the error class
func (s *Server) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err.Error())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bindJSON decodes the body, or sends a 400 and returns false
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

// withSession loads the :sid session into the context, or answers 404
func (s *Server) withSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("sid"))
	if err != nil {
		s.respondError(c, err)
		c.Abort()
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// groupID maps the wire form of a test case group to the nullable suite id. Empty and the
// uncategorized id both mean "no suite".
func groupID(id *string) *string {
	if id == nil || *id == "" || *id == models.UncategorizedID {
		return nil
	}
	return models.CopyID(id)
}

// parentID maps the wire form of a suite parent. Only empty means root level; the
// uncategorized id is passed on so the engine can reject it.
func parentID(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return models.CopyID(id)
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
