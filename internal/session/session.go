// Package session binds one project's caches, mutation engine and drag-drop controller to a
// logged-in user. Closing a session drops everything it cached.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/cache"
	"github.com/dhyansraj/qa-testdesk/internal/csvimport"
	"github.com/dhyansraj/qa-testdesk/internal/dragdrop"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/mutation"
	"github.com/dhyansraj/qa-testdesk/internal/tree"
)

// Backends is the persistence a session writes through
type Backends struct {
	Suites cache.Backend[models.Suite]
	Cases  cache.Backend[models.TestCase]
	Writer mutation.Writer
}

// Session is one user's view of one project.
type Session struct {
	ID        string
	ProjectID string
	CreatedAt time.Time

	Suites   *cache.Store[models.Suite]
	Cases    *cache.Store[models.TestCase]
	Engine   *mutation.Engine
	DragDrop *dragdrop.Controller
	Importer *csvimport.Importer

	mu       sync.Mutex
	expanded tree.Set
	log      *slog.Logger
}

// New creates a session with empty caches
func New(id, projectID string, b Backends, opts ...cache.Option) *Session {
	suites := cache.New[models.Suite]("test_suites", b.Suites, opts...)
	cases := cache.New[models.TestCase]("test_cases", b.Cases, opts...)
	engine := mutation.NewEngine(projectID, suites, cases, b.Writer)
	return &Session{
		ID:        id,
		ProjectID: projectID,
		CreatedAt: time.Now(),
		Suites:    suites,
		Cases:     cases,
		Engine:    engine,
		DragDrop:  dragdrop.NewController(engine),
		Importer:  csvimport.NewImporter(suites, cases),
		expanded:  tree.NewSet(),
		log:       logging.New("session").With(slog.String("session_id", id)),
	}
}

// Tree builds the suite tree. A nil expanded keeps the session's current set, anything else
// replaces it. refresh bypasses the cache.
func (s *Session) Tree(ctx context.Context, refresh bool, expanded tree.Set) ([]tree.Node, error) {
	if refresh {
		s.Suites.ClearCache()
		s.Cases.ClearCache()
	}
	idx, err := s.Engine.Index(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if expanded != nil {
		s.expanded = expanded
	}
	current := tree.NewSet(s.expanded.IDs()...)
	s.mu.Unlock()

	return idx.Nodes(current), nil
}

// Expanded returns the expanded suite ids
func (s *Session) Expanded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded.IDs()
}

// ToggleExpanded flips one suite and returns its new state
func (s *Session) ToggleExpanded(ctx context.Context, suiteID string) (bool, error) {
	if _, err := s.knownSuite(ctx, suiteID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded.Toggle(suiteID), nil
}

// Reveal expands every ancestor of a suite
func (s *Session) Reveal(ctx context.Context, suiteID string) error {
	idx, err := s.knownSuite(ctx, suiteID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.expanded.ExpandPath(idx, suiteID)
	s.mu.Unlock()
	return nil
}

func (s *Session) knownSuite(ctx context.Context, suiteID string) (*tree.Index, error) {
	idx, err := s.Engine.Index(ctx)
	if err != nil {
		return nil, err
	}
	if !idx.HasSuite(suiteID) {
		return nil, fmt.Errorf("suite %s: %w", suiteID, apperr.ErrNotFound)
	}
	return idx, nil
}

// Close drops cached collections, selection and any gesture in flight
func (s *Session) Close() {
	s.DragDrop.Cancel()
	s.DragDrop.ClearSelection()
	s.Suites.ClearCache()
	s.Cases.ClearCache()
	s.log.Info("session closed", slog.String("project_id", s.ProjectID))
}
