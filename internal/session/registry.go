package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/cache"
	"github.com/dhyansraj/qa-testdesk/internal/execution"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
)

// Registry tracks live sessions and open run executions.
type Registry struct {
	mu         sync.RWMutex
	backends   Backends
	opts       []cache.Option
	sessions   map[string]*Session
	executions map[string]*execution.Stepper
	log        *slog.Logger
}

// NewRegistry creates an empty registry; every session writes through b
func NewRegistry(b Backends, opts ...cache.Option) *Registry {
	return &Registry{
		backends:   b,
		opts:       opts,
		sessions:   make(map[string]*Session),
		executions: make(map[string]*execution.Stepper),
		log:        logging.New("sessions"),
	}
}

// Open starts a session for a project
func (r *Registry) Open(projectID string) (*Session, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("project_id is required: %w", apperr.ErrInvalidInput)
	}
	s := New(uuid.NewString(), projectID, r.backends, r.opts...)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Info("session opened", slog.String("session_id", s.ID), slog.String("project_id", projectID))
	return s, nil
}

// Get returns a live session
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

// Close ends a session and clears its caches
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	s.Close()
	return nil
}

// CloseAll ends every session, used on shutdown
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.executions = make(map[string]*execution.Stepper)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ==================== Executions ====================

// AddExecution registers an open stepper and returns its id
func (r *Registry) AddExecution(st *execution.Stepper) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.executions[id] = st
	r.mu.Unlock()
	return id
}

// Execution returns an open stepper
func (r *Registry) Execution(id string) (*execution.Stepper, error) {
	r.mu.RLock()
	st, ok := r.executions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, apperr.ErrNotFound)
	}
	return st, nil
}

// RemoveExecution forgets a stepper after it was closed
func (r *Registry) RemoveExecution(id string) {
	r.mu.Lock()
	delete(r.executions, id)
	r.mu.Unlock()
}
