// Package session holds the artifacts threaded through one session and the
// view state machine that governs access to them.
package session

import (
	"sync"

	"gitreal/internal/domain"
)

// Store holds the session artifacts shared across views: the uploaded
// document, the selected project, and the active mode. Pure in-memory
// mutation; clearing conversation state on mode changes is the navigator's
// job so that every reset is auditable in one place.
type Store struct {
	mu       sync.Mutex
	document domain.Document
	project  *domain.Project
	mode     domain.Mode
}

func NewStore() *Store {
	return &Store{}
}

// SetDocument records the uploaded document. Project and mode are untouched.
func (s *Store) SetDocument(doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = doc
}

// SetProject replaces the selected project. Passing nil clears the selection.
func (s *Store) SetProject(project *domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if project == nil {
		s.project = nil
		return
	}
	copied := *project
	s.project = &copied
}

// SetMode records the active mode without touching conversation state.
func (s *Store) SetMode(mode domain.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Document returns the uploaded document handle.
func (s *Store) Document() domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

// Project returns a copy of the selected project, or nil if none is selected.
func (s *Store) Project() *domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project == nil {
		return nil
	}
	copied := *s.project
	return &copied
}

// Mode returns the active session mode.
func (s *Store) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Reset abandons all artifacts, equivalent to starting a new session.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = domain.Document{}
	s.project = nil
	s.mode = domain.ModeNone
}
