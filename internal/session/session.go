// Package session tracks where a user is in a file's history. Each
// session owns a navigation stack of visited revisions with a cursor,
// browser-style: visiting from mid-stack discards the forward branch.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blamescope/blamescope/internal/blame"
	"github.com/blamescope/blamescope/internal/blamerr"
	"github.com/blamescope/blamescope/internal/cache"
	"github.com/blamescope/blamescope/internal/gitexec"
)

// State is one stack frame: a revision of the file and the line the
// cursor was on when the user left it. An empty Revision means the
// working copy.
type State struct {
	Revision string
	Line     int
}

// Session is the per-file navigation state machine. All mutation goes
// through the mutex; a session may be driven from both an editor
// callback and a background pre-warm completion.
type Session struct {
	id     uuid.UUID
	path   string
	engine *cache.Engine
	runner gitexec.Runner
	logger *logrus.Entry

	mu      sync.Mutex
	states  []State
	cursor  int
	records []blame.LineAttribution
}

// New opens a session on path seeded with the working-copy state. The
// initial attribution is fetched eagerly so a session always has a
// current view.
func New(ctx context.Context, path string, line int, engine *cache.Engine, runner gitexec.Runner, logger *logrus.Logger) (*Session, error) {
	if logger == nil {
		logger = logrus.New()
	}
	id := uuid.New()
	s := &Session{
		id:     id,
		path:   path,
		engine: engine,
		runner: runner,
		logger: logger.WithFields(logrus.Fields{"session": id.String()[:8], "path": path}),
	}
	records, err := engine.GetAttribution(ctx, path, "", nil)
	if err != nil {
		return nil, err
	}
	s.states = []State{{Revision: "", Line: line}}
	s.records = records
	s.logger.Debug("session opened")
	return s, nil
}

// ID returns the session's identity.
func (s *Session) ID() uuid.UUID { return s.id }

// Path returns the file the session is attached to.
func (s *Session) Path() string { return s.path }

// Current returns the state under the cursor and its attribution.
func (s *Session) Current() (State, []blame.LineAttribution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[s.cursor], s.records
}

// Depth reports the stack size and cursor position.
func (s *Session) Depth() (size, cursor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states), s.cursor
}

// Visit pushes a new revision onto the stack. Visiting the revision
// already under the cursor only updates the remembered line. Visiting
// from mid-stack truncates everything after the cursor first, so the
// forward history never diverges from what was actually seen. The
// stack is only mutated after the revision's attribution is in hand;
// a failed fetch leaves the session exactly where it was.
func (s *Session) Visit(ctx context.Context, revision string, line int) error {
	s.mu.Lock()
	if s.states[s.cursor].Revision == revision {
		s.states[s.cursor].Line = line
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	records, err := s.engine.GetAttribution(ctx, s.path, revision, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states[:s.cursor+1], State{Revision: revision, Line: line})
	s.cursor = len(s.states) - 1
	s.records = records
	s.logger.WithFields(logrus.Fields{"revision": revision, "depth": len(s.states)}).Debug("visited revision")
	return nil
}

// Back moves the cursor one step toward the oldest visited state.
func (s *Session) Back(ctx context.Context) (State, error) {
	return s.step(ctx, -1, "already at the oldest visited revision")
}

// Forward moves the cursor one step toward the newest visited state.
func (s *Session) Forward(ctx context.Context) (State, error) {
	return s.step(ctx, +1, "already at the newest visited revision")
}

func (s *Session) step(ctx context.Context, delta int, boundary string) (State, error) {
	s.mu.Lock()
	next := s.cursor + delta
	if next < 0 || next >= len(s.states) {
		s.mu.Unlock()
		return State{}, blamerr.NavigationBoundary(boundary)
	}
	target := s.states[next]
	s.mu.Unlock()

	records, err := s.engine.GetAttribution(ctx, s.path, target.Revision, nil)
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = next
	s.records = records
	return target, nil
}

// VisitParent drills into the commit before the one that last touched
// cursorLine. Uncommitted lines have no parent to drill into. The
// parent comes from the blame record itself when git reported one,
// otherwise from the commit's first parent.
func (s *Session) VisitParent(ctx context.Context, cursorLine int) error {
	s.mu.Lock()
	rec, ok := recordAt(s.records, cursorLine)
	s.mu.Unlock()
	if !ok {
		return blamerr.Newf(blamerr.KindNavigationBoundary, "no attribution for line %d", cursorLine)
	}
	if rec.IsUncommitted() {
		return blamerr.NavigationBoundary("line is uncommitted and has no parent commit")
	}

	parent := rec.Previous
	if parent == "" {
		p, err := gitexec.ParentOf(ctx, s.runner, rec.Revision)
		if err != nil {
			return err
		}
		parent = p
	}
	return s.Visit(ctx, parent, rec.OrigLine)
}

func recordAt(records []blame.LineAttribution, line int) (blame.LineAttribution, bool) {
	for _, r := range records {
		if r.FinalLine == line {
			return r, true
		}
	}
	return blame.LineAttribution{}, false
}
