package middleware

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/sirupsen/logrus"
)

// ErrTooManySessions is returned when the live session limit is reached.
var ErrTooManySessions = errors.New("too many live sessions")

// ControllerFactory builds the controller of a new session.
// The listener must be registered on the controller; it may be nil for detached use.
type ControllerFactory func(listener session.Listener) *session.Controller

// Session is one live identification or registration session.
// Calls into the controller are serialized by Do.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ctrl     *session.Controller
	events   *EventBroadcaster
	lastSeen time.Time
	mu       sync.Mutex
}

// Do runs fn with exclusive access to the session controller and marks the session active.
func (s *Session) Do(now time.Time, fn func(*session.Controller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	return fn(s.ctrl)
}

// Status returns a snapshot of the controller.
func (s *Session) Status() session.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Status()
}

// Events returns the broadcaster carrying the session's events.
func (s *Session) Events() *EventBroadcaster {
	return s.events
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// close cancels the controller and closes every event stream.
func (s *Session) close() {
	s.mu.Lock()
	s.ctrl.Cancel()
	s.mu.Unlock()
	s.events.Close()
}

// SessionManager keeps the live sessions of the web server.
type SessionManager struct {
	newController ControllerFactory
	sessions      map[string]*Session
	maxSessions   int
	idleTimeout   time.Duration
	now           func() time.Time
	log           logrus.FieldLogger
	stop          chan struct{}
	stopOnce      sync.Once
	mu            sync.RWMutex
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionClock overrides time.Now.
func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(sm *SessionManager) { sm.now = now }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(log logrus.FieldLogger) SessionManagerOption {
	return func(sm *SessionManager) { sm.log = log }
}

// NewSessionManager creates a session manager. A maxSessions of zero means unlimited;
// a zero idleTimeout disables the sweeper.
func NewSessionManager(factory ControllerFactory, maxSessions int, idleTimeout time.Duration, opts ...SessionManagerOption) *SessionManager {
	sm := &SessionManager{
		newController: factory,
		sessions:      make(map[string]*Session),
		maxSessions:   maxSessions,
		idleTimeout:   idleTimeout,
		now:           time.Now,
		log:           logging.Discard(),
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// CreateSession registers a new session whose controller has not been started yet.
func (sm *SessionManager) CreateSession() (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return nil, ErrTooManySessions
	}

	now := sm.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		events:    &EventBroadcaster{},
		lastSeen:  now,
	}
	s.ctrl = sm.newController(s.events.SendEvent)
	sm.sessions[s.ID] = s
	return s, nil
}

// Detached returns a controller that belongs to no session, for one-shot identification.
func (sm *SessionManager) Detached() *session.Controller {
	return sm.newController(nil)
}

// GetSession retrieves a session by ID.
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// DeleteSession cancels and removes a session. It reports whether the session existed.
func (sm *SessionManager) DeleteSession(id string) bool {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if ok {
		s.close()
	}
	return ok
}

// Len returns the number of live sessions.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Sweep cancels and removes every session idle for longer than the idle timeout.
// It returns the number of removed sessions.
func (sm *SessionManager) Sweep() int {
	if sm.idleTimeout <= 0 {
		return 0
	}

	now := sm.now()
	var expired []*Session

	sm.mu.Lock()
	for id, s := range sm.sessions {
		if s.idleSince(now) > sm.idleTimeout {
			expired = append(expired, s)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, s := range expired {
		s.close()
		sm.log.WithField("session", s.ID).Info("Idle session cancelled")
	}
	return len(expired)
}

// StartSweeper runs Sweep every interval until Stop is called.
func (sm *SessionManager) StartSweeper(interval time.Duration) {
	if sm.idleTimeout <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sm.Sweep()
			case <-sm.stop:
				return
			}
		}
	}()
}

// Stop stops the sweeper and closes every live session.
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stop)

		sm.mu.Lock()
		sessions := sm.sessions
		sm.sessions = make(map[string]*Session)
		sm.mu.Unlock()

		for _, s := range sessions {
			s.close()
		}
	})
}
