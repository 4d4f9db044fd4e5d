package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/liveness"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/kozaktomas/face-gate/internal/web/middleware"
	"github.com/sirupsen/logrus"
)

// SessionsHandler handles identification and registration sessions
type SessionsHandler struct {
	sessions  *middleware.SessionManager
	validate  *validator.Validate
	log       logrus.FieldLogger
	now       func() time.Time
	keepAlive time.Duration
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(sm *middleware.SessionManager, v *validator.Validate, log logrus.FieldLogger) *SessionsHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &SessionsHandler{
		sessions:  sm,
		validate:  v,
		log:       log,
		now:       time.Now,
		keepAlive: constants.SSEKeepAliveInterval,
	}
}

// StartRequest starts or restarts a session. Login sessions pick a random
// challenge kind unless one is given.
type StartRequest struct {
	Mode          session.Mode  `json:"mode" validate:"omitempty,oneof=login register"`
	ChallengeKind liveness.Kind `json:"challenge_kind" validate:"omitempty,oneof=expression geometric"`
}

// SessionResponse describes a session after a lifecycle call.
type SessionResponse struct {
	ID            string         `json:"id"`
	Mode          session.Mode   `json:"mode"`
	ChallengeKind liveness.Kind  `json:"challenge_kind,omitempty"`
	Status        session.Status `json:"status"`
}

// EnrollRequest names the face captured by a register session.
type EnrollRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func start(c *session.Controller, req StartRequest) error {
	if req.Mode == session.ModeLogin && req.ChallengeKind != "" {
		return c.StartLogin(req.ChallengeKind)
	}
	return c.Start(req.Mode)
}

func sessionResponse(s *middleware.Session) SessionResponse {
	st := s.Status()
	resp := SessionResponse{ID: s.ID, Mode: st.Mode, Status: st}
	if st.Challenge != nil {
		resp.ChallengeKind = st.Challenge.Kind
	}
	return resp
}

// Create starts a new session
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	if req.Mode == "" {
		respondError(w, http.StatusBadRequest, "mode is required")
		return
	}

	s, err := h.sessions.CreateSession()
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	if err := s.Do(h.now(), func(c *session.Controller) error { return start(c, req) }); err != nil {
		h.sessions.DeleteSession(s.ID)
		respondDomainError(w, h.log, err)
		return
	}

	h.log.WithFields(logrus.Fields{"session": s.ID, "mode": req.Mode}).Info("Session created")
	respondJSON(w, http.StatusCreated, sessionResponse(s))
}

// Get returns the session status
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, sessionResponse(s))
}

// Delete cancels and removes the session
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())
	h.sessions.DeleteSession(s.ID)
	h.log.WithField("session", s.ID).Info("Session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// Restart starts the session again, keeping its mode unless the request names one
func (h *SessionsHandler) Restart(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	var req StartRequest
	if r.Body != nil && r.Body != http.NoBody {
		if !decodeJSON(w, r, h.validate, &req) {
			return
		}
	}

	err := s.Do(h.now(), func(c *session.Controller) error {
		if req.Mode == "" {
			req.Mode = c.Mode()
		}
		if req.Mode == "" {
			return &session.ValidationError{Field: "mode", Reason: "must not be empty"}
		}
		return start(c, req)
	})
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse(s))
}

// Observe feeds one frame observation to the session. Frames dropped by the
// cadence policy are answered with 202.
func (h *SessionsHandler) Observe(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	var obs session.Observation
	if !decodeJSON(w, r, h.validate, &obs) {
		return
	}

	var res session.Result
	err := s.Do(h.now(), func(c *session.Controller) error {
		var err error
		res, err = c.OnObservation(&obs)
		return err
	})
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	if res.Dropped {
		respondJSON(w, http.StatusAccepted, res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Enroll admits the latest face of a register session under the given name
func (h *SessionsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	var req EnrollRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}

	var enrolled identity.EnrolledIdentity
	err := s.Do(h.now(), func(c *session.Controller) error {
		var err error
		enrolled, err = c.Enroll(r.Context(), req.Name)
		return err
	})
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"session":  s.ID,
		"identity": enrolled.ID,
		"name":     sanitizeForLog(enrolled.Name),
	}).Info("Identity enrolled")
	respondJSON(w, http.StatusCreated, enrolled.Summary())
}

// Events streams session events via SSE
func (h *SessionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())
	streamSSEEvents(w, r, s, h.keepAlive)
}

// IdentifyResponse is the verdict of a one-shot identification.
type IdentifyResponse struct {
	Accepted bool            `json:"accepted"`
	Verdict  session.Verdict `json:"verdict"`
}

// Identify matches a single observation without a liveness challenge
func (h *SessionsHandler) Identify(w http.ResponseWriter, r *http.Request) {
	var obs session.Observation
	if !decodeJSON(w, r, h.validate, &obs) {
		return
	}

	v, err := h.sessions.Detached().Identify(&obs)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, IdentifyResponse{Accepted: v.Accepted(), Verdict: v})
}
