package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/database"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/logging"
	"github.com/kozaktomas/face-gate/internal/session"
	"github.com/sirupsen/logrus"
)

// IdentitiesHandler handles the enrolled population
type IdentitiesHandler struct {
	dir   *session.Directory
	index *database.NeighborIndex
	log   logrus.FieldLogger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(dir *session.Directory, index *database.NeighborIndex, log logrus.FieldLogger) *IdentitiesHandler {
	if log == nil {
		log = logging.Discard()
	}
	if index == nil {
		index = database.NewNeighborIndex()
	}
	return &IdentitiesHandler{dir: dir, index: index, log: log}
}

// IdentitiesResponse lists enrolled identities in enrollment order.
type IdentitiesResponse struct {
	Identities []identity.Summary `json:"identities"`
	Count      int                `json:"count"`
}

// NeighborsResponse lists the identities closest to one enrolled identity.
type NeighborsResponse struct {
	Identity  identity.Summary    `json:"identity"`
	Neighbors []database.Neighbor `json:"neighbors"`
}

// List returns all enrolled identities
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.dir.List()
	respondJSON(w, http.StatusOK, IdentitiesResponse{Identities: items, Count: len(items)})
}

// Delete removes an enrolled identity
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing identity ID")
		return
	}

	removed, err := h.dir.Remove(r.Context(), id)
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	h.log.WithField("identity", sanitizeForLog(id)).Info("Identity removed")
	w.WriteHeader(http.StatusNoContent)
}

// Neighbors returns the identities whose faces are closest to the given identity.
// The optional limit query parameter defaults to constants.DefaultNeighborLimit.
func (h *IdentitiesHandler) Neighbors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := constants.DefaultNeighborLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, constants.MaxNeighborLimit)
	}

	ident, ok := h.dir.Store().Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	// The population is small and changes rarely; rebuilding keeps the graph in step with it.
	h.index.Build(h.dir.Store().All())

	hits, err := h.index.Neighbors(id, limit)
	if errors.Is(err, database.ErrNotIndexed) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		respondDomainError(w, h.log, err)
		return
	}
	if hits == nil {
		hits = []database.Neighbor{}
	}

	respondJSON(w, http.StatusOK, NeighborsResponse{Identity: ident.Summary(), Neighbors: hits})
}
