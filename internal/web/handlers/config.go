package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/kozaktomas/face-gate/internal/liveness"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response.
// Capture clients read the detector options and frame interval from here.
type ConfigResponse struct {
	EmbeddingDim       int                   `json:"embedding_dim"`
	LoginThreshold     float64               `json:"login_threshold"`
	LivenessThreshold  float64               `json:"liveness_threshold"`
	DuplicateThreshold float64               `json:"duplicate_threshold"`
	ChallengeKinds     []liveness.Kind       `json:"challenge_kinds"`
	Expression         string                `json:"expression"`
	MinFrameIntervalMs int64                 `json:"min_frame_interval_ms"`
	Detector           config.DetectorConfig `json:"detector"`
	StorageDriver      string                `json:"storage_driver"`
}

// Get returns the public engine configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		EmbeddingDim:       h.config.Engine.EmbeddingDim,
		LoginThreshold:     h.config.Engine.LoginThreshold,
		LivenessThreshold:  h.config.Engine.LivenessThreshold,
		DuplicateThreshold: h.config.Engine.DuplicateThreshold,
		ChallengeKinds:     []liveness.Kind{liveness.KindExpression, liveness.KindGeometric},
		Expression:         h.config.Liveness.Expression,
		MinFrameIntervalMs: h.config.Cadence.MinInterval.Milliseconds(),
		Detector:           h.config.Detector,
		StorageDriver:      h.config.Database.Driver,
	}

	respondJSON(w, http.StatusOK, response)
}
