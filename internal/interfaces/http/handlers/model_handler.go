package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/covenantwatch/internal/application/dto"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// ModelRegistry exposes and swaps the active model parameters.
type ModelRegistry interface {
	Parameters() *models.ModelParameters
	SetParameters(params *models.ModelParameters) error
}

// ModelReloader re-reads the parameters file. It reports false and keeps the
// current parameters when the file is invalid.
type ModelReloader interface {
	Reload(ctx context.Context) bool
}

// ModelHandler serves the public model description and the internal
// endpoints an external training pipeline uses to publish new parameters.
// ModelHandler 提供模型信息及内部参数发布接口。
type ModelHandler struct {
	registry  ModelRegistry
	reloader  ModelReloader
	noiseMode constants.NoiseMode
	metrics   service.Metrics
	log       logger.Logger
}

// NewModelHandler creates a ModelHandler. reloader may be nil when no
// parameters file is configured.
func NewModelHandler(registry ModelRegistry, reloader ModelReloader, noiseMode constants.NoiseMode, metrics service.Metrics, log logger.Logger) *ModelHandler {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &ModelHandler{
		registry:  registry,
		reloader:  reloader,
		noiseMode: noiseMode,
		metrics:   metrics,
		log:       log.WithComponent("ModelHandler"),
	}
}

// GetModel describes the active parameters.
// GET /api/v1/model
func (h *ModelHandler) GetModel(c *gin.Context) {
	p := h.registry.Parameters()
	c.JSON(http.StatusOK, dto.ModelInfoResponse{
		Version:      p.Version,
		FeatureOrder: p.FeatureOrder,
		Weights:      p.Weights,
		Bias:         p.Bias,
		NoiseStdDev:  p.NoiseStdDev,
		NoiseMode:    string(h.noiseMode),
	})
}

// PublishParameters swaps in a parameter set pushed by the training pipeline.
// The set is validated against the feature layout before it takes effect.
// PUT /_internal/model
func (h *ModelHandler) PublishParameters(c *gin.Context) {
	var params models.ModelParameters
	if err := c.ShouldBindJSON(&params); err != nil {
		respondError(c, h.log, errors.ErrInvalidRequest("malformed JSON body: "+err.Error()), "publish_model")
		return
	}
	if err := params.Validate(); err != nil {
		respondError(c, h.log, errors.ErrInvalidRequest("invalid model parameters: "+err.Error()), "publish_model")
		return
	}

	previous := h.registry.Parameters().Version
	if err := h.registry.SetParameters(&params); err != nil {
		respondError(c, h.log, err, "publish_model")
		return
	}
	h.metrics.SetModelVersion(params.Version)

	h.log.Info(c.Request.Context(), "Model parameters published",
		logger.String("previous_version", previous),
		logger.String("version", params.Version),
	)
	c.Status(http.StatusNoContent)
}

// ReloadParameters re-reads the configured parameters file.
// POST /_internal/model/reload
func (h *ModelHandler) ReloadParameters(c *gin.Context) {
	if h.reloader == nil {
		respondError(c, h.log, errors.ErrConflict("no model parameters file is configured"), "reload_model")
		return
	}
	if !h.reloader.Reload(c.Request.Context()) {
		respondError(c, h.log, errors.ErrInvalidModel("parameters file rejected, previous parameters kept"), "reload_model")
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": h.registry.Parameters().Version})
}
