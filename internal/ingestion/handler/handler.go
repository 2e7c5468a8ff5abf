// Package handler exposes the ingestion trigger endpoint.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"listingportal_backend/internal/ingestion/transport"
	"listingportal_backend/platform/apperr"
	"listingportal_backend/platform/config"
	"listingportal_backend/platform/httpkit"
	"listingportal_backend/platform/validator"
)

// Runner is the pipeline surface the handler triggers.
type Runner interface {
	Run(ctx context.Context, hours, limit int) (transport.RunReport, error)
}

type Handler struct {
	svc      Runner
	validate *validator.Validator
	cfg      config.IngestionConfig
}

func New(svc Runner, validate *validator.Validator, cfg config.IngestionConfig) *Handler {
	return &Handler{svc: svc, validate: validate, cfg: cfg}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/run", h.Run)
}

// Run triggers a synchronous ingestion pass over the requested lookback
// window. The run always answers with a structured summary unless a required
// dependency is entirely unavailable.
func (h *Handler) Run(c *gin.Context) {
	var req transport.RunRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid query parameters"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid run parameters").WithDetails(err.Error()))
		return
	}

	if req.Hours == 0 {
		req.Hours = h.cfg.GetIngestionDefaultHours()
	}
	if req.Limit == 0 {
		req.Limit = h.cfg.GetIngestionDefaultPageSize()
	}

	report, err := h.svc.Run(c.Request.Context(), req.Hours, req.Limit)
	if err != nil {
		status := http.StatusInternalServerError
		message := "ingestion run failed"
		if appErr, ok := err.(*apperr.Error); ok {
			status = appErr.HTTPStatus()
			message = appErr.Message
		}
		httpkit.JSON(c, status, gin.H{
			"success": false,
			"error":   message,
			"details": err.Error(),
		})
		return
	}

	message := "lead ingestion completed"
	if report.Summary.ErrorsCount > 0 {
		message = "lead ingestion completed with errors"
	}
	httpkit.OK(c, transport.RunResponse{
		Success: true,
		Summary: report.Summary,
		Errors:  report.Errors,
		Message: message,
	})
}
