// Package ingestion wires the lead ingestion pipeline: event store client,
// normalizer, aggregator, reconciler, driver, and the trigger endpoint.
package ingestion

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"listingportal_backend/internal/events"
	apphttp "listingportal_backend/internal/http"
	"listingportal_backend/internal/ingestion/aggregator"
	"listingportal_backend/internal/ingestion/client"
	"listingportal_backend/internal/ingestion/handler"
	"listingportal_backend/internal/ingestion/reconciler"
	"listingportal_backend/internal/ingestion/repository"
	"listingportal_backend/internal/ingestion/service"
	"listingportal_backend/platform/config"
	"listingportal_backend/platform/httpkit"
	"listingportal_backend/platform/logger"
	"listingportal_backend/platform/validator"
)

type Config interface {
	config.AnalyticsConfig
	config.IngestionConfig
}

type Module struct {
	service *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, bus events.Bus, validate *validator.Validator, cfg Config, log *logger.Logger) *Module {
	repo := repository.New(pool)
	agg := aggregator.New(repo, bus, log)
	rec := reconciler.New(repo, repo, log)
	svc := service.New(clientSource{client.New(cfg, log)}, agg, rec, bus, log)
	return &Module{
		service: svc,
		handler: handler.New(svc, validate, cfg),
	}
}

func (m *Module) Name() string { return "ingestion" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/ingestion", httpkit.RequireRole("admin")))
}

// Service exposes the pipeline driver for the background worker.
func (m *Module) Service() *service.Service { return m.service }

// clientSource adapts the concrete client to the service's pager interface.
type clientSource struct {
	c *client.Client
}

func (s clientSource) Export(start, end time.Time, eventNames []string, pageSize int) service.Pager {
	return s.c.Export(start, end, eventNames, pageSize)
}
