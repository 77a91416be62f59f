package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"opportunity-engine/internal/service"
	"opportunity-engine/pkg/analyzer"
	"opportunity-engine/pkg/logger"
	"opportunity-engine/pkg/metrics"
	"opportunity-engine/pkg/storage"
)

const (
	maxCompetitors = 20
	maxHistory     = 100
)

type Controller struct {
	analyses service.AnalysisService
	log      *logger.Logger
	started  time.Time
}

type StatusResponse struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Uptime    string             `json:"uptime"`
	Jobs      storage.StoreStats `json:"jobs"`
}

type HistoryResponse struct {
	Prospect    string   `json:"prospect_domain"`
	AnalysisIDs []string `json:"analysis_ids"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewController(analyses service.AnalysisService) *Controller {
	return &Controller{
		analyses: analyses,
		log:      logger.GetLogger().WithField("component", "http_controller"),
		started:  time.Now(),
	}
}

// Register mounts the routes on app.
func (c *Controller) Register(app *fiber.App) {
	app.Get("/health", c.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/api/v1")
	v1.Post("/analyses", c.CreateAnalysis)
	v1.Get("/analyses", c.ListAnalyses)
	v1.Get("/analyses/:id", c.GetAnalysis)
}

func (c *Controller) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Jobs:      c.analyses.Stats(),
	})
}

// CreateAnalysis queues an analysis and answers 202 with the job.
func (c *Controller) CreateAnalysis(ctx *fiber.Ctx) error {
	var req service.AnalysisRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request body"})
	}

	req.Prospect = strings.TrimSpace(req.Prospect)
	if req.Prospect == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "prospect_domain is required"})
	}
	if len(req.Competitors) > maxCompetitors {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "too many competitor_domains"})
	}

	job, err := c.analyses.Submit(req)
	if err != nil {
		if errors.Is(err, analyzer.ErrInvalidInput) {
			return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
		}
		c.log.WithError(err).Error("Failed to submit analysis")
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: "analysis could not be started"})
	}

	c.log.WithFields(map[string]interface{}{
		"job_id":      job.ID,
		"prospect":    req.Prospect,
		"competitors": len(req.Competitors),
	}).Info("Analysis submitted")

	ctx.Location("/api/v1/analyses/" + job.ID)
	return ctx.Status(fiber.StatusAccepted).JSON(job)
}

func (c *Controller) GetAnalysis(ctx *fiber.Ctx) error {
	job, ok := c.analyses.Job(ctx.UserContext(), ctx.Params("id"))
	if !ok {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "analysis not found"})
	}
	return ctx.JSON(job)
}

// ListAnalyses returns archived analysis ids for ?prospect=, newest first.
func (c *Controller) ListAnalyses(ctx *fiber.Ctx) error {
	prospect := strings.TrimSpace(ctx.Query("prospect"))
	if prospect == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "prospect query parameter is required"})
	}
	limit := ctx.QueryInt("limit", 20)
	if limit <= 0 || limit > maxHistory {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "limit must be between 1 and 100"})
	}

	ids, err := c.analyses.History(ctx.UserContext(), prospect, limit)
	if err != nil {
		if errors.Is(err, service.ErrNoArchive) {
			return ctx.Status(fiber.StatusNotImplemented).JSON(errorResponse{Error: "analysis history is not enabled"})
		}
		c.log.WithError(err).Error("Failed to list analyses")
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: "analysis history unavailable"})
	}
	if ids == nil {
		ids = []string{}
	}
	return ctx.JSON(HistoryResponse{Prospect: strings.ToLower(prospect), AnalysisIDs: ids})
}
