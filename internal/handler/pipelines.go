package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/haatos/securegate/internal/service"
	"github.com/haatos/securegate/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupPipelineRoutes(g *echo.Group, h *PipelineHandler) {
	g.POST("/pipelines", h.PostPipeline)
	g.GET("/pipelines", h.GetPipelines)
	g.GET("/pipelines/:pipeline_id", h.GetPipeline)
	g.PUT("/pipelines/:pipeline_id", h.PutPipeline)
	g.PUT("/pipelines/:pipeline_id/schedule", h.PutPipelineSchedule)
	g.DELETE("/pipelines/:pipeline_id", h.DeletePipeline)
}

type PipelineServicer interface {
	CreatePipeline(
		ctx context.Context,
		agentID *int64,
		name, description, branch, source string,
	) (*store.Pipeline, error)
	GetPipelineByID(context.Context, int64) (*store.Pipeline, error)
	ListPipelines(context.Context) ([]*store.Pipeline, error)
	UpdatePipeline(
		ctx context.Context,
		pipelineID int64,
		agentID *int64,
		name, description, branch, source string,
	) error
	UpdatePipelineSchedule(context.Context, int64, *string) error
	DeletePipeline(context.Context, int64) error

	EnqueuePipelineRun(ctx context.Context, pipelineID int64, branch, event string) (*store.Run, error)
	TriggerWebhookRun(ctx context.Context, pipelineID int64, event, branch string) (*store.Run, error)
	GetRunByID(context.Context, int64) (*store.Run, error)
	DeleteRun(context.Context, int64) error
	ListPipelineRuns(context.Context, int64) ([]store.Run, error)
	ListPipelineRunsPaginated(context.Context, int64, int64, int64) ([]store.Run, error)
	GetPipelineRunCount(context.Context, int64) (int64, error)
	ListRunJobs(context.Context, int64) ([]store.RunJob, error)
	CancelRun(pipelineID, runID int64) error
	GetPipelineRunQueue(id int64) (*service.RunQueue, bool)
}

type PipelineHandler struct {
	pipelineService PipelineServicer
	apiKeyService   APIKeyServicer
}

func NewPipelineHandler(
	pipelineService PipelineServicer,
	apiKeyService APIKeyServicer,
) *PipelineHandler {
	return &PipelineHandler{
		pipelineService: pipelineService,
		apiKeyService:   apiKeyService,
	}
}

func (h *PipelineHandler) PostPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	p, err := h.pipelineService.CreatePipeline(
		c.Request().Context(),
		pp.PipelineAgentID,
		pp.Name,
		pp.Description,
		pp.Branch,
		pp.Source,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err, http.StatusConflict, "a pipeline with this name already exists")
		}
		return newError(err, http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusCreated, p)
}

func (h *PipelineHandler) GetPipelines(c echo.Context) error {
	pipelines, err := h.pipelineService.ListPipelines(c.Request().Context())
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to list pipelines")
	}
	return c.JSON(http.StatusOK, pipelines)
}

func (h *PipelineHandler) GetPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline id")
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), pp.PipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to read pipeline")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PipelineHandler) PutPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	if err := h.pipelineService.UpdatePipeline(
		c.Request().Context(),
		pp.PipelineID,
		pp.PipelineAgentID,
		pp.Name,
		pp.Description,
		pp.Branch,
		pp.Source,
	); err != nil {
		return newError(err, http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) PutPipelineSchedule(c echo.Context) error {
	sp := new(ScheduleParams)
	if err := c.Bind(sp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid schedule data")
	}

	if err := h.pipelineService.UpdatePipelineSchedule(
		c.Request().Context(), sp.PipelineID, sp.Schedule,
	); err != nil {
		return newError(err, http.StatusBadRequest, "unable to update pipeline schedule")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) DeletePipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline id")
	}

	if err := h.pipelineService.DeletePipeline(
		c.Request().Context(), pp.PipelineID,
	); err != nil {
		if isForeignKeyConstraintError(err) {
			return newError(err, http.StatusConflict, "pipeline has runs, delete them first")
		}
		return newError(err, http.StatusInternalServerError, "unable to delete pipeline")
	}
	return c.NoContent(http.StatusNoContent)
}
