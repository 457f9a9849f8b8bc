package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/service"
	"github.com/labstack/echo/v4"
)

const runsPageSize = 20

func SetupRunRoutes(g *echo.Group, h *PipelineHandler) {
	g.POST("/pipelines/:pipeline_id/runs", h.PostPipelineRun)
	g.GET("/pipelines/:pipeline_id/runs", h.GetPipelineRuns)
	g.GET("/runs/:run_id", h.GetRun)
	g.GET("/runs/:run_id/jobs", h.GetRunJobs)
	g.POST("/pipelines/:pipeline_id/runs/:run_id/cancel", h.PostCancelRun)
	g.DELETE("/runs/:run_id", h.DeleteRun)
	g.GET("/pipelines/:pipeline_id/runs/:run_id/output/sse", h.GetRunOutputSSE)
	g.GET("/pipelines/:pipeline_id/runs/:run_id/status/sse", h.GetRunStatusSSE)
}

// SetupWebhookRoutes registers the trigger endpoint outside the API key
// group: webhooks authenticate with their own header.
func SetupWebhookRoutes(e *echo.Echo, h *PipelineHandler) {
	e.POST("/api/webhooks/pipelines/:pipeline_id/trigger", h.PostWebhookTrigger)
}

func (h *PipelineHandler) PostPipelineRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run data")
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), rp.PipelineID)
	if err != nil {
		return newError(err, http.StatusNotFound, "pipeline not found")
	}
	branch := rp.Branch
	if branch == "" {
		branch = p.Branch
	}

	r, err := h.pipelineService.EnqueuePipelineRun(
		c.Request().Context(), p.PipelineID, branch, internal.EventManual,
	)
	if err != nil {
		if errors.As(err, &service.ErrRunQueueFull{}) {
			return newError(err, http.StatusTooManyRequests, "pipeline run queue is full")
		}
		return newError(err, http.StatusInternalServerError, "unable to create run")
	}

	return c.JSON(http.StatusCreated, r)
}

func (h *PipelineHandler) PostWebhookTrigger(c echo.Context) error {
	apiKeyValue := c.Request().Header.Get(internal.WebhookTriggerKeyHeader)
	wp := new(WebhookParams)
	if err := c.Bind(wp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid webhook data")
	}

	if _, err := h.apiKeyService.GetAPIKeyByValue(
		c.Request().Context(), apiKeyValue,
	); err != nil {
		return newError(err, http.StatusUnauthorized, "invalid webhook key")
	}

	if wp.Event == "" {
		wp.Event = internal.EventPush
	}

	r, err := h.pipelineService.TriggerWebhookRun(
		c.Request().Context(), wp.PipelineID, wp.Event, wp.Branch,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		if errors.As(err, &service.ErrRunQueueFull{}) {
			return newError(err, http.StatusTooManyRequests, "pipeline run queue is full")
		}
		return newError(err, http.StatusInternalServerError, "unable to trigger run")
	}
	if r == nil {
		// event filtered out by the pipeline's trigger spec
		return c.NoContent(http.StatusAccepted)
	}

	return c.JSON(http.StatusCreated, r)
}

func (h *PipelineHandler) GetPipelineRuns(c echo.Context) error {
	lp := new(ListRunsParams)
	if err := c.Bind(lp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline id")
	}

	if lp.Page < 1 {
		lp.Page = 1
	}
	runs, err := h.pipelineService.ListPipelineRunsPaginated(
		c.Request().Context(),
		lp.PipelineID,
		runsPageSize,
		(lp.Page-1)*runsPageSize,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusInternalServerError, "unable to list runs")
	}
	count, err := h.pipelineService.GetPipelineRunCount(c.Request().Context(), lp.PipelineID)
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to count runs")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"runs":  runs,
		"total": count,
		"page":  lp.Page,
	})
}

func (h *PipelineHandler) GetRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	r, err := h.pipelineService.GetRunByID(c.Request().Context(), rp.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "run not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to read run")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *PipelineHandler) GetRunJobs(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	jobs, err := h.pipelineService.ListRunJobs(c.Request().Context(), rp.RunID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusInternalServerError, "unable to list run jobs")
	}
	return c.JSON(http.StatusOK, jobs)
}

func (h *PipelineHandler) PostCancelRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	if err := h.pipelineService.CancelRun(rp.PipelineID, rp.RunID); err != nil {
		return newError(err, http.StatusNotFound, "run not found")
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *PipelineHandler) DeleteRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	if err := h.pipelineService.DeleteRun(c.Request().Context(), rp.RunID); err != nil {
		return newError(err, http.StatusInternalServerError, "unable to delete run")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) GetRunOutputSSE(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return nil
	}

	id := uuid.NewString()
	rq.OutputSSEClients.AddClient(id)
	defer rq.OutputSSEClients.RemoveClient(id)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case out := <-rq.OutputSSEClients.GetClient(id):
			event := &Event{Data: []byte(out)}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
			}
			w.Flush()
		default:
			time.Sleep(time.Second)
		}
	}
}

func (h *PipelineHandler) GetRunStatusSSE(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return nil
	}

	id := uuid.NewString()
	rq.StatusSSEClients.AddClient(id)
	defer rq.StatusSSEClients.RemoveClient(id)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case rj := <-rq.StatusSSEClients.GetClient(id):
			b, err := json.Marshal(rj)
			if err != nil {
				log.Println("err marshaling run job:", err)
				continue
			}
			event := &Event{Data: b}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
			}
			w.Flush()
		default:
			time.Sleep(time.Second)
		}
	}
}
