package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/service"
	"github.com/haatos/securegate/internal/store"
	"github.com/haatos/securegate/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestPipelineHandler_PostPipelineRun(t *testing.T) {
	p := &store.Pipeline{PipelineID: 1, Name: "security-scan", Branch: "main"}

	t.Run("success - run is enqueued", func(t *testing.T) {
		ctx := context.Background()
		mockService := new(testutil.MockPipelineService)
		mockService.On("GetPipelineByID", ctx, p.PipelineID).Return(p, nil)
		mockService.On(
			"EnqueuePipelineRun", ctx, p.PipelineID, p.Branch, internal.EventManual,
		).Return(&store.Run{RunID: 1, RunPipelineID: p.PipelineID, Status: store.StatusQueued}, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/pipelines/1/runs", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/pipelines/:pipeline_id/runs")
		c.SetParamNames("pipeline_id")
		c.SetParamValues("1")
		h := NewPipelineHandler(mockService, nil)

		err := h.PostPipelineRun(c)

		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("failure - full queue responds with 429", func(t *testing.T) {
		ctx := context.Background()
		mockService := new(testutil.MockPipelineService)
		mockService.On("GetPipelineByID", ctx, p.PipelineID).Return(p, nil)
		mockService.On(
			"EnqueuePipelineRun", ctx, p.PipelineID, p.Branch, internal.EventManual,
		).Return(nil, service.NewErrRunQueueFull())

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/pipelines/1/runs", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/pipelines/:pipeline_id/runs")
		c.SetParamNames("pipeline_id")
		c.SetParamValues("1")
		h := NewPipelineHandler(mockService, nil)

		err := h.PostPipelineRun(c)

		assert.Error(t, err)
		var he *echo.HTTPError
		assert.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusTooManyRequests, he.Code)
	})
}

func TestPipelineHandler_PostWebhookTrigger(t *testing.T) {
	p := &store.Pipeline{PipelineID: 1, Name: "security-scan", Branch: "main"}
	key := &store.APIKey{ID: 1, Value: "webhook-key"}

	t.Run("failure - full queue responds with 429", func(t *testing.T) {
		ctx := context.Background()
		mockService := new(testutil.MockPipelineService)
		mockService.On(
			"TriggerWebhookRun", ctx, p.PipelineID, internal.EventPush, "",
		).Return(nil, service.NewErrRunQueueFull())
		mockAPIKeys := new(testutil.MockAPIKeyService)
		mockAPIKeys.On("GetAPIKeyByValue", ctx, key.Value).Return(key, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/pipelines/1/trigger", nil)
		req.Header.Set(internal.WebhookTriggerKeyHeader, key.Value)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/webhooks/pipelines/:pipeline_id/trigger")
		c.SetParamNames("pipeline_id")
		c.SetParamValues("1")
		h := NewPipelineHandler(mockService, mockAPIKeys)

		err := h.PostWebhookTrigger(c)

		assert.Error(t, err)
		var he *echo.HTTPError
		assert.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusTooManyRequests, he.Code)
	})
}
