package handler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/haatos/securegate/internal/store"
	"github.com/haatos/securegate/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func generateAPIKey() *store.APIKey {
	return &store.APIKey{
		ID:        rand.Int63n(10000),
		Value:     uuid.NewString(),
		CreatedOn: time.Now().UTC(),
	}
}

func TestAPIKeyHandler_PostAPIKey(t *testing.T) {
	t.Run("success - api key is created", func(t *testing.T) {
		ak := generateAPIKey()
		ctx := context.Background()
		mockService := new(testutil.MockAPIKeyService)
		mockService.On("CreateAPIKey", ctx).Return(ak, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/api-keys", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewAPIKeyHandler(mockService)

		err := h.PostAPIKey(c)

		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), ak.Value)
		mockService.AssertExpectations(t)
	})

	t.Run("failure - service error", func(t *testing.T) {
		ctx := context.Background()
		mockService := new(testutil.MockAPIKeyService)
		mockService.On("CreateAPIKey", ctx).Return(nil, errors.New("db closed"))

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/api-keys", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewAPIKeyHandler(mockService)

		err := h.PostAPIKey(c)

		assert.Error(t, err)
		var he *echo.HTTPError
		assert.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusInternalServerError, he.Code)
	})
}

func TestAPIKeyHandler_GetAPIKeys(t *testing.T) {
	ak := generateAPIKey()
	ctx := context.Background()
	mockService := new(testutil.MockAPIKeyService)
	mockService.On("ListAPIKeys", ctx).Return([]store.APIKey{*ak}, nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/api-keys", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := NewAPIKeyHandler(mockService)

	err := h.GetAPIKeys(c)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ak.Value)
}

func TestAPIKeyHandler_DeleteAPIKey(t *testing.T) {
	ak := generateAPIKey()
	ctx := context.Background()
	mockService := new(testutil.MockAPIKeyService)
	mockService.On("DeleteAPIKey", ctx, ak.ID).Return(nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/api-keys/:id")
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprintf("%d", ak.ID))
	h := NewAPIKeyHandler(mockService)

	err := h.DeleteAPIKey(c)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	mockService.AssertExpectations(t)
}
