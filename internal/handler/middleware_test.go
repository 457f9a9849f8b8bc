package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAPIKeyAuth(t *testing.T) {
	okHandler := func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}

	t.Run("valid key passes through", func(t *testing.T) {
		ak := generateAPIKey()
		mockService := new(testutil.MockAPIKeyService)
		mockService.On("GetAPIKeyByValue", mock.Anything, ak.Value).Return(ak, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
		req.Header.Set(internal.APIKeyHeader, ak.Value)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := APIKeyAuth(mockService)(okHandler)(c)

		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing key is rejected", func(t *testing.T) {
		mockService := new(testutil.MockAPIKeyService)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := APIKeyAuth(mockService)(okHandler)(c)

		var he *echo.HTTPError
		assert.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
		mockService.AssertNotCalled(t, "GetAPIKeyByValue")
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		mockService := new(testutil.MockAPIKeyService)
		mockService.On(
			"GetAPIKeyByValue", mock.Anything, mock.Anything,
		).Return(nil, assert.AnError)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/pipelines", nil)
		req.Header.Set(internal.APIKeyHeader, uuid.NewString())
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := APIKeyAuth(mockService)(okHandler)(c)

		var he *echo.HTTPError
		assert.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})
}
