package handler

import (
	"context"
	"net/http"

	"github.com/haatos/securegate/internal"
	"github.com/haatos/securegate/internal/store"
	"github.com/labstack/echo/v4"
)

type APIKeyServicer interface {
	CreateAPIKey(context.Context) (*store.APIKey, error)
	GetAPIKeyByID(context.Context, int64) (*store.APIKey, error)
	GetAPIKeyByValue(context.Context, string) (*store.APIKey, error)
	DeleteAPIKey(context.Context, int64) error
	ListAPIKeys(context.Context) ([]store.APIKey, error)
}

// APIKeyAuth guards the API routes. Webhook trigger endpoints carry
// their own header and are validated separately.
func APIKeyAuth(apiKeyService APIKeyServicer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			value := c.Request().Header.Get(internal.APIKeyHeader)
			if value == "" {
				return newError(nil, http.StatusUnauthorized, "missing api key")
			}
			if _, err := apiKeyService.GetAPIKeyByValue(
				c.Request().Context(), value,
			); err != nil {
				return newError(err, http.StatusUnauthorized, "invalid api key")
			}
			return next(c)
		}
	}
}
