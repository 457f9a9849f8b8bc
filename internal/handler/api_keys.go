package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

func SetupAPIKeyRoutes(g *echo.Group, h *APIKeyHandler) {
	g.POST("/api-keys", h.PostAPIKey)
	g.GET("/api-keys", h.GetAPIKeys)
	g.DELETE("/api-keys/:id", h.DeleteAPIKey)
}

type APIKeyHandler struct {
	apiKeyService APIKeyServicer
}

func NewAPIKeyHandler(apiKeyService APIKeyServicer) *APIKeyHandler {
	return &APIKeyHandler{apiKeyService: apiKeyService}
}

func (h *APIKeyHandler) PostAPIKey(c echo.Context) error {
	key, err := h.apiKeyService.CreateAPIKey(c.Request().Context())
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to create api key")
	}
	return c.JSON(http.StatusCreated, key)
}

func (h *APIKeyHandler) GetAPIKeys(c echo.Context) error {
	keys, err := h.apiKeyService.ListAPIKeys(c.Request().Context())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusInternalServerError, "unable to list api keys")
	}
	return c.JSON(http.StatusOK, keys)
}

func (h *APIKeyHandler) DeleteAPIKey(c echo.Context) error {
	kp := new(APIKeyParams)
	if err := c.Bind(kp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid api key id")
	}

	if err := h.apiKeyService.DeleteAPIKey(c.Request().Context(), kp.ID); err != nil {
		return newError(err, http.StatusInternalServerError, "unable to delete api key")
	}
	return c.NoContent(http.StatusNoContent)
}
