package handler

import (
	"context"
	"net/http"

	"github.com/haatos/securegate/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupSecretRoutes(g *echo.Group, h *SecretHandler) {
	g.POST("/secrets", h.PostSecret)
	g.GET("/secrets", h.GetSecrets)
	g.DELETE("/secrets/:name", h.DeleteSecret)
}

type SecretServicer interface {
	SetSecret(ctx context.Context, name, value string) (*store.Secret, error)
	DeleteSecret(ctx context.Context, name string) error
	ListSecrets(ctx context.Context) ([]store.Secret, error)
}

type SecretHandler struct {
	secretService SecretServicer
}

func NewSecretHandler(secretService SecretServicer) *SecretHandler {
	return &SecretHandler{secretService: secretService}
}

func (h *SecretHandler) PostSecret(c echo.Context) error {
	sp := new(SecretParams)
	if err := c.Bind(sp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid secret data")
	}
	if sp.Name == "" || sp.Value == "" {
		return newError(nil, http.StatusBadRequest, "secret name and value are required")
	}

	s, err := h.secretService.SetSecret(c.Request().Context(), sp.Name, sp.Value)
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to store secret")
	}
	// value is never echoed back
	return c.JSON(http.StatusCreated, map[string]any{"name": s.Name})
}

func (h *SecretHandler) GetSecrets(c echo.Context) error {
	secrets, err := h.secretService.ListSecrets(c.Request().Context())
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to list secrets")
	}
	names := make([]string, len(secrets))
	for i := range secrets {
		names[i] = secrets[i].Name
	}
	return c.JSON(http.StatusOK, names)
}

func (h *SecretHandler) DeleteSecret(c echo.Context) error {
	sp := new(SecretParams)
	if err := c.Bind(sp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid secret name")
	}

	if err := h.secretService.DeleteSecret(c.Request().Context(), sp.Name); err != nil {
		return newError(err, http.StatusInternalServerError, "unable to delete secret")
	}
	return c.NoContent(http.StatusNoContent)
}
