package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/haatos/securegate/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupArtifactRoutes(g *echo.Group, h *ArtifactHandler) {
	g.GET("/runs/:run_id/artifacts", h.GetRunArtifacts)
	g.GET("/runs/:run_id/artifacts/:name", h.GetArtifact)
}

type ArtifactServicer interface {
	Download(ctx context.Context, runID int64, name string) (*store.Artifact, error)
	ListRunArtifacts(ctx context.Context, runID int64) ([]store.Artifact, error)
}

type ArtifactHandler struct {
	artifactService ArtifactServicer
}

func NewArtifactHandler(artifactService ArtifactServicer) *ArtifactHandler {
	return &ArtifactHandler{artifactService: artifactService}
}

func (h *ArtifactHandler) GetRunArtifacts(c echo.Context) error {
	ap := new(ArtifactParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid run id")
	}

	artifacts, err := h.artifactService.ListRunArtifacts(c.Request().Context(), ap.RunID)
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to list artifacts")
	}
	return c.JSON(http.StatusOK, artifacts)
}

func (h *ArtifactHandler) GetArtifact(c echo.Context) error {
	ap := new(ArtifactParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid artifact data")
	}

	a, err := h.artifactService.Download(c.Request().Context(), ap.RunID, ap.Name)
	if err != nil {
		if errors.As(err, &store.ErrArtifactNotFound{}) {
			return newError(err, http.StatusNotFound, "artifact not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to download artifact")
	}

	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, a.Name),
	)
	return c.Blob(http.StatusOK, "application/octet-stream", a.Payload)
}
