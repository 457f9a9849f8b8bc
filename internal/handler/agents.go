package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/haatos/securegate/internal/store"
	"github.com/labstack/echo/v4"
)

func SetupAgentRoutes(g *echo.Group, h *AgentHandler) {
	g.POST("/agents", h.PostAgent)
	g.GET("/agents", h.GetAgents)
	g.GET("/agents/:agent_id", h.GetAgent)
	g.POST("/agents/:agent_id/test", h.PostTestAgentConnection)
	g.DELETE("/agents/:agent_id", h.DeleteAgent)
}

type AgentServicer interface {
	CreateAgent(
		ctx context.Context,
		name, hostname, username, workspace, description, osType string,
		sshPrivateKey []byte,
	) (*store.Agent, error)
	GetAgentByID(context.Context, int64) (*store.Agent, error)
	ListAgents(context.Context) ([]*store.Agent, error)
	DeleteAgent(context.Context, int64) error
	TestAgentConnection(context.Context, int64) error
}

type AgentHandler struct {
	agentService AgentServicer
}

func NewAgentHandler(agentService AgentServicer) *AgentHandler {
	return &AgentHandler{agentService: agentService}
}

func (h *AgentHandler) PostAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent data")
	}

	a, err := h.agentService.CreateAgent(
		c.Request().Context(),
		ap.Name,
		ap.Hostname,
		ap.Username,
		ap.Workspace,
		ap.Description,
		ap.OSType,
		[]byte(ap.SSHPrivateKey),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err, http.StatusConflict, "an agent with this name already exists")
		}
		return newError(err, http.StatusInternalServerError, "unable to create agent")
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *AgentHandler) GetAgents(c echo.Context) error {
	agents, err := h.agentService.ListAgents(c.Request().Context())
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to list agents")
	}
	return c.JSON(http.StatusOK, agents)
}

func (h *AgentHandler) GetAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent id")
	}

	a, err := h.agentService.GetAgentByID(c.Request().Context(), ap.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "agent not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to read agent")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AgentHandler) PostTestAgentConnection(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent id")
	}

	if err := h.agentService.TestAgentConnection(
		c.Request().Context(), ap.AgentID,
	); err != nil {
		return newError(err, http.StatusBadGateway, "unable to connect to agent")
	}
	return c.NoContent(http.StatusOK)
}

func (h *AgentHandler) DeleteAgent(c echo.Context) error {
	ap := new(AgentParams)
	if err := c.Bind(ap); err != nil {
		return newError(err, http.StatusBadRequest, "invalid agent id")
	}

	if err := h.agentService.DeleteAgent(c.Request().Context(), ap.AgentID); err != nil {
		if isForeignKeyConstraintError(err) {
			return newError(err, http.StatusConflict, "agent is still used by pipelines")
		}
		return newError(err, http.StatusInternalServerError, "unable to delete agent")
	}
	return c.NoContent(http.StatusNoContent)
}
