package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/haatos/securegate/internal/security"
	"github.com/haatos/securegate/internal/store"
)

type AgentService struct {
	agentStore   store.AgentStore
	aesEncrypter security.Encrypter
}

func NewAgentService(agentStore store.AgentStore, aesEncrypter security.Encrypter) *AgentService {
	return &AgentService{agentStore: agentStore, aesEncrypter: aesEncrypter}
}

// EnsureControllerAgent registers the controller machine itself as an
// agent on first startup, so pipelines without an explicit agent have a
// target.
func (s *AgentService) EnsureControllerAgent(ctx context.Context) (*store.Agent, error) {
	agents, err := s.agentStore.ListAgents(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	for _, a := range agents {
		if a.IsController() {
			return a, nil
		}
	}
	return s.agentStore.CreateControllerAgent(ctx)
}

func (s *AgentService) CreateAgent(
	ctx context.Context,
	name, hostname, username, workspace, description, osType string,
	sshPrivateKey []byte,
) (*store.Agent, error) {
	var keyHash *string
	if len(sshPrivateKey) > 0 {
		hash := s.aesEncrypter.EncryptAES(string(sshPrivateKey))
		keyHash = &hash
	}
	return s.agentStore.CreateAgent(
		ctx,
		name,
		hostname,
		username,
		workspace,
		description,
		osType,
		keyHash,
	)
}

func (s *AgentService) GetAgentByID(ctx context.Context, agentID int64) (*store.Agent, error) {
	return s.agentStore.ReadAgentByID(ctx, agentID)
}

func (s *AgentService) ListAgents(ctx context.Context) ([]*store.Agent, error) {
	agents, err := s.agentStore.ListAgents(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return agents, nil
}

func (s *AgentService) DeleteAgent(ctx context.Context, agentID int64) error {
	return s.agentStore.DeleteAgent(ctx, agentID)
}

// TestAgentConnection dials the agent and immediately disconnects.
func (s *AgentService) TestAgentConnection(ctx context.Context, agentID int64) error {
	a, err := s.agentStore.ReadAgentByID(ctx, agentID)
	if err != nil {
		return err
	}
	if a.IsController() {
		return nil
	}
	if a.SSHPrivateKeyHash == nil {
		return errors.New("agent has no ssh private key")
	}
	privateKey, err := s.aesEncrypter.DecryptAES(*a.SSHPrivateKeyHash)
	if err != nil {
		return err
	}
	a.SSHPrivateKey = privateKey

	client, err := dialAgent(a)
	if err != nil {
		return err
	}
	defer client.Close()
	return nil
}
