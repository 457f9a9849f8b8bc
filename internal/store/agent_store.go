package store

import (
	"context"
	"time"
)

// Agent is an execution target for pipeline jobs: either the controller
// machine itself, or a remote host reached over SSH. The private key is
// stored AES-encrypted.
type Agent struct {
	AgentID           int64 `param:"agent_id"`
	Name              string
	Hostname          string
	Username          string
	Workspace         string
	Description       string
	OSType            string
	SSHPrivateKeyHash *string
	CreatedOn         time.Time

	SSHPrivateKey []byte `db:"-"`
}

func (a *Agent) IsController() bool {
	return a.Hostname == "localhost" && a.SSHPrivateKeyHash == nil
}

type AgentStore interface {
	CreateControllerAgent(context.Context) (*Agent, error)
	CreateAgent(context.Context, string, string, string, string, string, string, *string) (*Agent, error)
	ReadAgentByID(context.Context, int64) (*Agent, error)
	DeleteAgent(context.Context, int64) error
	ListAgents(context.Context) ([]*Agent, error)
}
