package store

import (
	"context"
	"database/sql"
	"runtime"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type AgentSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewAgentSQLiteStore(rdb, rwdb *sql.DB) *AgentSQLiteStore {
	return &AgentSQLiteStore{rdb, rwdb}
}

func (store *AgentSQLiteStore) CreateControllerAgent(
	ctx context.Context,
) (*Agent, error) {
	var osType string
	if runtime.GOOS == "windows" {
		osType = "windows"
	} else {
		osType = "unix"
	}
	a := &Agent{
		Name:        "Controller",
		Hostname:    "localhost",
		Workspace:   "runs",
		Description: "Agent to run pipelines on the controller machine.",
		OSType:      osType,
	}
	query := `insert into agents (
		name,
		hostname,
		workspace,
		description,
		os_type
	)
	values ($1, $2, $3, $4, $5)
	returning agent_id`
	err := sqlscan.Get(
		ctx, store.rwdb, a, query,
		a.Name,
		a.Hostname,
		a.Workspace,
		a.Description,
		a.OSType,
	)
	return a, err
}

func (store *AgentSQLiteStore) CreateAgent(
	ctx context.Context,
	name, hostname, username, workspace, description, osType string,
	sshPrivateKeyHash *string,
) (*Agent, error) {
	a := &Agent{
		Name:              name,
		Hostname:          hostname,
		Username:          username,
		Workspace:         workspace,
		Description:       description,
		OSType:            osType,
		SSHPrivateKeyHash: sshPrivateKeyHash,
	}
	query := `insert into agents (
		name,
		hostname,
		username,
		workspace,
		description,
		os_type,
		ssh_private_key_hash
	)
	values ($1, $2, $3, $4, $5, $6, $7)
	returning agent_id, created_on`
	err := sqlscan.Get(
		ctx, store.rwdb, a, query,
		a.Name,
		a.Hostname,
		a.Username,
		a.Workspace,
		a.Description,
		a.OSType,
		a.SSHPrivateKeyHash,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (store *AgentSQLiteStore) ReadAgentByID(ctx context.Context, id int64) (*Agent, error) {
	a := &Agent{AgentID: id}
	query := "select * from agents where agent_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, a, query, a.AgentID); err != nil {
		return nil, err
	}
	return a, nil
}

func (store *AgentSQLiteStore) DeleteAgent(ctx context.Context, id int64) error {
	query := "delete from agents where agent_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}

func (store *AgentSQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	query := "select * from agents order by name"
	agents := make([]*Agent, 0)
	err := sqlscan.Select(ctx, store.rdb, &agents, query)
	return agents, err
}
