package handler

type PipelineParams struct {
	PipelineID      int64   `param:"pipeline_id" json:"pipeline_id"`
	PipelineAgentID *int64  `json:"agent_id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Branch          string  `json:"branch"`
	Source          string  `json:"source"`
	Schedule        *string `json:"schedule"`
}

type ScheduleParams struct {
	PipelineID int64   `param:"pipeline_id" json:"pipeline_id"`
	Schedule   *string `json:"schedule"`
}

type RunParams struct {
	PipelineID int64  `param:"pipeline_id"`
	RunID      int64  `param:"run_id"`
	Branch     string `json:"branch" query:"branch"`
}

type WebhookParams struct {
	PipelineID int64  `param:"pipeline_id"`
	Event      string `json:"event"`
	Branch     string `json:"branch"`
}

type ListRunsParams struct {
	PipelineID int64 `param:"pipeline_id"`
	Page       int64 `query:"page"`
}

type ArtifactParams struct {
	RunID int64  `param:"run_id"`
	Name  string `param:"name"`
}

type AgentParams struct {
	AgentID       int64  `param:"agent_id" json:"agent_id"`
	Name          string `json:"name"`
	Hostname      string `json:"hostname"`
	Username      string `json:"username"`
	Workspace     string `json:"workspace"`
	Description   string `json:"description"`
	OSType        string `json:"os_type"`
	SSHPrivateKey string `json:"ssh_private_key"`
}

type SecretParams struct {
	Name  string `param:"name" json:"name"`
	Value string `json:"value"`
}

type APIKeyParams struct {
	ID int64 `param:"id"`
}
