package internal

const (
	DotEnvPath              = "./.env"
	MigrationsDir           = "migrations"
	DBTimestampLayout       = "2006-01-02 15:04:05"
	RunDirLayout            = "20060102_150405000"
	WebhookTriggerKeyHeader = "X-SecureGate-Webhook-Key"
	APIKeyHeader            = "X-SecureGate-API-Key"

	EventManual      = "manual"
	EventPush        = "push"
	EventPullRequest = "pull_request"
	EventSchedule    = "schedule"
)
