package store

import (
	"context"
	"time"
)

// Secret is an externalized environment value (e.g. a dependency database
// API key). The value is stored AES-encrypted and injected only into jobs
// that declare the secret by name.
type Secret struct {
	SecretID  int64
	Name      string
	ValueHash string
	CreatedOn time.Time
}

type SecretStore interface {
	UpsertSecret(context.Context, string, string) (*Secret, error)
	ReadSecretByName(context.Context, string) (*Secret, error)
	DeleteSecret(context.Context, string) error
	ListSecrets(context.Context) ([]Secret, error)
}
