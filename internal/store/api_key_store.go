package store

import (
	"context"
	"time"
)

// APIKey authorizes webhook triggers and API access.
type APIKey struct {
	ID        int64 `param:"id"`
	Value     string
	CreatedOn time.Time
}

type APIKeyStore interface {
	CreateAPIKey(context.Context, string) (*APIKey, error)
	ReadAPIKeyByID(context.Context, int64) (*APIKey, error)
	ReadAPIKeyByValue(context.Context, string) (*APIKey, error)
	DeleteAPIKey(context.Context, int64) error
	ListAPIKeys(context.Context) ([]APIKey, error)
}
