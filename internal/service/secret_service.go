package service

import (
	"context"
	"fmt"

	"github.com/haatos/securegate/internal/security"
	"github.com/haatos/securegate/internal/store"
)

// SecretResolver yields decrypted secret values for jobs that declare
// them by name. Secrets are injected into exactly the declaring job's
// environment, never globally.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, name string) (string, error)
}

type SecretService struct {
	store        store.SecretStore
	aesEncrypter security.Encrypter
}

func NewSecretService(secretStore store.SecretStore, aesEncrypter security.Encrypter) *SecretService {
	return &SecretService{store: secretStore, aesEncrypter: aesEncrypter}
}

func (s *SecretService) SetSecret(ctx context.Context, name, value string) (*store.Secret, error) {
	return s.store.UpsertSecret(ctx, name, s.aesEncrypter.EncryptAES(value))
}

func (s *SecretService) ResolveSecret(ctx context.Context, name string) (string, error) {
	secret, err := s.store.ReadSecretByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("err reading secret '%s': %w", name, err)
	}
	value, err := s.aesEncrypter.DecryptAES(secret.ValueHash)
	if err != nil {
		return "", fmt.Errorf("err decrypting secret '%s': %w", name, err)
	}
	return string(value), nil
}

func (s *SecretService) DeleteSecret(ctx context.Context, name string) error {
	return s.store.DeleteSecret(ctx, name)
}

func (s *SecretService) ListSecrets(ctx context.Context) ([]store.Secret, error) {
	return s.store.ListSecrets(ctx)
}
