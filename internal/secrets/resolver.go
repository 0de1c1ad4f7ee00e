package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used by Resolver.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver fetches secret values by name and caches them until Reset.
type Resolver struct {
	client SecretsManagerAPI

	mu    sync.Mutex
	cache map[string]string
}

func NewResolver(client SecretsManagerAPI) *Resolver {
	return &Resolver{
		client: client,
		cache:  make(map[string]string),
	}
}

// Resolve returns the current value of the named secret.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache[name]; ok {
		return v, nil
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("secret_name", name).Msg("Error retrieving secret")
		return "", fmt.Errorf("get secret value %q: %w", name, err)
	}

	value, err := secretValue(out)
	if err != nil {
		return "", fmt.Errorf("decode secret %q: %w", name, err)
	}

	r.cache[name] = value
	return value, nil
}

// Reset drops every cached value so the next Resolve reads the current secret.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.cache)
}

func secretValue(out *secretsmanager.GetSecretValueOutput) (string, error) {
	if out.SecretString != nil {
		return aws.ToString(out.SecretString), nil
	}

	if len(out.SecretBinary) == 0 {
		return "", errors.New("secret has neither SecretString nor SecretBinary")
	}

	// Binary secrets are commonly stored as base64 text; fall back to the raw bytes otherwise.
	raw := strings.TrimSpace(string(out.SecretBinary))
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return string(decoded), nil
	}
	return string(out.SecretBinary), nil
}
