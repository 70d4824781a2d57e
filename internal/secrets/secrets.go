// Package secrets abstracts the credential store holding the token-signing
// secret. The server reads it once per process through a Cache and reuses the
// warm value on every authentication.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

// ErrNotFound indicates the named secret does not exist in the store.
var ErrNotFound = errors.New("secret not found")

// Store fetches named secrets.
type Store interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvStore resolves secrets from environment variables, for dev and tests.
type EnvStore struct{}

func (EnvStore) GetSecret(_ context.Context, name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("%w: env %s", ErrNotFound, name)
	}
	return v, nil
}

// ManagerStore resolves secrets from AWS Secrets Manager.
type ManagerStore struct {
	api secretsmanageriface.SecretsManagerAPI
}

func NewManagerStore(region string) (*ManagerStore, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &ManagerStore{api: secretsmanager.New(sess)}, nil
}

// NewManagerStoreWithAPI wires a caller-provided client, used by tests.
func NewManagerStoreWithAPI(api secretsmanageriface.SecretsManagerAPI) *ManagerStore {
	return &ManagerStore{api: api}
}

func (s *ManagerStore) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("secrets manager: %w", err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("%w: %s has no string value", ErrNotFound, name)
	}
	return *out.SecretString, nil
}

// Cache lazily fetches one named secret and keeps it warm for the life of the
// process. Only successful fetches are cached; a failed fetch is retried on
// the next Get so a transient store outage does not wedge authentication.
type Cache struct {
	store Store
	name  string

	mu     sync.Mutex
	value  string
	loaded bool
}

func NewCache(store Store, name string) *Cache {
	return &Cache{store: store, name: name}
}

// Get returns the cached secret, fetching it from the store on first use.
func (c *Cache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.value, nil
	}
	v, err := c.store.GetSecret(ctx, c.name)
	if err != nil {
		return "", err
	}
	c.value = v
	c.loaded = true
	return v, nil
}

// Invalidate drops the cached value so the next Get re-fetches. Used for
// secret rotation.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.value = ""
	c.loaded = false
	c.mu.Unlock()
}
