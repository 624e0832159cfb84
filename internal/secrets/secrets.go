// Package secrets reads signing keys from Google Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"

	"trove/internal/config"
)

// Accessor returns the latest value of a named secret.
type Accessor interface {
	Access(ctx context.Context, name string) (string, error)
}

// SecretManager is an Accessor backed by Google Secret Manager.
type SecretManager struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManager creates a Secret Manager client for projectID.
func NewSecretManager(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManager, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP Project ID is not set for the current environment")
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &SecretManager{client: client, projectID: projectID}, nil
}

// ResourceName expands a short secret name into its latest-version resource
// name. Full resource names are returned unchanged.
func ResourceName(projectID, name string) string {
	if strings.HasPrefix(name, "projects/") {
		if strings.Contains(name, "/versions/") {
			return name
		}
		return name + "/versions/latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name)
}

func (s *SecretManager) Access(ctx context.Context, name string) (string, error) {
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: ResourceName(s.projectID, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}
	return string(result.Payload.Data), nil
}

func (s *SecretManager) Close() error {
	return s.client.Close()
}

// JWTSecret returns the token signing key. JWT_SECRET_NAME is read through
// accessor and takes precedence over a literal JWT_SECRET.
func JWTSecret(ctx context.Context, cfg *config.Config, accessor Accessor) (string, error) {
	if cfg.JWTSecretName != "" {
		if accessor == nil {
			return "", fmt.Errorf("JWT_SECRET_NAME is set but no secret accessor is configured")
		}
		secret, err := accessor.Access(ctx, cfg.JWTSecretName)
		if err != nil {
			return "", fmt.Errorf("failed to load JWT secret: %w", err)
		}
		return strings.TrimSpace(secret), nil
	}
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("neither JWT_SECRET nor JWT_SECRET_NAME is set")
	}
	return cfg.JWTSecret, nil
}
