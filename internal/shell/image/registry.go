package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	smithy "github.com/aws/smithy-go"
)

// credentialRefreshWindow is how long before expiry a cached token is renewed.
const credentialRefreshWindow = 5 * time.Minute

// ECRAPI is the subset of the ECR client used to publish images.
type ECRAPI interface {
	CreateRepository(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// Credentials are registry login credentials for one host.
type Credentials struct {
	Username      string
	Password      string
	ServerAddress string
	Expires       time.Time
}

// Registry manages ECR repositories and caches login tokens.
type Registry struct {
	api    ECRAPI
	logger *slog.Logger

	mu    sync.Mutex
	cache *Credentials
}

// NewRegistry creates a Registry backed by api.
func NewRegistry(api ECRAPI, logger *slog.Logger) *Registry {
	return &Registry{
		api:    api,
		logger: logger.With("registry", "ecr"),
	}
}

// NewECRRegistry creates a Registry from an aws.Config.
func NewECRRegistry(awsCfg aws.Config, logger *slog.Logger) *Registry {
	return NewRegistry(ecr.NewFromConfig(awsCfg), logger)
}

// RepositoryName converts a logical image name into a valid ECR repository
// name: lowercase, with characters outside [a-z0-9._/-] replaced by hyphens.
func RepositoryName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '/', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-./_")
}

// EnsureRepository creates the repository if needed and returns its URI.
func (r *Registry) EnsureRepository(ctx context.Context, name string) (string, error) {
	out, err := r.api.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: aws.String(name),
		ImageScanningConfiguration: &ecrtypes.ImageScanningConfiguration{
			ScanOnPush: true,
		},
	})
	if err == nil {
		if out.Repository == nil {
			return "", NewImageError("EnsureRepository", name, "empty response", ErrRepositoryFailed)
		}
		r.logger.Info("repository created", "repository", name)
		return aws.ToString(out.Repository.RepositoryUri), nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "RepositoryAlreadyExistsException" {
		return "", NewImageError("EnsureRepository", name, err.Error(), errors.Join(ErrRepositoryFailed, err))
	}

	existing, err := r.api.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err != nil {
		return "", NewImageError("EnsureRepository", name, err.Error(), errors.Join(ErrRepositoryFailed, err))
	}
	if len(existing.Repositories) == 0 {
		return "", NewImageError("EnsureRepository", name, "repository not found after create conflict", ErrRepositoryFailed)
	}
	return aws.ToString(existing.Repositories[0].RepositoryUri), nil
}

// Credentials returns a login for the account's registry, reusing a cached
// token until it is close to expiry.
func (r *Registry) Credentials(ctx context.Context) (Credentials, error) {
	r.mu.Lock()
	if r.cache != nil && time.Until(r.cache.Expires) > credentialRefreshWindow {
		creds := *r.cache
		r.mu.Unlock()
		return creds, nil
	}
	r.mu.Unlock()

	creds, err := r.fetch(ctx)
	if err != nil {
		return Credentials{}, err
	}

	r.mu.Lock()
	r.cache = &creds
	r.mu.Unlock()
	return creds, nil
}

func (r *Registry) fetch(ctx context.Context) (Credentials, error) {
	out, err := r.api.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return Credentials{}, NewImageError("Credentials", "", err.Error(), errors.Join(ErrAuthFailed, err))
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		return Credentials{}, NewImageError("Credentials", "", "empty authorization data", ErrAuthFailed)
	}

	data := out.AuthorizationData[0]
	token, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return Credentials{}, NewImageError("Credentials", "", "token is not base64", errors.Join(ErrAuthFailed, err))
	}
	user, pass, ok := strings.Cut(string(token), ":")
	if !ok {
		return Credentials{}, NewImageError("Credentials", "", "invalid token format", ErrAuthFailed)
	}

	expires := time.Now().Add(12 * time.Hour)
	if data.ExpiresAt != nil {
		expires = *data.ExpiresAt
	}
	return Credentials{
		Username:      user,
		Password:      pass,
		ServerAddress: strings.TrimPrefix(aws.ToString(data.ProxyEndpoint), "https://"),
		Expires:       expires,
	}, nil
}

// String hides the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.Username, c.ServerAddress)
}
