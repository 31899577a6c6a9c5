// Package image builds container images from local contexts and publishes
// them to Amazon ECR.
// This is part of the Imperative Shell - it talks to the Docker daemon and AWS.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
)

// DefaultTag is applied to published images when no tag is configured.
const DefaultTag = "latest"

// DockerAPI is the subset of the Docker client used to build and push.
type DockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ImagePush(ctx context.Context, image string, options dockerimage.PushOptions) (io.ReadCloser, error)
}

// NewDockerClient creates a Docker client. If host is empty, the host comes
// from the environment.
func NewDockerClient(ctx context.Context, host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewImageError("NewDockerClient", "", err.Error(), ErrConnectionFailed)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, NewImageError("NewDockerClient", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return cli, nil
}

// =============================================================================
// Publisher
// =============================================================================

// Publisher builds a local context with Docker and pushes it to ECR.
type Publisher struct {
	docker   DockerAPI
	registry *Registry
	tag      string
	logger   *slog.Logger
}

// NewPublisher creates a Publisher. An empty tag means DefaultTag.
func NewPublisher(docker DockerAPI, reg *Registry, tag string, logger *slog.Logger) *Publisher {
	if tag == "" {
		tag = DefaultTag
	}
	return &Publisher{
		docker:   docker,
		registry: reg,
		tag:      tag,
		logger:   logger.With("component", "publisher"),
	}
}

// Publish builds contextDir, pushes it to the ECR repository for name and
// returns the pushed image URI.
func (p *Publisher) Publish(ctx context.Context, name, contextDir string) (string, error) {
	dir, err := expandContext(contextDir)
	if err != nil {
		return "", NewImageError("Publish", name, err.Error(), ErrContextNotFound)
	}

	repoURI, err := p.registry.EnsureRepository(ctx, RepositoryName(name))
	if err != nil {
		return "", err
	}
	ref := repoURI + ":" + p.tag

	if err := p.build(ctx, dir, ref); err != nil {
		return "", err
	}
	if err := p.push(ctx, ref); err != nil {
		return "", err
	}

	p.logger.Info("image published", "name", name, "context", contextDir, "uri", ref)
	return ref, nil
}

func (p *Publisher) build(ctx context.Context, dir, ref string) error {
	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return NewImageError("Build", ref, fmt.Sprintf("failed to archive context %s: %v", dir, err), errors.Join(ErrBuildFailed, err))
	}
	defer tar.Close()

	resp, err := p.docker.ImageBuild(ctx, tar, build.ImageBuildOptions{
		Tags:        []string{ref},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
		Platform:    "linux/amd64",
	})
	if err != nil {
		return NewImageError("Build", ref, err.Error(), errors.Join(ErrBuildFailed, err))
	}
	defer resp.Body.Close()

	if err := drain(resp.Body); err != nil {
		return NewImageError("Build", ref, err.Error(), errors.Join(ErrBuildFailed, err))
	}
	p.logger.Debug("image built", "ref", ref)
	return nil
}

func (p *Publisher) push(ctx context.Context, ref string) error {
	creds, err := p.registry.Credentials(ctx)
	if err != nil {
		return err
	}
	auth, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		ServerAddress: creds.ServerAddress,
	})
	if err != nil {
		return NewImageError("Push", ref, "failed to encode registry auth", errors.Join(ErrAuthFailed, err))
	}

	body, err := p.docker.ImagePush(ctx, ref, dockerimage.PushOptions{RegistryAuth: auth})
	if err != nil {
		if errdefs.IsUnauthorized(err) || errdefs.IsPermissionDenied(err) {
			return NewImageError("Push", ref, err.Error(), errors.Join(ErrAuthFailed, err))
		}
		return NewImageError("Push", ref, err.Error(), errors.Join(ErrPushFailed, err))
	}
	defer body.Close()

	if err := drain(body); err != nil {
		return NewImageError("Push", ref, err.Error(), errors.Join(ErrPushFailed, err))
	}
	return nil
}

// drain consumes a Docker progress stream and returns the first error the
// daemon reported in it.
func drain(stream io.Reader) error {
	return jsonmessage.DisplayJSONMessagesStream(stream, io.Discard, 0, false, nil)
}

// expandContext resolves "~/" and checks that the context is a directory.
func expandContext(contextDir string) (string, error) {
	dir := contextDir
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, rest)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", contextDir)
	}
	return dir, nil
}
