package spec

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// LabelSidecarOf marks a compose service as a sidecar of the named service.
const LabelSidecarOf = "com.microplan.sidecar-of"

// =============================================================================
// Compose Import
// =============================================================================

// FromCompose builds a ServiceSpec from a Docker Compose document.
//
// The primary container is the service named primary. When primary is empty,
// it is the single service without a LabelSidecarOf label. Every other service
// becomes a sidecar; compose services are unordered, so sidecars are sorted by
// name. deploy.replicas of the primary sets Replicas, build.context takes
// precedence over image, and published ports are ignored in favor of targets.
//
// Example:
//
//	services:
//	  my-app:
//	    build: ./app
//	    deploy: {replicas: 3}
//	  nginx-rp:
//	    build: ./nginx
//	    ports: ["80"]
//	    labels: {com.microplan.sidecar-of: my-app}
func FromCompose(content, primary string) (*ServiceSpec, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadCompose(content)
	if err != nil {
		return nil, err
	}

	primaryName, err := pickPrimary(project.Services, primary)
	if err != nil {
		return nil, err
	}

	s := &ServiceSpec{ContainerSpec: convertContainer(project.Services[primaryName])}
	if d := project.Services[primaryName].Deploy; d != nil && d.Replicas != nil {
		s.Replicas = Replicas(*d.Replicas)
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		if name != primaryName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s.Sidecars = append(s.Sidecars, convertContainer(project.Services[name]))
	}

	if err := Validate(*s); err != nil {
		return nil, err
	}
	return s, nil
}

// loadCompose loads a compose document in memory using compose-go.
func loadCompose(content string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &dict); err != nil || dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(content),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("microplan", false)
		opts.SkipNormalization = true
		opts.ResolvePaths = false
		opts.SkipExtends = true
		opts.SkipInclude = true
	})
	if err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}
	if len(project.Services) == 0 {
		return nil, NewParseError("services", "at least one service is required", ErrNoPrimary)
	}
	return project, nil
}

func pickPrimary(services types.Services, primary string) (string, error) {
	if primary != "" {
		if _, ok := services[primary]; !ok {
			return "", NewParseError("services", fmt.Sprintf("primary service %q not found", primary), ErrNoPrimary)
		}
		return primary, nil
	}

	var candidates []string
	for name, svc := range services {
		if _, isSidecar := svc.Labels[LabelSidecarOf]; !isSidecar {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) != 1 {
		sort.Strings(candidates)
		return "", NewParseError("services",
			fmt.Sprintf("expected exactly one service without %s, found %v", LabelSidecarOf, candidates), ErrNoPrimary)
	}
	return candidates[0], nil
}

func convertContainer(svc types.ServiceConfig) ContainerSpec {
	c := ContainerSpec{
		Name:  svc.Name,
		Image: svc.Image,
	}
	if svc.Build != nil && svc.Build.Context != "" {
		c.Image = buildContext(svc.Build.Context)
	}
	for _, p := range svc.Ports {
		c.Ports = append(c.Ports, int(p.Target))
	}
	return c
}

// buildContext keeps a compose build context recognizable as a local
// directory; compose accepts "app" where IsBuildContext needs "./app".
func buildContext(dir string) string {
	if IsBuildContext(dir) {
		return dir
	}
	return "./" + dir
}
