package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/fatih/color"

	"github.com/artpar/microplan/internal/core/backend"
	"github.com/artpar/microplan/internal/core/cluster"
	"github.com/artpar/microplan/internal/core/domain"
	coreprovider "github.com/artpar/microplan/internal/core/provider"
	"github.com/artpar/microplan/internal/core/spec"
	"github.com/artpar/microplan/internal/shell/composer"
	"github.com/artpar/microplan/internal/shell/fargate"
	"github.com/artpar/microplan/internal/shell/image"
	"github.com/artpar/microplan/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess     = 0
	ExitConfigError = 1
	ExitSpecError   = 2
	ExitStoreError  = 3
	ExitPlanError   = 4
	ExitApplyError  = 5
)

// RunError represents an error during a run, with the exit code it maps to.
type RunError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Runner
// =============================================================================

// RunOptions selects what a run does.
type RunOptions struct {
	SpecPath    string
	ComposePath string
	Primary     string
	Apply       bool
	List        bool
	Service     string
}

// Runner composes services onto the configured cluster and records plans.
type Runner struct {
	cfg    *Config
	store  store.Store
	logger *slog.Logger
	out    io.Writer

	// newClients and newPublisher build the AWS side of an apply. They are
	// fields so tests can replace them.
	newClients   func(ctx context.Context) (fargate.Clients, error)
	newPublisher func(ctx context.Context) (fargate.ImagePublisher, func(), error)
}

// NewRunner opens the plan store and creates a Runner writing results to out.
func NewRunner(cfg *Config, logger *slog.Logger, out io.Writer) (*Runner, error) {
	if cfg.Store.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.DSN), 0o755); err != nil {
			return nil, &RunError{Op: "create data directory", Err: err, ExitCode: ExitStoreError}
		}
	}

	st, err := store.NewSQLiteStore(cfg.Store.DSN)
	if err != nil {
		return nil, &RunError{Op: "open store", Err: err, ExitCode: ExitStoreError}
	}

	r := &Runner{
		cfg:    cfg,
		store:  st,
		logger: logger,
		out:    out,
	}
	r.newClients = r.awsClients
	r.newPublisher = r.imagePublisher
	return r, nil
}

// Close releases the plan store.
func (r *Runner) Close() error {
	return r.store.Close()
}

// Run executes one invocation.
func (r *Runner) Run(ctx context.Context, opts RunOptions) error {
	if opts.List {
		return r.list(ctx, opts.Service)
	}

	s, err := loadSpec(opts)
	if err != nil {
		return &RunError{Op: "load spec", Err: err, ExitCode: ExitSpecError}
	}

	plan, svc, fb, err := r.compose(ctx, s)
	if err != nil {
		return err
	}

	if opts.Apply {
		if err := r.apply(ctx, s, plan, svc, fb); err != nil {
			return err
		}
	}

	r.print(plan)
	return nil
}

// =============================================================================
// Steps
// =============================================================================

func loadSpec(opts RunOptions) (*spec.ServiceSpec, error) {
	switch {
	case opts.SpecPath != "" && opts.ComposePath != "":
		return nil, errors.New("-spec and -compose are mutually exclusive")
	case opts.ComposePath != "":
		content, err := os.ReadFile(opts.ComposePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read compose file: %w", err)
		}
		return spec.FromCompose(string(content), opts.Primary)
	case opts.SpecPath != "":
		content, err := os.ReadFile(opts.SpecPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec file: %w", err)
		}
		return spec.ParseServiceSpec(string(content))
	default:
		return nil, errors.New("one of -spec or -compose is required")
	}
}

// compose plans s on the configured cluster and records the plan.
func (r *Runner) compose(ctx context.Context, s *spec.ServiceSpec) (*domain.Plan, *composer.Service, *fargate.Backend, error) {
	kind, err := cluster.ParseKind(r.cfg.Cluster.Kind)
	if err != nil {
		return nil, nil, nil, &RunError{Op: "parse cluster kind", Err: err, ExitCode: ExitConfigError}
	}

	fb := fargate.NewBackend(r.logger)
	registry, err := composer.NewRegistry(r.logger, fb)
	if err != nil {
		return nil, nil, nil, &RunError{Op: "register backends", Err: err, ExitCode: ExitPlanError}
	}

	cl, err := registry.NewCluster(kind, r.cfg.Cluster.Name)
	if err != nil {
		var unsupported *composer.UnsupportedClusterKindError
		if errors.As(err, &unsupported) {
			err = fmt.Errorf("%w (supported: %v)", err, registry.Supported())
		}
		return nil, nil, nil, &RunError{Op: "create cluster", Err: err, ExitCode: ExitPlanError}
	}

	limits := backend.Limits{MemoryMiB: r.cfg.Limits.MemoryMiB, CPUShares: r.cfg.Limits.CPUShares}
	svc, err := composer.New(limits, r.logger).ComposeService(cl, *s)
	if err != nil {
		code := ExitPlanError
		if errors.Is(err, spec.ErrInvalidSpec) {
			code = ExitSpecError
		}
		return nil, nil, nil, &RunError{Op: "compose service", Err: err, ExitCode: code}
	}

	plan, err := domain.NewPlan(s.Name, composer.KindOf(cl), cl.Name(), s.DesiredCount())
	if err != nil {
		return nil, nil, nil, &RunError{Op: "create plan", Err: err, ExitCode: ExitPlanError}
	}
	for _, res := range fb.Graph().Resources() {
		plan.Resources = append(plan.Resources, domain.PlanResource{
			ID:        res.ID(),
			Type:      res.Type,
			DependsOn: res.DependsOn,
		})
	}
	for _, ep := range svc.Endpoints {
		plan.Endpoints = append(plan.Endpoints, domain.PlanEndpoint{Container: ep.Container, Port: ep.Port})
	}

	if err := r.store.SavePlan(ctx, plan); err != nil {
		return nil, nil, nil, &RunError{Op: "save plan", Err: err, ExitCode: ExitStoreError}
	}

	r.logger.Info("plan recorded",
		"plan_id", plan.ID,
		"service", plan.Service,
		"resources", len(plan.Resources),
		"load_balancers", len(fb.Graph().OfType(fargate.TypeLoadBalancer)),
	)
	return plan, svc, fb, nil
}

// apply realizes the plan on AWS and records the outcome.
func (r *Runner) apply(ctx context.Context, s *spec.ServiceSpec, plan *domain.Plan, svc *composer.Service, fb *fargate.Backend) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Apply.Timeout)
	defer cancel()

	clients, err := r.newClients(ctx)
	if err != nil {
		return &RunError{Op: "connect to AWS", Err: err, ExitCode: ExitConfigError}
	}

	var publisher fargate.ImagePublisher
	if needsPublisher(s) {
		pub, closeFn, err := r.newPublisher(ctx)
		if err != nil {
			return &RunError{Op: "connect to image registry", Err: err, ExitCode: ExitConfigError}
		}
		defer closeFn()
		publisher = pub
	}

	applier := fargate.NewApplier(fb.Graph(), clients, publisher, fargate.ApplyOptions{
		ExecutionRoleARN: r.cfg.AWS.ExecutionRoleARN,
		Parallelism:      r.cfg.Apply.Parallelism,
	}, r.logger)

	if applyErr := applier.Apply(ctx); applyErr != nil {
		r.recordFailure(context.WithoutCancel(ctx), plan, applyErr, applier.Physical())
		return &RunError{Op: "apply plan", Err: applyErr, ExitCode: ExitApplyError}
	}

	urls, err := svc.URLs().Await(ctx)
	if err != nil {
		return &RunError{Op: "resolve endpoints", Err: err, ExitCode: ExitApplyError}
	}
	if err := plan.MarkApplied(urls, applier.Physical()); err != nil {
		return &RunError{Op: "record apply", Err: err, ExitCode: ExitPlanError}
	}
	if err := r.store.UpdatePlan(ctx, plan); err != nil {
		return &RunError{Op: "save plan", Err: err, ExitCode: ExitStoreError}
	}
	return nil
}

// recordFailure stores plan as failed. ctx must outlive the apply, which may
// have ended because its own context was cancelled.
func (r *Runner) recordFailure(ctx context.Context, plan *domain.Plan, cause error, physical map[string]string) {
	if err := plan.MarkFailed(cause, physical); err != nil {
		r.logger.Error("failed to mark plan failed", "plan_id", plan.ID, "error", err)
		return
	}
	if err := r.store.UpdatePlan(ctx, plan); err != nil {
		r.logger.Error("failed to record failed plan", "plan_id", plan.ID, "error", err)
	}
}

func needsPublisher(s *spec.ServiceSpec) bool {
	return slices.ContainsFunc(s.Containers(), func(c spec.ContainerSpec) bool {
		return spec.IsBuildContext(c.Image)
	})
}

func (r *Runner) awsConfig(ctx context.Context) (aws.Config, error) {
	return fargate.LoadAWSConfig(ctx, fargate.AWSConfig{
		Region: r.cfg.AWS.Region,
		Credentials: coreprovider.AWSCredentials{
			AccessKeyID:     r.cfg.AWS.AccessKeyID,
			SecretAccessKey: r.cfg.AWS.SecretAccessKey,
		},
	})
}

func (r *Runner) awsClients(ctx context.Context) (fargate.Clients, error) {
	awsCfg, err := r.awsConfig(ctx)
	if err != nil {
		return fargate.Clients{}, err
	}
	return fargate.NewClients(awsCfg), nil
}

func (r *Runner) imagePublisher(ctx context.Context) (fargate.ImagePublisher, func(), error) {
	awsCfg, err := r.awsConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	docker, err := image.NewDockerClient(ctx, r.cfg.Docker.Host)
	if err != nil {
		return nil, nil, err
	}
	registry := image.NewECRRegistry(awsCfg, r.logger)
	closeFn := func() { docker.Close() }
	return image.NewPublisher(docker, registry, r.cfg.Image.Tag, r.logger), closeFn, nil
}

// =============================================================================
// Output
// =============================================================================

var statusColors = map[domain.PlanStatus]*color.Color{
	domain.PlanStatusPlanned: color.New(color.FgYellow, color.Bold),
	domain.PlanStatusApplied: color.New(color.FgGreen, color.Bold),
	domain.PlanStatusFailed:  color.New(color.FgRed, color.Bold),
}

func statusString(s domain.PlanStatus) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(string(s))
	}
	return string(s)
}

func (r *Runner) print(plan *domain.Plan) {
	fmt.Fprintf(r.out, "plan %s (%s)\n", plan.ID, statusString(plan.Status))
	fmt.Fprintf(r.out, "service %s on %s cluster %q, %d replica(s)\n",
		plan.Service, plan.ClusterKind, plan.ClusterName, plan.Replicas)
	for _, res := range plan.Resources {
		if res.PhysicalID != "" {
			fmt.Fprintf(r.out, "  %-18s %s -> %s\n", res.Type, res.ID, res.PhysicalID)
		} else {
			fmt.Fprintf(r.out, "  %-18s %s\n", res.Type, res.ID)
		}
	}
	for _, ep := range plan.Endpoints {
		url := ep.URL
		if url == "" {
			url = "(resolved on apply)"
		}
		fmt.Fprintf(r.out, "endpoint %s:%d %s\n", ep.Container, ep.Port, url)
	}
}

func (r *Runner) list(ctx context.Context, service string) error {
	plans, err := r.store.ListPlans(ctx, service, store.DefaultListOptions())
	if err != nil {
		return &RunError{Op: "list plans", Err: err, ExitCode: ExitStoreError}
	}
	for _, p := range plans {
		fmt.Fprintf(r.out, "%s  %-8s %-20s %s/%s  %s\n",
			p.ID, statusString(p.Status), p.Service, p.ClusterKind, p.ClusterName, p.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
