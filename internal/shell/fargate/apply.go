package fargate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/docker/go-connections/nat"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/microplan/internal/core/backend"
	"github.com/artpar/microplan/internal/core/graph"
	"github.com/artpar/microplan/internal/core/promise"
	coreprovider "github.com/artpar/microplan/internal/core/provider"
)

const (
	managedByTag       = "ManagedBy"
	managedByValue     = "microplan"
	defaultParallelism = 4
)

// ImagePublisher builds a local context and publishes it to a registry.
type ImagePublisher interface {
	Publish(ctx context.Context, repository, contextDir string) (string, error)
}

// ApplyOptions tunes how a plan is realized.
type ApplyOptions struct {
	// ExecutionRoleARN is attached to task definitions when set. It is needed
	// to pull from private ECR repositories.
	ExecutionRoleARN string

	// Parallelism bounds concurrent AWS calls within one dependency level.
	Parallelism int
}

// Applier realizes a planned resource graph on AWS.
//
// Resources are created level by level: everything in a level depends only
// on earlier levels, so a level runs concurrently. On the first failure no
// further level starts, every Output still pending is rejected with the
// failure, and already created resources are left in place.
type Applier struct {
	graph   *graph.Graph
	clients Clients
	images  ImagePublisher
	opts    ApplyOptions
	logger  *slog.Logger

	mu       sync.Mutex
	physical map[string]string
}

// NewApplier creates an Applier for g. images may be nil when no image is
// built from a local context.
func NewApplier(g *graph.Graph, clients Clients, images ImagePublisher, opts ApplyOptions, logger *slog.Logger) *Applier {
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	return &Applier{
		graph:    g,
		clients:  clients,
		images:   images,
		opts:     opts,
		logger:   logger.With("component", "applier"),
		physical: make(map[string]string),
	}
}

// Apply creates every planned resource and settles the plan's Outputs.
func (a *Applier) Apply(ctx context.Context) error {
	levels := a.graph.Levels()
	a.logger.Info("applying plan", "resources", a.graph.Len(), "levels", len(levels))

	for i, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.opts.Parallelism)
		for _, r := range level {
			g.Go(func() error {
				if err := a.realize(gctx, r); err != nil {
					return backend.NewProvisioningError("Apply", r.ID(), "failed to create "+r.Type, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			a.logger.Error("apply failed", "level", i, "error", err)
			a.rejectPending(err)
			return err
		}
	}

	a.logger.Info("plan applied", "resources", a.graph.Len())
	return nil
}

// Physical returns the AWS identifier recorded for each realized resource ID.
func (a *Applier) Physical() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.physical))
	for k, v := range a.physical {
		out[k] = v
	}
	return out
}

func (a *Applier) record(r graph.Resource, physicalID string) {
	a.mu.Lock()
	a.physical[r.ID()] = physicalID
	a.mu.Unlock()
	a.logger.Info("resource realized", "type", r.Type, "id", r.ID(), "physical_id", physicalID)
}

func (a *Applier) rejectPending(err error) {
	for _, r := range a.graph.Resources() {
		if p, ok := r.Properties.(rejecter); ok {
			p.rejectPending(err)
		}
	}
}

func (a *Applier) realize(ctx context.Context, r graph.Resource) error {
	switch p := r.Properties.(type) {
	case *clusterProps:
		return a.realizeCluster(ctx, r, p)
	case *loadBalancerProps:
		return a.realizeLoadBalancer(ctx, r, p)
	case *listenerProps:
		return a.realizeListener(ctx, r, p)
	case *imageProps:
		return a.realizeImage(ctx, r, p)
	case *serviceProps:
		return a.realizeService(ctx, r, p)
	default:
		return fmt.Errorf("unsupported resource type %q", r.Type)
	}
}

// =============================================================================
// Cluster and Networking
// =============================================================================

func (a *Applier) realizeCluster(ctx context.Context, r graph.Resource, p *clusterProps) error {
	out, err := a.clients.ECS.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName: aws.String(p.Name),
		Tags:        []ecstypes.Tag{{Key: aws.String(managedByTag), Value: aws.String(managedByValue)}},
	})
	if err != nil {
		return fmt.Errorf("failed to create ECS cluster: %w", err)
	}
	if out.Cluster == nil {
		return ErrEmptyResponse
	}

	vpcID, err := a.defaultVPC(ctx)
	if err != nil {
		return err
	}
	subnets, err := a.subnets(ctx, vpcID)
	if err != nil {
		return err
	}
	sgID, err := a.ensureSecurityGroup(ctx, p.Name, vpcID)
	if err != nil {
		return err
	}
	if err := a.authorizeIngress(ctx, sgID, a.listenerPorts(r.ID())); err != nil {
		return err
	}

	clusterARN := aws.ToString(out.Cluster.ClusterArn)
	a.record(r, clusterARN)
	_ = p.Network.Resolve(Network{
		ClusterARN:      clusterARN,
		VpcID:           vpcID,
		SubnetIDs:       subnets,
		SecurityGroupID: sgID,
	})
	return nil
}

func (a *Applier) defaultVPC(ctx context.Context) (string, error) {
	out, err := a.clients.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{{Name: aws.String("is-default"), Values: []string{"true"}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe VPCs: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return "", ErrNoDefaultVPC
	}
	return aws.ToString(out.Vpcs[0].VpcId), nil
}

func (a *Applier) subnets(ctx context.Context, vpcID string) ([]string, error) {
	out, err := a.clients.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("default-for-az"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe subnets: %w", err)
	}
	ids := make([]string, 0, len(out.Subnets))
	for _, s := range out.Subnets {
		ids = append(ids, aws.ToString(s.SubnetId))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoSubnets, vpcID)
	}
	return ids, nil
}

// ensureSecurityGroup creates the cluster security group, or finds it if a
// previous apply already created it.
func (a *Applier) ensureSecurityGroup(ctx context.Context, clusterName, vpcID string) (string, error) {
	name := securityGroupName(clusterName)
	out, err := a.clients.EC2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("microplan cluster - " + clusterName),
		VpcId:       aws.String(vpcID),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeSecurityGroup,
			Tags:         []ec2types.Tag{{Key: aws.String(managedByTag), Value: aws.String(managedByValue)}},
		}},
	})
	if err == nil {
		return aws.ToString(out.GroupId), nil
	}
	if !hasErrorCode(err, "InvalidGroup.Duplicate") {
		return "", fmt.Errorf("failed to create security group: %w", err)
	}

	existing, err := a.clients.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-name"), Values: []string{name}},
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe security group %s: %w", name, err)
	}
	if len(existing.SecurityGroups) == 0 {
		return "", fmt.Errorf("security group %s: %w", name, ErrEmptyResponse)
	}
	a.logger.Info("security group already exists", "name", name)
	return aws.ToString(existing.SecurityGroups[0].GroupId), nil
}

// authorizeIngress opens the listener ports to the internet and all traffic
// between members of the group, which covers load balancer to task traffic.
func (a *Applier) authorizeIngress(ctx context.Context, sgID string, ports []int) error {
	perms := []ec2types.IpPermission{{
		IpProtocol:       aws.String("-1"),
		UserIdGroupPairs: []ec2types.UserIdGroupPair{{GroupId: aws.String(sgID)}},
	}}
	for _, port := range ports {
		perms = append(perms, ec2types.IpPermission{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(int32(port)),
			ToPort:     aws.Int32(int32(port)),
			IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0"), Description: aws.String("listener")}},
		})
	}

	_, err := a.clients.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(sgID),
		IpPermissions: perms,
	})
	if err != nil && !hasErrorCode(err, "InvalidPermission.Duplicate") {
		return fmt.Errorf("failed to configure security group: %w", err)
	}
	return nil
}

// listenerPorts returns the distinct listener ports planned in a cluster.
func (a *Applier) listenerPorts(clusterID string) []int {
	var ports []int
	seen := make(map[int]bool)
	for _, child := range a.graph.Children(clusterID) {
		l, ok := child.Properties.(*listenerProps)
		if !ok || seen[l.Port] {
			continue
		}
		seen[l.Port] = true
		ports = append(ports, l.Port)
	}
	return ports
}

func (a *Applier) network(clusterID string) (Network, error) {
	r, ok := a.graph.Get(clusterID)
	if !ok {
		return Network{}, fmt.Errorf("%w: cluster %s", ErrUnresolvedInput, clusterID)
	}
	return poll(r.Properties.(*clusterProps).Network, "cluster "+clusterID)
}

// =============================================================================
// Load Balancing
// =============================================================================

func (a *Applier) realizeLoadBalancer(ctx context.Context, r graph.Resource, p *loadBalancerProps) error {
	net, err := a.network(r.Parent)
	if err != nil {
		return err
	}

	out, err := a.clients.ELB.CreateLoadBalancer(ctx, &elb.CreateLoadBalancerInput{
		Name:           aws.String(elbName(p.Name)),
		Subnets:        net.SubnetIDs,
		SecurityGroups: []string{net.SecurityGroupID},
		Scheme:         elbtypes.LoadBalancerSchemeEnumInternetFacing,
		Type:           elbtypes.LoadBalancerTypeEnumApplication,
		Tags:           []elbtypes.Tag{{Key: aws.String(managedByTag), Value: aws.String(managedByValue)}},
	})
	if err != nil {
		return fmt.Errorf("failed to create load balancer: %w", err)
	}
	if len(out.LoadBalancers) == 0 {
		return ErrEmptyResponse
	}

	lb := out.LoadBalancers[0]
	a.record(r, aws.ToString(lb.LoadBalancerArn))
	_ = p.Info.Resolve(loadBalancerInfo{
		ARN:     aws.ToString(lb.LoadBalancerArn),
		DNSName: aws.ToString(lb.DNSName),
	})
	return nil
}

func (a *Applier) realizeListener(ctx context.Context, r graph.Resource, p *listenerProps) error {
	net, err := a.network(r.Parent)
	if err != nil {
		return err
	}
	lbRes, ok := a.graph.Get(p.LoadBalancer)
	if !ok {
		return fmt.Errorf("%w: load balancer %s", ErrUnresolvedInput, p.LoadBalancer)
	}
	lb, err := poll(lbRes.Properties.(*loadBalancerProps).Info, "load balancer "+p.LoadBalancer)
	if err != nil {
		return err
	}

	tg, err := a.clients.ELB.CreateTargetGroup(ctx, &elb.CreateTargetGroupInput{
		Name:       aws.String(targetGroupName(p.Name)),
		Port:       aws.Int32(int32(p.Port)),
		Protocol:   elbtypes.ProtocolEnumHttp,
		VpcId:      aws.String(net.VpcID),
		TargetType: elbtypes.TargetTypeEnumIp,
	})
	if err != nil {
		return fmt.Errorf("failed to create target group: %w", err)
	}
	if len(tg.TargetGroups) == 0 {
		return ErrEmptyResponse
	}
	tgARN := aws.ToString(tg.TargetGroups[0].TargetGroupArn)

	out, err := a.clients.ELB.CreateListener(ctx, &elb.CreateListenerInput{
		LoadBalancerArn: aws.String(lb.ARN),
		Port:            aws.Int32(int32(p.Port)),
		Protocol:        elbtypes.ProtocolEnumHttp,
		DefaultActions: []elbtypes.Action{{
			Type:           elbtypes.ActionTypeEnumForward,
			TargetGroupArn: aws.String(tgARN),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	if len(out.Listeners) == 0 {
		return ErrEmptyResponse
	}

	a.record(r, aws.ToString(out.Listeners[0].ListenerArn))
	_ = p.TargetGroupARN.Resolve(tgARN)
	_ = p.Address.Resolve(backend.Address{Host: lb.DNSName, Port: p.Port})
	return nil
}

// =============================================================================
// Images
// =============================================================================

func (a *Applier) realizeImage(ctx context.Context, r graph.Resource, p *imageProps) error {
	if p.URI.Settled() {
		uri, _, _ := p.URI.Poll()
		a.record(r, uri)
		return nil
	}
	if a.images == nil {
		return ErrNoImagePublisher
	}

	uri, err := a.images.Publish(ctx, p.Name, p.Source)
	if err != nil {
		return fmt.Errorf("failed to publish image from %s: %w", p.Source, err)
	}
	a.record(r, uri)
	_ = p.URI.Resolve(uri)
	return nil
}

// =============================================================================
// Services
// =============================================================================

func (a *Applier) realizeService(ctx context.Context, r graph.Resource, p *serviceProps) error {
	net, err := a.network(r.Parent)
	if err != nil {
		return err
	}
	input, err := a.taskDefinition(p)
	if err != nil {
		return err
	}
	lbs, err := a.serviceLoadBalancers(p)
	if err != nil {
		return err
	}

	td, err := a.clients.ECS.RegisterTaskDefinition(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to register task definition: %w", err)
	}
	if td.TaskDefinition == nil {
		return ErrEmptyResponse
	}

	out, err := a.clients.ECS.CreateService(ctx, &ecs.CreateServiceInput{
		ServiceName:    aws.String(p.Name),
		Cluster:        aws.String(net.ClusterARN),
		TaskDefinition: td.TaskDefinition.TaskDefinitionArn,
		DesiredCount:   aws.Int32(int32(p.DesiredCount)),
		LaunchType:     ecstypes.LaunchTypeFargate,
		LoadBalancers:  lbs,
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        net.SubnetIDs,
				SecurityGroups: []string{net.SecurityGroupID},
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	if out.Service == nil {
		return ErrEmptyResponse
	}

	arn := aws.ToString(out.Service.ServiceArn)
	a.record(r, arn)
	_ = p.ARN.Resolve(arn)
	return nil
}

// taskDefinition builds a Fargate task definition for the group. The task
// size is the smallest valid Fargate size holding the summed reservations.
func (a *Applier) taskDefinition(p *serviceProps) (*ecs.RegisterTaskDefinitionInput, error) {
	var (
		defs     []ecstypes.ContainerDefinition
		cpu, mem int
	)
	for _, e := range p.Containers.Entries() {
		d := e.Descriptor
		uri, err := poll(d.Image.URI, "image "+d.Image.Name)
		if err != nil {
			return nil, err
		}
		mappings, err := portMappings(d.Listeners)
		if err != nil {
			return nil, err
		}

		def := ecstypes.ContainerDefinition{
			Name:              aws.String(e.Key),
			Image:             aws.String(uri),
			Essential:         aws.Bool(d.Essential),
			Cpu:               int32(d.Limits.CPUShares),
			MemoryReservation: aws.Int32(int32(d.Limits.MemoryMiB)),
			PortMappings:      mappings,
		}
		// awsvpc tasks share a network namespace and reject links, so a
		// link becomes a start-order dependency.
		for _, target := range d.Links {
			def.DependsOn = append(def.DependsOn, ecstypes.ContainerDependency{
				ContainerName: aws.String(target),
				Condition:     ecstypes.ContainerConditionStart,
			})
		}
		defs = append(defs, def)
		cpu += d.Limits.CPUShares
		mem += d.Limits.MemoryMiB
	}

	size, err := coreprovider.FargateTaskSize(cpu, mem)
	if err != nil {
		return nil, err
	}

	input := &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(p.Name),
		ContainerDefinitions:    defs,
		Cpu:                     aws.String(strconv.Itoa(size.CPUUnits)),
		Memory:                  aws.String(strconv.Itoa(size.MemoryMiB)),
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
	}
	if a.opts.ExecutionRoleARN != "" {
		input.ExecutionRoleArn = aws.String(a.opts.ExecutionRoleARN)
	}
	return input, nil
}

func (a *Applier) serviceLoadBalancers(p *serviceProps) ([]ecstypes.LoadBalancer, error) {
	var lbs []ecstypes.LoadBalancer
	for _, e := range p.Containers.Entries() {
		for _, l := range e.Descriptor.Listeners {
			id := graph.ResourceID(l.Frontend.Scope.Name, l.Name)
			res, ok := a.graph.Get(id)
			if !ok {
				return nil, fmt.Errorf("%w: listener %s", ErrUnresolvedInput, id)
			}
			tgARN, err := poll(res.Properties.(*listenerProps).TargetGroupARN, "listener "+id)
			if err != nil {
				return nil, err
			}
			lbs = append(lbs, ecstypes.LoadBalancer{
				TargetGroupArn: aws.String(tgARN),
				ContainerName:  aws.String(e.Key),
				ContainerPort:  aws.Int32(int32(l.Port)),
			})
		}
	}
	return lbs, nil
}

// portMappings converts listener ports to awsvpc port mappings. Host ports
// are omitted because awsvpc requires them to equal the container port.
func portMappings(listeners []backend.ListenerHandle) ([]ecstypes.PortMapping, error) {
	var mappings []ecstypes.PortMapping
	seen := make(map[nat.Port]bool)
	for _, l := range listeners {
		port, err := nat.NewPort("tcp", strconv.Itoa(l.Port))
		if err != nil {
			return nil, fmt.Errorf("invalid port %d: %w", l.Port, err)
		}
		if seen[port] {
			continue
		}
		seen[port] = true
		mappings = append(mappings, ecstypes.PortMapping{
			ContainerPort: aws.Int32(int32(port.Int())),
			Protocol:      ecstypes.TransportProtocol(port.Proto()),
		})
	}
	return mappings, nil
}

// poll reads an upstream Output that must already have settled.
func poll[T any](o *promise.Output[T], what string) (T, error) {
	v, settled, err := o.Poll()
	if !settled {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrUnresolvedInput, what)
	}
	return v, err
}
