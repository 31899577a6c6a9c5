package fargate

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// fakeAWS implements EC2API, ECSAPI and ELBAPI in memory. Every call is
// recorded; failOn makes the named call return the given error.
type fakeAWS struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error

	securityGroups []*ec2.CreateSecurityGroupInput
	ingress        []*ec2.AuthorizeSecurityGroupIngressInput
	loadBalancers  []*elb.CreateLoadBalancerInput
	targetGroups   []*elb.CreateTargetGroupInput
	listeners      []*elb.CreateListenerInput
	taskDefs       []*ecs.RegisterTaskDefinitionInput
	services       []*ecs.CreateServiceInput
}

func newFakeAWS() *fakeAWS {
	return &fakeAWS{failOn: make(map[string]error)}
}

func (f *fakeAWS) clients() Clients {
	return Clients{EC2: f, ECS: f, ELB: f}
}

func (f *fakeAWS) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.failOn[op]
}

func (f *fakeAWS) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// EC2
// -----------------------------------------------------------------------------

func (f *fakeAWS) DescribeVpcs(_ context.Context, _ *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	if err := f.record("DescribeVpcs"); err != nil {
		return nil, err
	}
	return &ec2.DescribeVpcsOutput{Vpcs: []ec2types.Vpc{{VpcId: aws.String("vpc-1")}}}, nil
}

func (f *fakeAWS) DescribeSubnets(_ context.Context, _ *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	if err := f.record("DescribeSubnets"); err != nil {
		return nil, err
	}
	return &ec2.DescribeSubnetsOutput{Subnets: []ec2types.Subnet{
		{SubnetId: aws.String("subnet-a")},
		{SubnetId: aws.String("subnet-b")},
	}}, nil
}

func (f *fakeAWS) DescribeSecurityGroups(_ context.Context, _ *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if err := f.record("DescribeSecurityGroups"); err != nil {
		return nil, err
	}
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: []ec2types.SecurityGroup{{GroupId: aws.String("sg-existing")}}}, nil
}

func (f *fakeAWS) CreateSecurityGroup(_ context.Context, in *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	if err := f.record("CreateSecurityGroup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.securityGroups = append(f.securityGroups, in)
	f.mu.Unlock()
	return &ec2.CreateSecurityGroupOutput{GroupId: aws.String("sg-1")}, nil
}

func (f *fakeAWS) AuthorizeSecurityGroupIngress(_ context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	if err := f.record("AuthorizeSecurityGroupIngress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.ingress = append(f.ingress, in)
	f.mu.Unlock()
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

// -----------------------------------------------------------------------------
// ECS
// -----------------------------------------------------------------------------

func (f *fakeAWS) CreateCluster(_ context.Context, in *ecs.CreateClusterInput, _ ...func(*ecs.Options)) (*ecs.CreateClusterOutput, error) {
	if err := f.record("CreateCluster"); err != nil {
		return nil, err
	}
	arn := "arn:aws:ecs:us-east-1:123456789012:cluster/" + aws.ToString(in.ClusterName)
	return &ecs.CreateClusterOutput{Cluster: &ecstypes.Cluster{ClusterArn: aws.String(arn)}}, nil
}

func (f *fakeAWS) RegisterTaskDefinition(_ context.Context, in *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	if err := f.record("RegisterTaskDefinition"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.taskDefs = append(f.taskDefs, in)
	f.mu.Unlock()
	arn := "arn:aws:ecs:us-east-1:123456789012:task-definition/" + aws.ToString(in.Family) + ":1"
	return &ecs.RegisterTaskDefinitionOutput{TaskDefinition: &ecstypes.TaskDefinition{TaskDefinitionArn: aws.String(arn)}}, nil
}

func (f *fakeAWS) CreateService(_ context.Context, in *ecs.CreateServiceInput, _ ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error) {
	if err := f.record("CreateService"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.services = append(f.services, in)
	f.mu.Unlock()
	arn := "arn:aws:ecs:us-east-1:123456789012:service/" + aws.ToString(in.ServiceName)
	return &ecs.CreateServiceOutput{Service: &ecstypes.Service{ServiceArn: aws.String(arn)}}, nil
}

// -----------------------------------------------------------------------------
// ELB
// -----------------------------------------------------------------------------

func (f *fakeAWS) CreateLoadBalancer(_ context.Context, in *elb.CreateLoadBalancerInput, _ ...func(*elb.Options)) (*elb.CreateLoadBalancerOutput, error) {
	if err := f.record("CreateLoadBalancer"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.loadBalancers = append(f.loadBalancers, in)
	f.mu.Unlock()
	name := aws.ToString(in.Name)
	return &elb.CreateLoadBalancerOutput{LoadBalancers: []elbtypes.LoadBalancer{{
		LoadBalancerArn: aws.String("arn:lb/" + name),
		DNSName:         aws.String(name + ".elb.amazonaws.com"),
	}}}, nil
}

func (f *fakeAWS) CreateTargetGroup(_ context.Context, in *elb.CreateTargetGroupInput, _ ...func(*elb.Options)) (*elb.CreateTargetGroupOutput, error) {
	if err := f.record("CreateTargetGroup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.targetGroups = append(f.targetGroups, in)
	f.mu.Unlock()
	return &elb.CreateTargetGroupOutput{TargetGroups: []elbtypes.TargetGroup{{
		TargetGroupArn: aws.String("arn:tg/" + aws.ToString(in.Name)),
	}}}, nil
}

func (f *fakeAWS) CreateListener(_ context.Context, in *elb.CreateListenerInput, _ ...func(*elb.Options)) (*elb.CreateListenerOutput, error) {
	if err := f.record("CreateListener"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.listeners = append(f.listeners, in)
	f.mu.Unlock()
	arn := fmt.Sprintf("%s/listener/%d", aws.ToString(in.LoadBalancerArn), aws.ToInt32(in.Port))
	return &elb.CreateListenerOutput{Listeners: []elbtypes.Listener{{ListenerArn: aws.String(arn)}}}, nil
}

// fakePublisher returns a registry URI for any build context.
type fakePublisher struct {
	mu        sync.Mutex
	published map[string]string
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, repository, contextDir string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	if p.published == nil {
		p.published = make(map[string]string)
	}
	p.published[repository] = contextDir
	return "123456789012.dkr.ecr.us-east-1.amazonaws.com/" + repository + ":latest", nil
}
