// Package fargate implements the managed-container-service backend on AWS ECS
// with the Fargate launch type.
//
// Planning and realization are split. The Backend records every requested
// resource into a resource graph and hands out promise Outputs. The Applier
// later walks that graph in dependency order, calls the AWS APIs and settles
// the Outputs. This is part of the Imperative Shell - it performs I/O with AWS.
package fargate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"

	coreprovider "github.com/artpar/microplan/internal/core/provider"
)

// =============================================================================
// AWS API Surfaces
// =============================================================================

// EC2API is the subset of the EC2 client used to set up cluster networking.
type EC2API interface {
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
}

// ECSAPI is the subset of the ECS client used for clusters and services.
type ECSAPI interface {
	CreateCluster(ctx context.Context, params *ecs.CreateClusterInput, optFns ...func(*ecs.Options)) (*ecs.CreateClusterOutput, error)
	RegisterTaskDefinition(ctx context.Context, params *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
	CreateService(ctx context.Context, params *ecs.CreateServiceInput, optFns ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error)
}

// ELBAPI is the subset of the Elastic Load Balancing v2 client used for
// load balancers, target groups and listeners.
type ELBAPI interface {
	CreateLoadBalancer(ctx context.Context, params *elb.CreateLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerOutput, error)
	CreateTargetGroup(ctx context.Context, params *elb.CreateTargetGroupInput, optFns ...func(*elb.Options)) (*elb.CreateTargetGroupOutput, error)
	CreateListener(ctx context.Context, params *elb.CreateListenerInput, optFns ...func(*elb.Options)) (*elb.CreateListenerOutput, error)
}

// Clients bundles the AWS APIs the Applier calls.
type Clients struct {
	EC2 EC2API
	ECS ECSAPI
	ELB ELBAPI
}

// =============================================================================
// Client Construction
// =============================================================================

// AWSConfig holds what is needed to reach AWS.
type AWSConfig struct {
	Region      string
	Credentials coreprovider.AWSCredentials
}

// LoadAWSConfig resolves an aws.Config. Static keys are used when configured,
// otherwise the default credential chain.
func LoadAWSConfig(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	if err := coreprovider.ValidateAWSRegion(cfg.Region); err != nil {
		return aws.Config{}, err
	}
	if err := coreprovider.ValidateAWSCredentials(cfg.Credentials); err != nil {
		return aws.Config{}, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Credentials.Static() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Credentials.AccessKeyID, cfg.Credentials.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewClients creates SDK clients from an aws.Config.
func NewClients(awsCfg aws.Config) Clients {
	return Clients{
		EC2: ec2.NewFromConfig(awsCfg),
		ECS: ecs.NewFromConfig(awsCfg),
		ELB: elb.NewFromConfig(awsCfg),
	}
}
