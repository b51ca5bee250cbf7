// Package aws implements the provider for the supported AWS resource kinds:
// Elastic Load Balancing v2, EC2 launch templates, Auto Scaling groups and
// policies, and CloudWatch alarms. Each kind lives in its own file with typed
// config and output structs; property bags decode into them via JSON.
package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/smithy-go"

	"github.com/stackr-io/stackr/internal/provider"
)

const defaultRegion = "us-east-1"

type Provider struct {
	mu     sync.Mutex
	region string

	elbv2Client       *elasticloadbalancingv2.Client
	autoscalingClient *autoscaling.Client
	ec2Client         *ec2.Client
	cloudwatchClient  *cloudwatch.Client
}

func New() *Provider {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = defaultRegion
	}
	return &Provider{region: region}
}

func (p *Provider) ensureClients(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elbv2Client != nil {
		return nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("unable to load AWS config: %w", err)
	}

	p.elbv2Client = elasticloadbalancingv2.NewFromConfig(cfg)
	p.autoscalingClient = autoscaling.NewFromConfig(cfg)
	p.ec2Client = ec2.NewFromConfig(cfg)
	p.cloudwatchClient = cloudwatch.NewFromConfig(cfg)
	return nil
}

func (p *Provider) Create(ctx context.Context, kind, name string, props map[string]any) (*provider.Result, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, provider.Permanent("create", kind, err)
	}

	switch kind {
	case "aws:ElasticLoadBalancingV2.LoadBalancer":
		return p.createLoadBalancer(ctx, props)
	case "aws:ElasticLoadBalancingV2.TargetGroup":
		return p.createTargetGroup(ctx, props)
	case "aws:ElasticLoadBalancingV2.Listener":
		return p.createListener(ctx, props)
	case "aws:EC2.LaunchTemplate":
		return p.createLaunchTemplate(ctx, props)
	case "aws:AutoScaling.AutoScalingGroup":
		return p.createAutoScalingGroup(ctx, props)
	case "aws:AutoScaling.ScalingPolicy":
		return p.putScalingPolicy(ctx, props)
	case "aws:CloudWatch.Alarm":
		return p.putAlarm(ctx, props)
	}
	return nil, provider.Permanent("create", kind, fmt.Errorf("unsupported kind"))
}

func (p *Provider) Update(ctx context.Context, kind, id string, props map[string]any) (*provider.Result, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, provider.Permanent("update", kind, err)
	}

	switch kind {
	case "aws:ElasticLoadBalancingV2.LoadBalancer":
		return p.updateLoadBalancer(ctx, id, props)
	case "aws:ElasticLoadBalancingV2.TargetGroup":
		return p.updateTargetGroup(ctx, id, props)
	case "aws:ElasticLoadBalancingV2.Listener":
		return p.updateListener(ctx, id, props)
	case "aws:EC2.LaunchTemplate":
		return p.updateLaunchTemplate(ctx, id, props)
	case "aws:AutoScaling.AutoScalingGroup":
		return p.updateAutoScalingGroup(ctx, id, props)
	case "aws:AutoScaling.ScalingPolicy":
		return p.putScalingPolicy(ctx, props)
	case "aws:CloudWatch.Alarm":
		return p.putAlarm(ctx, props)
	}
	return nil, provider.Permanent("update", kind, fmt.Errorf("unsupported kind"))
}

func (p *Provider) Delete(ctx context.Context, kind, id string) error {
	if err := p.ensureClients(ctx); err != nil {
		return provider.Permanent("delete", kind, err)
	}

	switch kind {
	case "aws:ElasticLoadBalancingV2.LoadBalancer":
		return p.deleteLoadBalancer(ctx, id)
	case "aws:ElasticLoadBalancingV2.TargetGroup":
		return p.deleteTargetGroup(ctx, id)
	case "aws:ElasticLoadBalancingV2.Listener":
		return p.deleteListener(ctx, id)
	case "aws:EC2.LaunchTemplate":
		return p.deleteLaunchTemplate(ctx, id)
	case "aws:AutoScaling.AutoScalingGroup":
		return p.deleteAutoScalingGroup(ctx, id)
	case "aws:AutoScaling.ScalingPolicy":
		return p.deleteScalingPolicy(ctx, id)
	case "aws:CloudWatch.Alarm":
		return p.deleteAlarm(ctx, id)
	}
	return provider.Permanent("delete", kind, fmt.Errorf("unsupported kind"))
}

func (p *Provider) Describe(ctx context.Context, kind, id string) (*provider.Observation, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, provider.Permanent("describe", kind, err)
	}

	switch kind {
	case "aws:ElasticLoadBalancingV2.LoadBalancer":
		return p.describeLoadBalancer(ctx, id)
	case "aws:ElasticLoadBalancingV2.TargetGroup":
		return p.describeTargetGroup(ctx, id)
	case "aws:ElasticLoadBalancingV2.Listener":
		return p.describeListener(ctx, id)
	case "aws:EC2.LaunchTemplate":
		return p.describeLaunchTemplate(ctx, id)
	case "aws:AutoScaling.AutoScalingGroup":
		return p.describeAutoScalingGroup(ctx, id)
	case "aws:AutoScaling.ScalingPolicy":
		return p.describeScalingPolicy(ctx, id)
	case "aws:CloudWatch.Alarm":
		return p.describeAlarm(ctx, id)
	}
	return nil, provider.Permanent("describe", kind, fmt.Errorf("unsupported kind"))
}

// decodeConfig round-trips a property bag through JSON into a typed config
// struct, so each kind's file works with real field types instead of map
// lookups.
func decodeConfig(props map[string]any, out any) error {
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode properties: %w", err)
	}
	return nil
}

// classify wraps an AWS API error with its retry classification. Throttling
// and server-side hiccups are transient; everything else fails the resource.
func classify(op, kind string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestLimitExceeded",
			"TooManyRequestsException", "RequestThrottled",
			"ServiceUnavailable", "ServiceUnavailableException",
			"InternalFailure", "InternalServiceError",
			"RequestTimeout", "RequestTimeoutException",
			"ScalingActivityInProgress", "ResourceInUse", "ResourceInUseException":
			return provider.Transient(op, kind, err)
		}
	}
	return provider.Permanent(op, kind, err)
}

func int32Ptr(i int) *int32 {
	v := int32(i)
	return &v
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
