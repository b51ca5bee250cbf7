package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	"github.com/stackr-io/stackr/internal/provider"
)

type autoScalingGroupConfig struct {
	Name                   string   `json:"name"`
	LaunchTemplate         string   `json:"launchTemplate"` // launch template id
	MinSize                int      `json:"minSize"`
	MaxSize                int      `json:"maxSize"`
	DesiredCapacity        *int     `json:"desiredCapacity"`
	VPCZoneIdentifier      string   `json:"vpcZoneIdentifier"`
	TargetGroups           []string `json:"targetGroups"` // target group ARNs
	HealthCheckType        string   `json:"healthCheckType"`
	HealthCheckGracePeriod int      `json:"healthCheckGracePeriod"`
	Cooldown               int      `json:"cooldown"`
}

type scalingPolicyConfig struct {
	Name              string `json:"name"`
	AutoScalingGroup  string `json:"autoScalingGroup"` // ASG name
	AdjustmentType    string `json:"adjustmentType"`
	ScalingAdjustment int    `json:"scalingAdjustment"`
	Cooldown          int    `json:"cooldown"`
}

func (p *Provider) createAutoScalingGroup(ctx context.Context, props map[string]any) (*provider.Result, error) {
	var cfg autoScalingGroupConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "aws:AutoScaling.AutoScalingGroup", err)
	}

	input := &autoscaling.CreateAutoScalingGroupInput{
		AutoScalingGroupName: &cfg.Name,
		MinSize:              int32Ptr(cfg.MinSize),
		MaxSize:              int32Ptr(cfg.MaxSize),
	}
	if cfg.DesiredCapacity != nil {
		input.DesiredCapacity = int32Ptr(*cfg.DesiredCapacity)
	}
	if cfg.VPCZoneIdentifier != "" {
		input.VPCZoneIdentifier = &cfg.VPCZoneIdentifier
	}
	if cfg.LaunchTemplate != "" {
		input.LaunchTemplate = &types.LaunchTemplateSpecification{
			LaunchTemplateId: &cfg.LaunchTemplate,
			Version:          strPtr("$Latest"),
		}
	}
	if len(cfg.TargetGroups) > 0 {
		input.TargetGroupARNs = cfg.TargetGroups
	}
	if cfg.HealthCheckType != "" {
		input.HealthCheckType = &cfg.HealthCheckType
	}
	if cfg.HealthCheckGracePeriod > 0 {
		input.HealthCheckGracePeriod = int32Ptr(cfg.HealthCheckGracePeriod)
	}
	if cfg.Cooldown > 0 {
		input.DefaultCooldown = int32Ptr(cfg.Cooldown)
	}

	if _, err := p.autoscalingClient.CreateAutoScalingGroup(ctx, input); err != nil {
		return nil, classify("create", "aws:AutoScaling.AutoScalingGroup", err)
	}

	// The group name doubles as its identifier everywhere in the API.
	return &provider.Result{ID: cfg.Name, Outputs: map[string]any{"name": cfg.Name}}, nil
}

func (p *Provider) updateAutoScalingGroup(ctx context.Context, id string, props map[string]any) (*provider.Result, error) {
	var cfg autoScalingGroupConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("update", "aws:AutoScaling.AutoScalingGroup", err)
	}

	input := &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: &id,
		MinSize:              int32Ptr(cfg.MinSize),
		MaxSize:              int32Ptr(cfg.MaxSize),
	}
	if cfg.DesiredCapacity != nil {
		input.DesiredCapacity = int32Ptr(*cfg.DesiredCapacity)
	}
	if cfg.VPCZoneIdentifier != "" {
		input.VPCZoneIdentifier = &cfg.VPCZoneIdentifier
	}
	if cfg.LaunchTemplate != "" {
		input.LaunchTemplate = &types.LaunchTemplateSpecification{
			LaunchTemplateId: &cfg.LaunchTemplate,
			Version:          strPtr("$Latest"),
		}
	}
	if cfg.HealthCheckType != "" {
		input.HealthCheckType = &cfg.HealthCheckType
	}
	if cfg.HealthCheckGracePeriod > 0 {
		input.HealthCheckGracePeriod = int32Ptr(cfg.HealthCheckGracePeriod)
	}
	if cfg.Cooldown > 0 {
		input.DefaultCooldown = int32Ptr(cfg.Cooldown)
	}

	if _, err := p.autoscalingClient.UpdateAutoScalingGroup(ctx, input); err != nil {
		return nil, classify("update", "aws:AutoScaling.AutoScalingGroup", err)
	}

	// Target group attachments change via attach/detach, not Update.
	if len(cfg.TargetGroups) > 0 {
		_, err := p.autoscalingClient.AttachLoadBalancerTargetGroups(ctx, &autoscaling.AttachLoadBalancerTargetGroupsInput{
			AutoScalingGroupName: &id,
			TargetGroupARNs:      cfg.TargetGroups,
		})
		if err != nil && !strings.Contains(err.Error(), "already attached") {
			return nil, classify("update", "aws:AutoScaling.AutoScalingGroup", err)
		}
	}

	return &provider.Result{ID: id, Outputs: map[string]any{"name": id}}, nil
}

func (p *Provider) deleteAutoScalingGroup(ctx context.Context, id string) error {
	_, err := p.autoscalingClient.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
		AutoScalingGroupName: &id,
		ForceDelete:          boolPtr(true),
	})
	if err != nil && !isNotFound(err) {
		return classify("delete", "aws:AutoScaling.AutoScalingGroup", err)
	}
	return nil
}

func (p *Provider) describeAutoScalingGroup(ctx context.Context, id string) (*provider.Observation, error) {
	resp, err := p.autoscalingClient.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{id},
	})
	if err != nil {
		return nil, classify("describe", "aws:AutoScaling.AutoScalingGroup", err)
	}
	if len(resp.AutoScalingGroups) == 0 {
		return &provider.Observation{Exists: false}, nil
	}

	group := resp.AutoScalingGroups[0]
	props := map[string]any{"name": deref(group.AutoScalingGroupName)}
	if group.MinSize != nil {
		props["minSize"] = int(*group.MinSize)
	}
	if group.MaxSize != nil {
		props["maxSize"] = int(*group.MaxSize)
	}
	if group.DesiredCapacity != nil {
		props["desiredCapacity"] = int(*group.DesiredCapacity)
	}
	if group.VPCZoneIdentifier != nil {
		props["vpcZoneIdentifier"] = *group.VPCZoneIdentifier
	}

	return &provider.Observation{
		Exists:     true,
		Status:     groupStatus(group),
		Properties: props,
		Outputs:    map[string]any{"name": deref(group.AutoScalingGroupName)},
	}, nil
}

// groupStatus reduces instance lifecycle states to a single group status. The
// group counts as in-service once the desired number of instances is healthy.
func groupStatus(group types.AutoScalingGroup) string {
	desired := 0
	if group.DesiredCapacity != nil {
		desired = int(*group.DesiredCapacity)
	}
	inService := 0
	for _, inst := range group.Instances {
		if inst.LifecycleState == types.LifecycleStateInService {
			inService++
		}
	}
	if inService >= desired {
		return "in-service"
	}
	return "scaling"
}

func (p *Provider) putScalingPolicy(ctx context.Context, props map[string]any) (*provider.Result, error) {
	var cfg scalingPolicyConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "aws:AutoScaling.ScalingPolicy", err)
	}

	input := &autoscaling.PutScalingPolicyInput{
		PolicyName:           &cfg.Name,
		AutoScalingGroupName: &cfg.AutoScalingGroup,
		AdjustmentType:       &cfg.AdjustmentType,
		ScalingAdjustment:    int32Ptr(cfg.ScalingAdjustment),
	}
	if cfg.Cooldown > 0 {
		input.Cooldown = int32Ptr(cfg.Cooldown)
	}

	resp, err := p.autoscalingClient.PutScalingPolicy(ctx, input)
	if err != nil {
		return nil, classify("create", "aws:AutoScaling.ScalingPolicy", err)
	}

	// Policy ids come back as ARNs; bake the group name in so delete can
	// recover both halves.
	id := fmt.Sprintf("%s|%s", cfg.AutoScalingGroup, cfg.Name)
	return &provider.Result{ID: id, Outputs: map[string]any{"arn": deref(resp.PolicyARN)}}, nil
}

func (p *Provider) deleteScalingPolicy(ctx context.Context, id string) error {
	group, name, ok := strings.Cut(id, "|")
	if !ok {
		return provider.Permanent("delete", "aws:AutoScaling.ScalingPolicy",
			fmt.Errorf("malformed scaling policy id %q", id))
	}
	_, err := p.autoscalingClient.DeletePolicy(ctx, &autoscaling.DeletePolicyInput{
		AutoScalingGroupName: &group,
		PolicyName:           &name,
	})
	if err != nil && !isNotFound(err) {
		return classify("delete", "aws:AutoScaling.ScalingPolicy", err)
	}
	return nil
}

func (p *Provider) describeScalingPolicy(ctx context.Context, id string) (*provider.Observation, error) {
	group, name, ok := strings.Cut(id, "|")
	if !ok {
		return nil, provider.Permanent("describe", "aws:AutoScaling.ScalingPolicy",
			fmt.Errorf("malformed scaling policy id %q", id))
	}

	resp, err := p.autoscalingClient.DescribePolicies(ctx, &autoscaling.DescribePoliciesInput{
		AutoScalingGroupName: &group,
		PolicyNames:          []string{name},
	})
	if err != nil {
		return nil, classify("describe", "aws:AutoScaling.ScalingPolicy", err)
	}
	if len(resp.ScalingPolicies) == 0 {
		return &provider.Observation{Exists: false}, nil
	}

	pol := resp.ScalingPolicies[0]
	props := map[string]any{
		"name":             deref(pol.PolicyName),
		"autoScalingGroup": deref(pol.AutoScalingGroupName),
		"adjustmentType":   deref(pol.AdjustmentType),
	}
	if pol.ScalingAdjustment != nil {
		props["scalingAdjustment"] = int(*pol.ScalingAdjustment)
	}
	if pol.Cooldown != nil {
		props["cooldown"] = int(*pol.Cooldown)
	}

	return &provider.Observation{
		Exists:     true,
		Status:     "active",
		Properties: props,
		Outputs:    map[string]any{"arn": deref(pol.PolicyARN)},
	}, nil
}
