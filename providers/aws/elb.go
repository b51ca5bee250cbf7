package aws

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/smithy-go"

	"github.com/stackr-io/stackr/internal/provider"
)

type loadBalancerConfig struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Scheme         string   `json:"scheme"`
	Subnets        []string `json:"subnets"`
	SecurityGroups []string `json:"securityGroups"`
}

type targetGroupConfig struct {
	Name                       string `json:"name"`
	Port                       int    `json:"port"`
	Protocol                   string `json:"protocol"`
	VpcID                      string `json:"vpcId"`
	TargetType                 string `json:"targetType"`
	HealthCheckPath            string `json:"healthCheckPath"`
	HealthCheckIntervalSeconds int    `json:"healthCheckIntervalSeconds"`
	HealthyThresholdCount      int    `json:"healthyThresholdCount"`
	UnhealthyThresholdCount    int    `json:"unhealthyThresholdCount"`
}

type listenerConfig struct {
	LoadBalancer string `json:"loadBalancer"` // load balancer ARN
	Port         int    `json:"port"`
	Protocol     string `json:"protocol"`
	TargetGroup  string `json:"targetGroup"` // default forward target ARN
}

func (p *Provider) createLoadBalancer(ctx context.Context, props map[string]any) (*provider.Result, error) {
	var cfg loadBalancerConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "aws:ElasticLoadBalancingV2.LoadBalancer", err)
	}

	input := &elasticloadbalancingv2.CreateLoadBalancerInput{
		Name:           &cfg.Name,
		Subnets:        cfg.Subnets,
		SecurityGroups: cfg.SecurityGroups,
	}
	if cfg.Type != "" {
		input.Type = types.LoadBalancerTypeEnum(cfg.Type)
	}
	if cfg.Scheme != "" {
		input.Scheme = types.LoadBalancerSchemeEnum(cfg.Scheme)
	}

	resp, err := p.elbv2Client.CreateLoadBalancer(ctx, input)
	if err != nil {
		return nil, classify("create", "aws:ElasticLoadBalancingV2.LoadBalancer", err)
	}
	lb := resp.LoadBalancers[0]

	return &provider.Result{
		ID: *lb.LoadBalancerArn,
		Outputs: map[string]any{
			"arn":     *lb.LoadBalancerArn,
			"dnsName": *lb.DNSName,
		},
	}, nil
}

func (p *Provider) updateLoadBalancer(ctx context.Context, id string, props map[string]any) (*provider.Result, error) {
	var cfg loadBalancerConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("update", "aws:ElasticLoadBalancingV2.LoadBalancer", err)
	}

	if len(cfg.SecurityGroups) > 0 {
		_, err := p.elbv2Client.SetSecurityGroups(ctx, &elasticloadbalancingv2.SetSecurityGroupsInput{
			LoadBalancerArn: &id,
			SecurityGroups:  cfg.SecurityGroups,
		})
		if err != nil {
			return nil, classify("update", "aws:ElasticLoadBalancingV2.LoadBalancer", err)
		}
	}
	return &provider.Result{ID: id}, nil
}

func (p *Provider) deleteLoadBalancer(ctx context.Context, id string) error {
	_, err := p.elbv2Client.DeleteLoadBalancer(ctx, &elasticloadbalancingv2.DeleteLoadBalancerInput{
		LoadBalancerArn: &id,
	})
	if err != nil && !isNotFound(err) {
		return classify("delete", "aws:ElasticLoadBalancingV2.LoadBalancer", err)
	}
	return nil
}

func (p *Provider) describeLoadBalancer(ctx context.Context, id string) (*provider.Observation, error) {
	resp, err := p.elbv2Client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.Observation{Exists: false}, nil
		}
		return nil, classify("describe", "aws:ElasticLoadBalancingV2.LoadBalancer", err)
	}
	if len(resp.LoadBalancers) == 0 {
		return &provider.Observation{Exists: false}, nil
	}

	lb := resp.LoadBalancers[0]
	status := ""
	if lb.State != nil {
		status = string(lb.State.Code)
	}
	return &provider.Observation{
		Exists: true,
		Status: status,
		Properties: map[string]any{
			"name":           deref(lb.LoadBalancerName),
			"type":           string(lb.Type),
			"scheme":         string(lb.Scheme),
			"securityGroups": lb.SecurityGroups,
		},
		Outputs: map[string]any{
			"arn":     deref(lb.LoadBalancerArn),
			"dnsName": deref(lb.DNSName),
		},
	}, nil
}

func (p *Provider) createTargetGroup(ctx context.Context, props map[string]any) (*provider.Result, error) {
	var cfg targetGroupConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "aws:ElasticLoadBalancingV2.TargetGroup", err)
	}

	input := &elasticloadbalancingv2.CreateTargetGroupInput{
		Name:     &cfg.Name,
		Port:     int32Ptr(cfg.Port),
		Protocol: types.ProtocolEnum(cfg.Protocol),
		VpcId:    &cfg.VpcID,
	}
	if cfg.TargetType != "" {
		input.TargetType = types.TargetTypeEnum(cfg.TargetType)
	}
	if cfg.HealthCheckPath != "" {
		input.HealthCheckPath = &cfg.HealthCheckPath
	}
	if cfg.HealthCheckIntervalSeconds > 0 {
		input.HealthCheckIntervalSeconds = int32Ptr(cfg.HealthCheckIntervalSeconds)
	}
	if cfg.HealthyThresholdCount > 0 {
		input.HealthyThresholdCount = int32Ptr(cfg.HealthyThresholdCount)
	}
	if cfg.UnhealthyThresholdCount > 0 {
		input.UnhealthyThresholdCount = int32Ptr(cfg.UnhealthyThresholdCount)
	}

	resp, err := p.elbv2Client.CreateTargetGroup(ctx, input)
	if err != nil {
		return nil, classify("create", "aws:ElasticLoadBalancingV2.TargetGroup", err)
	}
	tg := resp.TargetGroups[0]

	return &provider.Result{
		ID:      *tg.TargetGroupArn,
		Outputs: map[string]any{"arn": *tg.TargetGroupArn},
	}, nil
}

func (p *Provider) updateTargetGroup(ctx context.Context, id string, props map[string]any) (*provider.Result, error) {
	var cfg targetGroupConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("update", "aws:ElasticLoadBalancingV2.TargetGroup", err)
	}

	input := &elasticloadbalancingv2.ModifyTargetGroupInput{TargetGroupArn: &id}
	if cfg.HealthCheckPath != "" {
		input.HealthCheckPath = &cfg.HealthCheckPath
	}
	if cfg.HealthCheckIntervalSeconds > 0 {
		input.HealthCheckIntervalSeconds = int32Ptr(cfg.HealthCheckIntervalSeconds)
	}
	if cfg.HealthyThresholdCount > 0 {
		input.HealthyThresholdCount = int32Ptr(cfg.HealthyThresholdCount)
	}
	if cfg.UnhealthyThresholdCount > 0 {
		input.UnhealthyThresholdCount = int32Ptr(cfg.UnhealthyThresholdCount)
	}

	if _, err := p.elbv2Client.ModifyTargetGroup(ctx, input); err != nil {
		return nil, classify("update", "aws:ElasticLoadBalancingV2.TargetGroup", err)
	}
	return &provider.Result{ID: id, Outputs: map[string]any{"arn": id}}, nil
}

func (p *Provider) deleteTargetGroup(ctx context.Context, id string) error {
	_, err := p.elbv2Client.DeleteTargetGroup(ctx, &elasticloadbalancingv2.DeleteTargetGroupInput{
		TargetGroupArn: &id,
	})
	if err != nil && !isNotFound(err) {
		return classify("delete", "aws:ElasticLoadBalancingV2.TargetGroup", err)
	}
	return nil
}

func (p *Provider) describeTargetGroup(ctx context.Context, id string) (*provider.Observation, error) {
	resp, err := p.elbv2Client.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
		TargetGroupArns: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.Observation{Exists: false}, nil
		}
		return nil, classify("describe", "aws:ElasticLoadBalancingV2.TargetGroup", err)
	}
	if len(resp.TargetGroups) == 0 {
		return &provider.Observation{Exists: false}, nil
	}

	tg := resp.TargetGroups[0]
	props := map[string]any{
		"name":     deref(tg.TargetGroupName),
		"protocol": string(tg.Protocol),
	}
	if tg.Port != nil {
		props["port"] = int(*tg.Port)
	}
	if tg.HealthCheckPath != nil {
		props["healthCheckPath"] = *tg.HealthCheckPath
	}
	return &provider.Observation{
		Exists:     true,
		Status:     "active",
		Properties: props,
		Outputs:    map[string]any{"arn": deref(tg.TargetGroupArn)},
	}, nil
}

func (p *Provider) createListener(ctx context.Context, props map[string]any) (*provider.Result, error) {
	var cfg listenerConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "aws:ElasticLoadBalancingV2.Listener", err)
	}

	resp, err := p.elbv2Client.CreateListener(ctx, &elasticloadbalancingv2.CreateListenerInput{
		LoadBalancerArn: &cfg.LoadBalancer,
		Port:            int32Ptr(cfg.Port),
		Protocol:        types.ProtocolEnum(cfg.Protocol),
		DefaultActions: []types.Action{{
			Type:           types.ActionTypeEnumForward,
			TargetGroupArn: &cfg.TargetGroup,
		}},
	})
	if err != nil {
		return nil, classify("create", "aws:ElasticLoadBalancingV2.Listener", err)
	}
	l := resp.Listeners[0]

	return &provider.Result{
		ID:      *l.ListenerArn,
		Outputs: map[string]any{"arn": *l.ListenerArn},
	}, nil
}

func (p *Provider) updateListener(ctx context.Context, id string, props map[string]any) (*provider.Result, error) {
	var cfg listenerConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("update", "aws:ElasticLoadBalancingV2.Listener", err)
	}

	input := &elasticloadbalancingv2.ModifyListenerInput{ListenerArn: &id}
	if cfg.Port > 0 {
		input.Port = int32Ptr(cfg.Port)
	}
	if cfg.Protocol != "" {
		input.Protocol = types.ProtocolEnum(cfg.Protocol)
	}
	if cfg.TargetGroup != "" {
		input.DefaultActions = []types.Action{{
			Type:           types.ActionTypeEnumForward,
			TargetGroupArn: &cfg.TargetGroup,
		}}
	}

	if _, err := p.elbv2Client.ModifyListener(ctx, input); err != nil {
		return nil, classify("update", "aws:ElasticLoadBalancingV2.Listener", err)
	}
	return &provider.Result{ID: id, Outputs: map[string]any{"arn": id}}, nil
}

func (p *Provider) deleteListener(ctx context.Context, id string) error {
	_, err := p.elbv2Client.DeleteListener(ctx, &elasticloadbalancingv2.DeleteListenerInput{
		ListenerArn: &id,
	})
	if err != nil && !isNotFound(err) {
		return classify("delete", "aws:ElasticLoadBalancingV2.Listener", err)
	}
	return nil
}

func (p *Provider) describeListener(ctx context.Context, id string) (*provider.Observation, error) {
	resp, err := p.elbv2Client.DescribeListeners(ctx, &elasticloadbalancingv2.DescribeListenersInput{
		ListenerArns: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.Observation{Exists: false}, nil
		}
		return nil, classify("describe", "aws:ElasticLoadBalancingV2.Listener", err)
	}
	if len(resp.Listeners) == 0 {
		return &provider.Observation{Exists: false}, nil
	}

	l := resp.Listeners[0]
	props := map[string]any{"protocol": string(l.Protocol)}
	if l.Port != nil {
		props["port"] = int(*l.Port)
	}
	return &provider.Observation{
		Exists:     true,
		Status:     "active",
		Properties: props,
		Outputs:    map[string]any{"arn": deref(l.ListenerArn)},
	}, nil
}

// isNotFound matches the *NotFound error codes the ELB and EC2 APIs return
// for vanished resources.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return strings.HasSuffix(code, "NotFound") || strings.HasSuffix(code, "NotFoundException") ||
		strings.HasSuffix(code, ".NotFound")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
