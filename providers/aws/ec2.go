package aws

import (
	"context"
	"encoding/base64"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/stackr-io/stackr/internal/provider"
)

type launchTemplateConfig struct {
	Name           string   `json:"name"`
	ImageID        string   `json:"imageId"`
	InstanceType   string   `json:"instanceType"`
	KeyName        string   `json:"keyName"`
	SecurityGroups []string `json:"securityGroups"`
	UserData       string   `json:"userData"`
}

func launchTemplateData(cfg *launchTemplateConfig) *types.RequestLaunchTemplateData {
	data := &types.RequestLaunchTemplateData{
		ImageId:      &cfg.ImageID,
		InstanceType: types.InstanceType(cfg.InstanceType),
	}
	if cfg.KeyName != "" {
		data.KeyName = &cfg.KeyName
	}
	if len(cfg.SecurityGroups) > 0 {
		data.SecurityGroupIds = cfg.SecurityGroups
	}
	if cfg.UserData != "" {
		encoded := base64.StdEncoding.EncodeToString([]byte(cfg.UserData))
		data.UserData = &encoded
	}
	return data
}

func (p *Provider) createLaunchTemplate(ctx context.Context, props map[string]any) (*provider.Result, error) {
	var cfg launchTemplateConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "aws:EC2.LaunchTemplate", err)
	}

	resp, err := p.ec2Client.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: &cfg.Name,
		LaunchTemplateData: launchTemplateData(&cfg),
	})
	if err != nil {
		return nil, classify("create", "aws:EC2.LaunchTemplate", err)
	}

	id := deref(resp.LaunchTemplate.LaunchTemplateId)
	return &provider.Result{
		ID: id,
		Outputs: map[string]any{
			"id":   id,
			"name": deref(resp.LaunchTemplate.LaunchTemplateName),
		},
	}, nil
}

// updateLaunchTemplate rolls a new default version rather than mutating the
// existing one, so running instances keep the version they launched with.
func (p *Provider) updateLaunchTemplate(ctx context.Context, id string, props map[string]any) (*provider.Result, error) {
	var cfg launchTemplateConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("update", "aws:EC2.LaunchTemplate", err)
	}

	_, err := p.ec2Client.CreateLaunchTemplateVersion(ctx, &ec2.CreateLaunchTemplateVersionInput{
		LaunchTemplateId:   &id,
		LaunchTemplateData: launchTemplateData(&cfg),
	})
	if err != nil {
		return nil, classify("update", "aws:EC2.LaunchTemplate", err)
	}

	_, err = p.ec2Client.ModifyLaunchTemplate(ctx, &ec2.ModifyLaunchTemplateInput{
		LaunchTemplateId: &id,
		DefaultVersion:   strPtr("$Latest"),
	})
	if err != nil {
		return nil, classify("update", "aws:EC2.LaunchTemplate", err)
	}

	return &provider.Result{ID: id, Outputs: map[string]any{"id": id, "name": cfg.Name}}, nil
}

func (p *Provider) deleteLaunchTemplate(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteLaunchTemplate(ctx, &ec2.DeleteLaunchTemplateInput{
		LaunchTemplateId: &id,
	})
	if err != nil && !isNotFound(err) {
		return classify("delete", "aws:EC2.LaunchTemplate", err)
	}
	return nil
}

func (p *Provider) describeLaunchTemplate(ctx context.Context, id string) (*provider.Observation, error) {
	resp, err := p.ec2Client.DescribeLaunchTemplates(ctx, &ec2.DescribeLaunchTemplatesInput{
		LaunchTemplateIds: []string{id},
	})
	if err != nil {
		if isNotFound(err) {
			return &provider.Observation{Exists: false}, nil
		}
		return nil, classify("describe", "aws:EC2.LaunchTemplate", err)
	}
	if len(resp.LaunchTemplates) == 0 {
		return &provider.Observation{Exists: false}, nil
	}

	lt := resp.LaunchTemplates[0]
	return &provider.Observation{
		Exists:     true,
		Status:     "available",
		Properties: map[string]any{"name": deref(lt.LaunchTemplateName)},
		Outputs: map[string]any{
			"id":   deref(lt.LaunchTemplateId),
			"name": deref(lt.LaunchTemplateName),
		},
	}, nil
}
