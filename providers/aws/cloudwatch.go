package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/stackr-io/stackr/internal/provider"
)

type alarmConfig struct {
	AlarmName          string            `json:"alarmName"`
	AlarmDescription   string            `json:"alarmDescription"`
	MetricName         string            `json:"metricName"`
	Namespace          string            `json:"namespace"`
	Statistic          string            `json:"statistic"`
	Period             int               `json:"period"`
	EvaluationPeriods  int               `json:"evaluationPeriods"`
	Threshold          float64           `json:"threshold"`
	ComparisonOperator string            `json:"comparisonOperator"`
	Dimensions         map[string]string `json:"dimensions"`
	AlarmActions       []string          `json:"alarmActions"`
}

// putAlarm backs both create and update; PutMetricAlarm is an upsert keyed on
// the alarm name.
func (p *Provider) putAlarm(ctx context.Context, props map[string]any) (*provider.Result, error) {
	var cfg alarmConfig
	if err := decodeConfig(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "aws:CloudWatch.Alarm", err)
	}

	input := &cloudwatch.PutMetricAlarmInput{
		AlarmName:          &cfg.AlarmName,
		MetricName:         &cfg.MetricName,
		Namespace:          &cfg.Namespace,
		Statistic:          types.Statistic(cfg.Statistic),
		Period:             int32Ptr(cfg.Period),
		EvaluationPeriods:  int32Ptr(cfg.EvaluationPeriods),
		Threshold:          &cfg.Threshold,
		ComparisonOperator: types.ComparisonOperator(cfg.ComparisonOperator),
	}
	if cfg.AlarmDescription != "" {
		input.AlarmDescription = &cfg.AlarmDescription
	}
	for name, value := range cfg.Dimensions {
		input.Dimensions = append(input.Dimensions, types.Dimension{
			Name:  strPtr(name),
			Value: strPtr(value),
		})
	}
	if len(cfg.AlarmActions) > 0 {
		input.AlarmActions = cfg.AlarmActions
	}

	if _, err := p.cloudwatchClient.PutMetricAlarm(ctx, input); err != nil {
		return nil, classify("create", "aws:CloudWatch.Alarm", err)
	}

	return &provider.Result{ID: cfg.AlarmName, Outputs: map[string]any{"alarmName": cfg.AlarmName}}, nil
}

func (p *Provider) deleteAlarm(ctx context.Context, id string) error {
	_, err := p.cloudwatchClient.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{
		AlarmNames: []string{id},
	})
	if err != nil && !isNotFound(err) {
		return classify("delete", "aws:CloudWatch.Alarm", err)
	}
	return nil
}

func (p *Provider) describeAlarm(ctx context.Context, id string) (*provider.Observation, error) {
	resp, err := p.cloudwatchClient.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{
		AlarmNames: []string{id},
	})
	if err != nil {
		return nil, classify("describe", "aws:CloudWatch.Alarm", err)
	}
	if len(resp.MetricAlarms) == 0 {
		return &provider.Observation{Exists: false}, nil
	}

	alarm := resp.MetricAlarms[0]
	props := map[string]any{
		"alarmName":          deref(alarm.AlarmName),
		"metricName":         deref(alarm.MetricName),
		"namespace":          deref(alarm.Namespace),
		"statistic":          string(alarm.Statistic),
		"comparisonOperator": string(alarm.ComparisonOperator),
	}
	if alarm.Threshold != nil {
		props["threshold"] = *alarm.Threshold
	}
	if alarm.Period != nil {
		props["period"] = int(*alarm.Period)
	}
	if alarm.EvaluationPeriods != nil {
		props["evaluationPeriods"] = int(*alarm.EvaluationPeriods)
	}

	return &provider.Observation{
		Exists:     true,
		Status:     "active",
		Properties: props,
		Outputs:    map[string]any{"arn": deref(alarm.AlarmArn), "alarmName": deref(alarm.AlarmName)},
	}, nil
}
