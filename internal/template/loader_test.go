package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackr-io/stackr/internal/ir"
)

func TestParse_BasicStack(t *testing.T) {
	cfg, err := Parse([]byte(`
stack: web
resources:
  lb:
    kind: aws:ElasticLoadBalancingV2.LoadBalancer
    properties:
      name: web-lb
      internetFacing: true
      securityGroups:
        - sg-123
  runner:
    kind: null_resource
    dependsOn: [lb]
`))
	require.NoError(t, err)

	assert.Equal(t, "web", cfg.Stack)
	require.Len(t, cfg.Resources, 2)

	// Sorted by logical id.
	lb := cfg.Resources[0]
	assert.Equal(t, "lb", lb.Name)
	assert.Equal(t, "aws", lb.Provider)
	assert.Equal(t, ir.StatusPending, lb.Status)
	assert.Equal(t, "web-lb", lb.Properties["name"])
	assert.Equal(t, true, lb.Properties["internetFacing"])
	assert.Equal(t, []any{"sg-123"}, lb.Properties["securityGroups"])

	runner := cfg.Resources[1]
	assert.Equal(t, "null", runner.Provider)
	assert.Equal(t, []string{"lb"}, runner.DependsOn)
}

func TestParse_ReferenceTags(t *testing.T) {
	cfg, err := Parse([]byte(`
stack: web
resources:
  asg:
    kind: aws:AutoScaling.AutoScalingGroup
    properties:
      launchTemplate: !Ref lt
      targetGroups:
        - !GetAtt tg.arn
      subnets: !ImportValue public-subnets
  lt:
    kind: aws:EC2.LaunchTemplate
  tg:
    kind: aws:ElasticLoadBalancingV2.TargetGroup
`))
	require.NoError(t, err)

	asg := cfg.Resources[0]
	require.Equal(t, "asg", asg.Name)

	ref, ok := asg.Properties["launchTemplate"].(*ir.RefExpr)
	require.True(t, ok)
	assert.Equal(t, ir.RefByID, ref.Kind)
	assert.Equal(t, "lt", ref.Target)

	tgs, ok := asg.Properties["targetGroups"].([]any)
	require.True(t, ok)
	require.Len(t, tgs, 1)
	att, ok := tgs[0].(*ir.RefExpr)
	require.True(t, ok)
	assert.Equal(t, ir.RefGetAttr, att.Kind)
	assert.Equal(t, "tg", att.Target)
	assert.Equal(t, "arn", att.Attribute)

	imp, ok := asg.Properties["subnets"].(*ir.RefExpr)
	require.True(t, ok)
	assert.Equal(t, ir.RefImport, imp.Kind)
	assert.Equal(t, "public-subnets", imp.Export)
}

func TestParse_GetAttSequenceForm(t *testing.T) {
	cfg, err := Parse([]byte(`
stack: web
resources:
  alarm:
    kind: aws:CloudWatch.Alarm
    properties:
      alarmActions:
        - !GetAtt [scale-out, arn]
  scale-out:
    kind: aws:AutoScaling.ScalingPolicy
`))
	require.NoError(t, err)

	actions := cfg.Resources[0].Properties["alarmActions"].([]any)
	att, ok := actions[0].(*ir.RefExpr)
	require.True(t, ok)
	assert.Equal(t, "scale-out", att.Target)
	assert.Equal(t, "arn", att.Attribute)
}

func TestParse_OutputsAndExports(t *testing.T) {
	cfg, err := Parse([]byte(`
stack: web
resources:
  lb:
    kind: aws:ElasticLoadBalancingV2.LoadBalancer
outputs:
  dns: !GetAtt lb.dnsName
exports:
  lb-arn: !Ref lb
  region: us-east-1
`))
	require.NoError(t, err)

	dns, ok := cfg.Outputs["dns"].(*ir.RefExpr)
	require.True(t, ok)
	assert.Equal(t, ir.RefGetAttr, dns.Kind)

	arn, ok := cfg.Exports["lb-arn"].(*ir.RefExpr)
	require.True(t, ok)
	assert.Equal(t, "lb", arn.Target)
	assert.Equal(t, "us-east-1", cfg.Exports["region"])
}

func TestParse_ExplicitProviderWins(t *testing.T) {
	cfg, err := Parse([]byte(`
stack: web
resources:
  cache:
    kind: docker_container
    provider: podman
`))
	require.NoError(t, err)
	assert.Equal(t, "podman", cfg.Resources[0].Provider)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"missing stack", "resources:\n  a:\n    kind: null_resource\n", "missing the stack name"},
		{"no resources", "stack: web\n", "declares no resources"},
		{"missing kind", "stack: web\nresources:\n  a: {}\n", "missing a kind"},
		{"bad ref", "stack: web\nresources:\n  a:\n    kind: null_resource\n    properties:\n      x: !Ref [a, b]\n", "!Ref expects"},
		{"bad getatt", "stack: web\nresources:\n  a:\n    kind: null_resource\n    properties:\n      x: !GetAtt noDot\n", "Resource.Attribute"},
		{"bad import", "stack: web\nresources:\n  a:\n    kind: null_resource\n    properties:\n      x: !ImportValue [a]\n", "!ImportValue expects"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestProviderForKind(t *testing.T) {
	assert.Equal(t, "aws", providerForKind("aws:AutoScaling.AutoScalingGroup"))
	assert.Equal(t, "docker", providerForKind("docker_container"))
	assert.Equal(t, "null", providerForKind("null_resource"))
}
