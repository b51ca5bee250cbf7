// Package catalog supplies static per-resource-kind knowledge the planner and
// executor need: which properties can change in place, which property claims
// an exclusive external name, and which provider statuses are terminal.
package catalog

// Kind describes one resource kind.
type Kind struct {
	Name string

	// Identity is the property whose resolved value claims an exclusive
	// external identifier (e.g. an ASG name). Empty if the kind has none.
	Identity string

	// Mutable lists properties that can be updated in place. A change to any
	// property not listed here forces replacement.
	Mutable []string

	// ReadyStates are the provider-reported statuses that count as terminal
	// success. Empty means any successful describe is terminal.
	ReadyStates []string
}

// MutableProp reports whether prop can change without replacement.
func (k *Kind) MutableProp(prop string) bool {
	for _, m := range k.Mutable {
		if m == prop {
			return true
		}
	}
	return false
}

// Ready reports whether status is a terminal success state for this kind.
func (k *Kind) Ready(status string) bool {
	if len(k.ReadyStates) == 0 {
		return true
	}
	for _, s := range k.ReadyStates {
		if s == status {
			return true
		}
	}
	return false
}

// Catalog is a lookup table of resource kinds.
type Catalog struct {
	kinds map[string]*Kind
}

// Lookup returns the entry for kind. Unknown kinds get a conservative default:
// no identity claim, no in-place updates, any status terminal.
func (c *Catalog) Lookup(kind string) *Kind {
	if k, ok := c.kinds[kind]; ok {
		return k
	}
	return &Kind{Name: kind}
}

// Register adds or overrides a kind entry.
func (c *Catalog) Register(k *Kind) {
	c.kinds[k.Name] = k
}

func New(kinds ...*Kind) *Catalog {
	c := &Catalog{kinds: make(map[string]*Kind)}
	for _, k := range kinds {
		c.Register(k)
	}
	return c
}

// Default returns the built-in catalog covering the supported kinds.
func Default() *Catalog {
	return New(
		&Kind{
			Name:        "aws:ElasticLoadBalancingV2.LoadBalancer",
			Identity:    "name",
			Mutable:     []string{"securityGroups", "idleTimeout", "tags"},
			ReadyStates: []string{"active"},
		},
		&Kind{
			Name:     "aws:ElasticLoadBalancingV2.TargetGroup",
			Identity: "name",
			Mutable: []string{
				"healthCheckPath", "healthCheckPort", "healthCheckProtocol",
				"healthCheckIntervalSeconds", "healthyThresholdCount",
				"unhealthyThresholdCount", "tags",
			},
		},
		&Kind{
			Name:    "aws:ElasticLoadBalancingV2.Listener",
			Mutable: []string{"port", "protocol", "targetGroup"},
		},
		&Kind{
			Name:     "aws:EC2.LaunchTemplate",
			Identity: "name",
			// Property changes roll a new template version in place.
			Mutable: []string{"imageId", "instanceType", "keyName", "securityGroups", "userData"},
		},
		&Kind{
			Name:     "aws:AutoScaling.AutoScalingGroup",
			Identity: "name",
			Mutable: []string{
				"minSize", "maxSize", "desiredCapacity", "launchTemplate",
				"vpcZoneIdentifier", "healthCheckType", "healthCheckGracePeriod",
				"cooldown", "targetGroups",
			},
			ReadyStates: []string{"in-service"},
		},
		&Kind{
			Name:     "aws:AutoScaling.ScalingPolicy",
			Identity: "name",
			// PutScalingPolicy is an upsert; everything changes in place.
			Mutable: []string{"autoScalingGroup", "adjustmentType", "scalingAdjustment", "cooldown"},
		},
		&Kind{
			Name:     "aws:CloudWatch.Alarm",
			Identity: "alarmName",
			// PutMetricAlarm is an upsert; everything changes in place.
			Mutable: []string{
				"metricName", "namespace", "statistic", "period", "evaluationPeriods",
				"threshold", "comparisonOperator", "dimensions", "alarmActions",
				"alarmDescription",
			},
		},
		&Kind{
			// Trigger changes force replacement, same as the classic null resource.
			Name: "null_resource",
		},
		&Kind{
			Name:        "docker_container",
			Mutable:     []string{"env", "labels"},
			ReadyStates: []string{"running"},
		},
		&Kind{Name: "docker_network"},
		&Kind{Name: "docker_volume"},
	)
}
