// Package docker implements the provider for local Docker resources:
// containers, networks and volumes. It is the quickest way to exercise a full
// create/update/delete cycle without cloud credentials.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/stackr-io/stackr/internal/provider"
)

type containerConfig struct {
	Image       string             `json:"image"`
	Name        string             `json:"name"`
	Command     []string           `json:"command"`
	Ports       map[string]int     `json:"ports"` // host port -> container port
	Env         map[string]string  `json:"env"`
	Networks    []string           `json:"networks"`
	Volumes     []string           `json:"volumes"`
	Labels      map[string]string  `json:"labels"`
	Restart     string             `json:"restart"`
	Healthcheck *healthcheckConfig `json:"healthcheck"`
}

type healthcheckConfig struct {
	Test     []string `json:"test"`
	Interval string   `json:"interval"`
	Timeout  string   `json:"timeout"`
	Retries  int      `json:"retries"`
}

type networkConfig struct {
	Name     string            `json:"name"`
	Driver   string            `json:"driver"`
	Internal bool              `json:"internal"`
	Labels   map[string]string `json:"labels"`
}

type volumeConfig struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// dockerAPI is the slice of the docker client the provider needs. Tests
// substitute a fake; ensureClient wires the real one.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *v1.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	NetworkRemove(ctx context.Context, networkID string) error
	NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error)
	VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error)
	VolumeRemove(ctx context.Context, volumeID string, force bool) error
	VolumeInspect(ctx context.Context, volumeID string) (volume.Volume, error)
}

type Provider struct {
	mu     sync.Mutex
	client dockerAPI
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	p.client = cli
	return nil
}

func (p *Provider) Create(ctx context.Context, kind, name string, props map[string]any) (*provider.Result, error) {
	if err := p.ensureClient(); err != nil {
		return nil, provider.Permanent("create", kind, err)
	}

	switch kind {
	case "docker_container":
		return p.createContainer(ctx, name, props)
	case "docker_network":
		return p.createNetwork(ctx, name, props)
	case "docker_volume":
		return p.createVolume(ctx, name, props)
	}
	return nil, provider.Permanent("create", kind, fmt.Errorf("unsupported kind"))
}

// Update only covers containers; networks and volumes plan as replacements.
func (p *Provider) Update(ctx context.Context, kind, id string, props map[string]any) (*provider.Result, error) {
	if err := p.ensureClient(); err != nil {
		return nil, provider.Permanent("update", kind, err)
	}
	if kind != "docker_container" {
		return nil, provider.Permanent("update", kind, fmt.Errorf("kind does not support in-place update"))
	}
	return p.updateContainer(ctx, id, props)
}

// updateContainer applies env and label changes, which the docker API only
// models as remove and re-create. The old container is torn down first so the
// replacement can claim its name; the new container id is returned for the
// caller to record.
func (p *Provider) updateContainer(ctx context.Context, id string, props map[string]any) (*provider.Result, error) {
	inspect, err := p.client.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, provider.Permanent("update", "docker_container", fmt.Errorf("container %s not found", id))
		}
		return nil, provider.Transient("update", "docker_container", err)
	}
	name := strings.TrimPrefix(inspect.Name, "/")

	timeout := 10 // seconds
	_ = p.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err := p.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return nil, provider.Transient("update", "docker_container", err)
	}

	return p.createContainer(ctx, name, props)
}

func (p *Provider) Delete(ctx context.Context, kind, id string) error {
	if err := p.ensureClient(); err != nil {
		return provider.Permanent("delete", kind, err)
	}

	switch kind {
	case "docker_container":
		timeout := 10 // seconds
		_ = p.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
		if err := p.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			return provider.Permanent("delete", kind, err)
		}
		return nil
	case "docker_network":
		if err := p.client.NetworkRemove(ctx, id); err != nil && !client.IsErrNotFound(err) {
			return provider.Permanent("delete", kind, err)
		}
		return nil
	case "docker_volume":
		if err := p.client.VolumeRemove(ctx, id, true); err != nil && !client.IsErrNotFound(err) {
			return provider.Permanent("delete", kind, err)
		}
		return nil
	}
	return provider.Permanent("delete", kind, fmt.Errorf("unsupported kind"))
}

func (p *Provider) Describe(ctx context.Context, kind, id string) (*provider.Observation, error) {
	if err := p.ensureClient(); err != nil {
		return nil, provider.Permanent("describe", kind, err)
	}

	switch kind {
	case "docker_container":
		inspect, err := p.client.ContainerInspect(ctx, id)
		if err != nil {
			if client.IsErrNotFound(err) {
				return &provider.Observation{Exists: false}, nil
			}
			return nil, provider.Transient("describe", kind, err)
		}
		status := ""
		if inspect.State != nil {
			status = inspect.State.Status
		}
		return &provider.Observation{
			Exists: true,
			Status: status,
			Properties: map[string]any{
				"name":   strings.TrimPrefix(inspect.Name, "/"),
				"image":  inspect.Config.Image,
				"labels": inspect.Config.Labels,
			},
			Outputs: map[string]any{"id": inspect.ID},
		}, nil

	case "docker_network":
		inspect, err := p.client.NetworkInspect(ctx, id, network.InspectOptions{})
		if err != nil {
			if client.IsErrNotFound(err) {
				return &provider.Observation{Exists: false}, nil
			}
			return nil, provider.Transient("describe", kind, err)
		}
		return &provider.Observation{
			Exists: true,
			Status: "available",
			Properties: map[string]any{
				"name":   inspect.Name,
				"driver": inspect.Driver,
			},
			Outputs: map[string]any{"id": inspect.ID},
		}, nil

	case "docker_volume":
		vol, err := p.client.VolumeInspect(ctx, id)
		if err != nil {
			if client.IsErrNotFound(err) {
				return &provider.Observation{Exists: false}, nil
			}
			return nil, provider.Transient("describe", kind, err)
		}
		return &provider.Observation{
			Exists: true,
			Status: "available",
			Properties: map[string]any{
				"name":   vol.Name,
				"driver": vol.Driver,
			},
			Outputs: map[string]any{"name": vol.Name},
		}, nil
	}
	return nil, provider.Permanent("describe", kind, fmt.Errorf("unsupported kind"))
}

func (p *Provider) createContainer(ctx context.Context, name string, props map[string]any) (*provider.Result, error) {
	var cfg containerConfig
	if err := decode(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "docker_container", err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}

	reader, err := p.client.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		return nil, provider.Transient("create", "docker_container", fmt.Errorf("failed to pull %s: %w", cfg.Image, err))
	}
	io.Copy(os.Stderr, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range cfg.Ports {
		cp := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		portBindings[cp] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        cfg.Volumes,
	}
	if len(cfg.Networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(cfg.Networks[0])
	}
	if cfg.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(cfg.Restart)}
	}

	config := &container.Config{
		Image:  cfg.Image,
		Cmd:    cfg.Command,
		Env:    envList(cfg.Env),
		Labels: cfg.Labels,
	}
	if hc := cfg.Healthcheck; hc != nil {
		interval, _ := time.ParseDuration(hc.Interval)
		timeout, _ := time.ParseDuration(hc.Timeout)
		config.Healthcheck = &container.HealthConfig{
			Test:     hc.Test,
			Interval: interval,
			Timeout:  timeout,
			Retries:  hc.Retries,
		}
	}

	resp, err := p.client.ContainerCreate(ctx, config, hostConfig, &network.NetworkingConfig{}, &v1.Platform{}, cfg.Name)
	if err != nil {
		return nil, provider.Permanent("create", "docker_container", err)
	}
	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, provider.Permanent("create", "docker_container", err)
	}

	return &provider.Result{ID: resp.ID, Outputs: map[string]any{"id": resp.ID, "name": cfg.Name}}, nil
}

func (p *Provider) createNetwork(ctx context.Context, name string, props map[string]any) (*provider.Result, error) {
	var cfg networkConfig
	if err := decode(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "docker_network", err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}

	resp, err := p.client.NetworkCreate(ctx, cfg.Name, types.NetworkCreate{
		Driver:   cfg.Driver,
		Internal: cfg.Internal,
		Labels:   cfg.Labels,
	})
	if err != nil {
		return nil, provider.Permanent("create", "docker_network", err)
	}
	return &provider.Result{ID: resp.ID, Outputs: map[string]any{"id": resp.ID, "name": cfg.Name}}, nil
}

func (p *Provider) createVolume(ctx context.Context, name string, props map[string]any) (*provider.Result, error) {
	var cfg volumeConfig
	if err := decode(props, &cfg); err != nil {
		return nil, provider.Permanent("create", "docker_volume", err)
	}
	if cfg.Name == "" {
		cfg.Name = name
	}

	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{Name: cfg.Name, Driver: cfg.Driver})
	if err != nil {
		return nil, provider.Permanent("create", "docker_volume", err)
	}
	return &provider.Result{ID: vol.Name, Outputs: map[string]any{"name": vol.Name}}, nil
}

func decode(props map[string]any, out any) error {
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode properties: %w", err)
	}
	return nil
}

func envList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
