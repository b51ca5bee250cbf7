package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/errdefs"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackr-io/stackr/internal/provider"
)

// fakeDockerAPI records calls so tests can assert the operation sequence.
type fakeDockerAPI struct {
	calls      []string
	containers map[string]types.ContainerJSON
	nextID     int
}

func newFakeDockerAPI() *fakeDockerAPI {
	return &fakeDockerAPI{containers: make(map[string]types.ContainerJSON)}
}

func (f *fakeDockerAPI) addContainer(id, name, imageName string) {
	f.containers[id] = types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    id,
			Name:  "/" + name,
			State: &types.ContainerState{Status: "running"},
		},
		Config: &container.Config{Image: imageName},
	}
}

func (f *fakeDockerAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *v1.Platform, containerName string) (container.CreateResponse, error) {
	f.calls = append(f.calls, "create "+containerName)
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.containers[id] = types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    id,
			Name:  "/" + containerName,
			State: &types.ContainerState{Status: "created"},
		},
		Config: config,
	}
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeDockerAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.calls = append(f.calls, "start "+containerID)
	return nil
}

func (f *fakeDockerAPI) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.calls = append(f.calls, "stop "+containerID)
	return nil
}

func (f *fakeDockerAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.calls = append(f.calls, "remove "+containerID)
	delete(f.containers, containerID)
	return nil
}

func (f *fakeDockerAPI) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	if c, ok := f.containers[containerID]; ok {
		return c, nil
	}
	return types.ContainerJSON{}, errdefs.NotFound(errors.New("no such container"))
}

func (f *fakeDockerAPI) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	f.calls = append(f.calls, "pull "+refStr)
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeDockerAPI) NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	f.calls = append(f.calls, "network create "+name)
	return network.CreateResponse{ID: "n1"}, nil
}

func (f *fakeDockerAPI) NetworkRemove(ctx context.Context, networkID string) error {
	f.calls = append(f.calls, "network remove "+networkID)
	return nil
}

func (f *fakeDockerAPI) NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error) {
	return network.Inspect{}, errdefs.NotFound(errors.New("no such network"))
}

func (f *fakeDockerAPI) VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error) {
	f.calls = append(f.calls, "volume create "+options.Name)
	return volume.Volume{Name: options.Name}, nil
}

func (f *fakeDockerAPI) VolumeRemove(ctx context.Context, volumeID string, force bool) error {
	f.calls = append(f.calls, "volume remove "+volumeID)
	return nil
}

func (f *fakeDockerAPI) VolumeInspect(ctx context.Context, volumeID string) (volume.Volume, error) {
	return volume.Volume{}, errdefs.NotFound(errors.New("no such volume"))
}

func TestUpdateContainer_RecreatesUnderSameName(t *testing.T) {
	fake := newFakeDockerAPI()
	fake.addContainer("c-old", "web", "nginx:1.26")
	p := &Provider{client: fake}

	res, err := p.Update(context.Background(), "docker_container", "c-old", map[string]any{
		"image":  "nginx:1.26",
		"env":    map[string]string{"MODE": "canary"},
		"labels": map[string]string{"tier": "edge"},
	})
	require.NoError(t, err)

	// The old container goes away before the replacement claims its name.
	assert.Equal(t, []string{
		"stop c-old", "remove c-old", "pull nginx:1.26", "create web", "start c1",
	}, fake.calls)

	assert.Equal(t, "c1", res.ID)
	assert.Equal(t, "web", res.Outputs["name"])
	_, oldExists := fake.containers["c-old"]
	assert.False(t, oldExists)
}

func TestUpdate_EveryMutableContainerPropIsApplied(t *testing.T) {
	// env and labels plan as in-place updates, so Update has to land them on
	// the replacement container rather than reject them.
	fake := newFakeDockerAPI()
	fake.addContainer("c-old", "web", "nginx:1.26")
	p := &Provider{client: fake}

	_, err := p.Update(context.Background(), "docker_container", "c-old", map[string]any{
		"image":  "nginx:1.26",
		"env":    map[string]string{"MODE": "canary"},
		"labels": map[string]string{"tier": "edge"},
	})
	require.NoError(t, err)

	created := fake.containers["c1"]
	require.NotNil(t, created.Config)
	assert.Contains(t, created.Config.Env, "MODE=canary")
	assert.Equal(t, "edge", created.Config.Labels["tier"])
}

func TestUpdate_MissingContainer(t *testing.T) {
	p := &Provider{client: newFakeDockerAPI()}
	_, err := p.Update(context.Background(), "docker_container", "c-gone", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, provider.IsTransient(err))
}

func TestUpdate_UnsupportedKind(t *testing.T) {
	p := &Provider{client: newFakeDockerAPI()}
	_, err := p.Update(context.Background(), "docker_volume", "v1", nil)
	require.Error(t, err)
	assert.False(t, provider.IsTransient(err))
}

func TestCreateContainer_NameDefaultsToResourceName(t *testing.T) {
	fake := newFakeDockerAPI()
	p := &Provider{client: fake}

	res, err := p.Create(context.Background(), "docker_container", "web", map[string]any{
		"image": "nginx:1.26",
	})
	require.NoError(t, err)
	assert.Equal(t, "web", res.Outputs["name"])
	assert.Contains(t, fake.calls, "create web")
}

func TestDelete_MissingContainerIsIdempotent(t *testing.T) {
	p := &Provider{client: newFakeDockerAPI()}
	assert.NoError(t, p.Delete(context.Background(), "docker_container", "c-gone"))
}
