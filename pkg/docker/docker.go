package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"
)

// Manager handles Docker operations for docbench.
type Manager interface {
	Start(ctx context.Context) error
	Stop() error

	// Container operations.
	RunContainer(ctx context.Context, spec *ContainerSpec) error
	RemoveContainerByName(ctx context.Context, name string) error
	ContainerRunning(ctx context.Context, name string) (bool, error)

	// Exec runs a command inside a running container and returns its
	// combined output and exit code.
	Exec(ctx context.Context, name string, cmd ...string) (string, int, error)

	// Image operations.
	ImagePresent(ctx context.Context, imageName string) (bool, error)
	PullImage(ctx context.Context, imageName string) error
	TagImage(ctx context.Context, source, target string) error
	ImageInfo(ctx context.Context, imageName string) (*ImageInfo, error)
}

// ContainerSpec defines a detached database container.
type ContainerSpec struct {
	Name          string
	Image         string
	Env           map[string]string
	Command       []string
	HostPort      int
	ContainerPort int
	AutoRemove    bool
}

// ImageInfo describes a local image for result metadata.
type ImageInfo struct {
	Tag    string
	ID     string
	Digest string
}

// NewManager creates a new Docker manager.
func NewManager(log logrus.FieldLogger) (Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &manager{
		log:    log.WithField("component", "docker"),
		client: cli,
	}, nil
}

type manager struct {
	log    logrus.FieldLogger
	client *client.Client
}

// Ensure interface compliance.
var _ Manager = (*manager)(nil)

// Start verifies connectivity to the Docker daemon.
func (m *manager) Start(ctx context.Context) error {
	if _, err := m.client.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to docker daemon: %w", err)
	}

	m.log.Debug("Connected to Docker daemon")

	return nil
}

// Stop closes the Docker client.
func (m *manager) Stop() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("closing docker client: %w", err)
	}

	return nil
}

// RunContainer creates and starts a detached container from the spec.
func (m *manager) RunContainer(ctx context.Context, spec *ContainerSpec) error {
	log := m.log.WithField("container", spec.Name)

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	port, err := nat.NewPort("tcp", fmt.Sprintf("%d", spec.ContainerPort))
	if err != nil {
		return fmt.Errorf("building port mapping: %w", err)
	}

	containerCfg := &container.Config{
		Image:        spec.Image,
		Env:          env,
		Cmd:          spec.Command,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}

	hostCfg := &container.HostConfig{
		AutoRemove: spec.AutoRemove,
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{
				HostIP:   "0.0.0.0",
				HostPort: fmt.Sprintf("%d", spec.HostPort),
			}},
		},
	}

	resp, err := m.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}

	if err := m.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", spec.Name, err)
	}

	log.WithField("id", resp.ID[:12]).Debug("Started container")

	return nil
}

// RemoveContainerByName force-removes a container. A missing container is
// treated as success so pre-start cleanup stays idempotent.
func (m *manager) RemoveContainerByName(ctx context.Context, name string) error {
	err := m.client.ContainerRemove(ctx, name, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container %s: %w", name, err)
	}

	m.log.WithField("container", name).Debug("Removed container")

	return nil
}

// ContainerRunning reports whether a container with the exact name is running.
func (m *manager) ContainerRunning(ctx context.Context, name string) (bool, error) {
	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, fmt.Errorf("listing containers: %w", err)
	}

	for _, c := range containers {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return true, nil
			}
		}
	}

	return false, nil
}

// Exec runs a command inside a running container and returns its combined
// stdout/stderr output and exit code.
func (m *manager) Exec(ctx context.Context, name string, cmd ...string) (string, int, error) {
	exec, err := m.client.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", -1, fmt.Errorf("creating exec in %s: %w", name, err)
	}

	attach, err := m.client.ContainerExecAttach(ctx, exec.ID, container.ExecStartOptions{})
	if err != nil {
		return "", -1, fmt.Errorf("attaching exec in %s: %w", name, err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attach.Reader); err != nil && err != io.EOF {
		return "", -1, fmt.Errorf("reading exec output: %w", err)
	}

	inspect, err := m.client.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return buf.String(), -1, fmt.Errorf("inspecting exec: %w", err)
	}

	return buf.String(), inspect.ExitCode, nil
}

// ImagePresent reports whether the image exists locally.
func (m *manager) ImagePresent(ctx context.Context, imageName string) (bool, error) {
	images, err := m.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", imageName)),
	})
	if err != nil {
		return false, fmt.Errorf("listing images: %w", err)
	}

	return len(images) > 0, nil
}

// PullImage pulls an image from its registry.
func (m *manager) PullImage(ctx context.Context, imageName string) error {
	log := m.log.WithField("image", imageName)
	log.Info("Pulling image")

	reader, err := m.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", imageName, err)
	}
	defer func() { _ = reader.Close() }()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("reading pull response: %w", err)
	}

	log.Info("Image pulled successfully")

	return nil
}

// TagImage tags a local image under a new reference.
func (m *manager) TagImage(ctx context.Context, source, target string) error {
	if err := m.client.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("tagging image %s as %s: %w", source, target, err)
	}

	return nil
}

// ImageInfo returns tag, ID, and digest of a local image for result metadata.
func (m *manager) ImageInfo(ctx context.Context, imageName string) (*ImageInfo, error) {
	inspect, _, err := m.client.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		return nil, fmt.Errorf("inspecting image: %w", err)
	}

	info := &ImageInfo{
		Tag: "latest",
		ID:  inspect.ID,
	}

	if len(inspect.RepoTags) > 0 {
		repoTag := inspect.RepoTags[0]
		if idx := strings.LastIndex(repoTag, ":"); idx != -1 {
			info.Tag = repoTag[idx+1:]
		}
	}

	// RepoDigests entries are "image@sha256:hash".
	if len(inspect.RepoDigests) > 0 {
		digest := inspect.RepoDigests[0]
		if idx := strings.Index(digest, "sha256:"); idx != -1 {
			info.Digest = digest[idx:]
		}
	}

	return info, nil
}
