package sampleserver

import (
	"context"
	"fmt"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// DefaultNamespace is the containerd namespace the sample server
// creates its containers under.
const DefaultNamespace = "gpirm-sample"

// DefaultSocketPath is the conventional containerd socket path. Nothing
// in this package dials it on its own: NewRuntime uses only the path it
// is given.
const DefaultSocketPath = "/run/containerd/containerd.sock"

// Runtime wraps a containerd client, narrowed to what the sample
// resource server needs: describe (and optionally run) one container
// per resource.
type Runtime struct {
	client       *containerd.Client
	namespace    string
	describeOnly bool
}

// NewRuntime connects to containerd at socketPath. If socketPath is
// empty, the runtime operates describe-only: it still builds OCI specs
// and mints container ids, but CreateTask/DeleteTask are no-ops — this
// is the mode for environments without a running daemon.
func NewRuntime(socketPath string) (*Runtime, error) {
	if socketPath == "" {
		return &Runtime{namespace: DefaultNamespace, describeOnly: true}, nil
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd at %s: %w", socketPath, err)
	}
	return &Runtime{client: client, namespace: DefaultNamespace}, nil
}

// Close releases the underlying containerd client, if any.
func (r *Runtime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// DescribeSpec builds the OCI runtime spec for a new container resource
// and mints its container id, without creating anything in containerd —
// the always-available half of container resource allocation. The spec
// is the same fixed /bin/sh process for every image; imageRef does not
// enter it.
func (r *Runtime) DescribeSpec(imageRef string, env []string) (string, *specs.Spec) {
	containerID := uuid.New().String()
	spec := &specs.Spec{
		Version: "1.0.2-dev",
		Process: &specs.Process{
			Args: []string{"/bin/sh"},
			Env:  env,
			Cwd:  "/",
		},
		Root: &specs.Root{Path: "rootfs"},
	}
	_ = imageRef
	return containerID, spec
}

// CreateTask pulls imageRef and starts containerID as a containerd task,
// a no-op returning ("", nil) in describe-only mode.
func (r *Runtime) CreateTask(ctx context.Context, containerID, imageRef string, spec *specs.Spec) (string, error) {
	if r.describeOnly {
		return "", nil
	}
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
	if err != nil {
		return "", fmt.Errorf("pull image %s: %w", imageRef, err)
	}

	ctr, err := r.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithSpec(spec),
	)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", containerID, err)
	}

	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return "", fmt.Errorf("create task for %s: %w", containerID, err)
	}
	if err := task.Start(ctx); err != nil {
		return "", fmt.Errorf("start task for %s: %w", containerID, err)
	}
	return task.ID(), nil
}

// DeleteTask tears down containerID's task and container, a no-op in
// describe-only mode.
func (r *Runtime) DeleteTask(ctx context.Context, containerID string) error {
	if r.describeOnly {
		return nil
	}
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	ctr, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil
	}
	if task, err := ctr.Task(ctx, nil); err == nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
	}
	return ctr.Delete(ctx, containerd.WithSnapshotCleanup)
}
