// internal/target/docker.go
package target

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ContainerRuntime abstracts the container engine so resolution logic is
// testable without a daemon.
type ContainerRuntime interface {
	// Available reports whether the engine binary can be found at all.
	Available() bool
	// Build creates an image from contextDir. A non-empty dockerfile path
	// overrides the Dockerfile inside the context.
	Build(ctx context.Context, image, dockerfile, contextDir string) error
	// Run starts a detached container publishing hostPort on loopback and
	// returns the container id.
	Run(ctx context.Context, name, image string, hostPort, containerPort int) (string, error)
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	RemoveImage(ctx context.Context, image string) error
}

// dockerCLI shells out to the docker binary.
type dockerCLI struct {
	binary string
	logger *zap.Logger
}

// NewDockerCLI builds a ContainerRuntime over the named binary. An empty
// name means "docker" from PATH.
func NewDockerCLI(binary string, logger *zap.Logger) ContainerRuntime {
	if binary == "" {
		binary = "docker"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dockerCLI{binary: binary, logger: logger.Named("docker")}
}

func (d *dockerCLI) Available() bool {
	_, err := exec.LookPath(d.binary)
	return err == nil
}

func (d *dockerCLI) Build(ctx context.Context, image, dockerfile, contextDir string) error {
	args := []string{"build", "-t", image}
	if dockerfile != "" {
		args = append(args, "-f", dockerfile)
	}
	args = append(args, contextDir)
	_, err := d.run(ctx, args...)
	return err
}

func (d *dockerCLI) Run(ctx context.Context, name, image string, hostPort, containerPort int) (string, error) {
	out, err := d.run(ctx, "run", "-d",
		"-p", fmt.Sprintf("127.0.0.1:%d:%d", hostPort, containerPort),
		"--name", name,
		image,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (d *dockerCLI) Stop(ctx context.Context, name string) error {
	_, err := d.run(ctx, "stop", name)
	return err
}

func (d *dockerCLI) Remove(ctx context.Context, name string) error {
	_, err := d.run(ctx, "rm", name)
	return err
}

func (d *dockerCLI) RemoveImage(ctx context.Context, image string) error {
	_, err := d.run(ctx, "rmi", image)
	return err
}

func (d *dockerCLI) run(ctx context.Context, args ...string) (string, error) {
	d.logger.Debug("Running container engine command", zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, d.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %w. Output: %s", d.binary, args[0], err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
