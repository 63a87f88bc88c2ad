// Package lifecycle starts, verifies, and stops the database containers a
// benchmark runs against. Every failure path degrades to a (false, nil)
// start result so the orchestrator can record a failed test and keep going.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/docbench/docbench/pkg/config"
	"github.com/docbench/docbench/pkg/docker"
	"github.com/docbench/docbench/pkg/versions"
)

const (
	// readyInterval is the readiness polling cadence.
	readyInterval = 2 * time.Second

	// readyTimeout bounds readiness polling for most engines.
	readyTimeout = 60 * time.Second

	// documentDBReadyTimeout is longer because the gateway initializes
	// TLS material on first boot.
	documentDBReadyTimeout = 180 * time.Second

	// stopSettle is the fixed delay after removing a container, letting
	// the host release the published port before a successor binds it.
	stopSettle = 2 * time.Second
)

// Manager controls the lifecycle of benchmark database containers.
type Manager interface {
	// Start brings a container target up and reports whether it became
	// ready, along with best-effort version metadata.
	Start(ctx context.Context, target config.Target) (bool, *versions.Database)

	// StartCloud verifies a cloud target is reachable.
	StartCloud(ctx context.Context, target config.Target) (bool, *versions.Database)

	Stop(ctx context.Context, target config.Target) error
	StopAll(ctx context.Context, targets []config.Target)
}

type manager struct {
	log    logrus.FieldLogger
	docker docker.Manager
}

// Ensure interface compliance.
var _ Manager = (*manager)(nil)

// NewManager creates a lifecycle manager on top of a Docker manager.
func NewManager(log logrus.FieldLogger, dockerMgr docker.Manager) Manager {
	return &manager{
		log:    log.WithField("component", "lifecycle"),
		docker: dockerMgr,
	}
}

// Start removes any stale container with the target's name, runs a fresh
// one, waits for readiness, performs engine initialization, and collects
// version metadata.
func (m *manager) Start(ctx context.Context, target config.Target) (bool, *versions.Database) {
	log := m.log.WithField("database", target.Key)

	if err := m.docker.RemoveContainerByName(ctx, target.Container); err != nil {
		log.WithError(err).Error("Failed to remove stale container")

		return false, nil
	}

	if target.DBType == config.DocumentDB {
		if err := m.ensureDocumentDBImage(ctx); err != nil {
			log.WithError(err).Error("Failed to prepare DocumentDB image")

			return false, nil
		}
	}

	spec := containerSpec(target)
	if spec == nil {
		log.Error("No container definition for target")

		return false, nil
	}

	if err := m.docker.RunContainer(ctx, spec); err != nil {
		log.WithError(err).Error("Failed to start container")

		return false, nil
	}

	probe := newProbe(m.docker, target)

	if err := m.awaitReady(ctx, log, probe, target); err != nil {
		log.WithError(err).Error("Database did not become ready")

		return false, nil
	}

	if target.DBType == config.DocumentDB {
		// The gateway can accept connections before it accepts writes.
		if err := m.verifyDocumentDBOperational(ctx, target.Port); err != nil {
			log.WithError(err).Warn("Operational verification failed, continuing anyway")
		}
	}

	if err := m.initialize(ctx, target); err != nil {
		log.WithError(err).Error("Failed to initialize database")

		return false, nil
	}

	db := versions.CollectImage(ctx, log, m.docker, target.Image)
	db.Version = probe.Version(ctx)

	log.WithField("version", db.Version).Info("Database ready")

	return true, &db
}

func (m *manager) awaitReady(ctx context.Context, log logrus.FieldLogger, probe Probe, target config.Target) error {
	timeout := readyTimeout
	if target.DBType == config.DocumentDB {
		timeout = documentDBReadyTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyInterval)
	defer ticker.Stop()

	var lastErr error

	for {
		select {
		case <-waitCtx.Done():
			if lastErr != nil {
				return fmt.Errorf("readiness timeout after %s: %w", timeout, lastErr)
			}

			return fmt.Errorf("readiness timeout after %s", timeout)
		case <-ticker.C:
			if err := probe.Ready(waitCtx); err != nil {
				lastErr = err

				log.WithError(err).Debug("Not ready yet")

				continue
			}

			return nil
		}
	}
}

// initialize performs engine-specific first-boot setup. "Already exists"
// responses are success so restarts stay idempotent.
func (m *manager) initialize(ctx context.Context, target config.Target) error {
	switch target.DBType {
	case config.PostgreSQL:
		return m.execIgnoreExists(ctx, target.Container,
			"psql", "-U", "postgres", "-c", "CREATE DATABASE test")
	case config.YugabyteDB:
		// ysqlsh is only usable a few seconds after yugabyted reports
		// running, and must dial the container's own hostname.
		select {
		case <-time.After(10 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}

		return m.execIgnoreExists(ctx, target.Container,
			"bash", "-c", `ysqlsh -h "$(hostname)" -U yugabyte -c "CREATE DATABASE test"`)
	case config.CockroachDB:
		statements := []string{
			"CREATE DATABASE test",
			"CREATE USER IF NOT EXISTS postgres",
			"GRANT ALL ON DATABASE test TO postgres",
		}

		for _, stmt := range statements {
			if err := m.execIgnoreExists(ctx, target.Container,
				"cockroach", "sql", "--insecure", "-e", stmt); err != nil {
				return err
			}
		}

		return nil
	}

	return nil
}

func (m *manager) execIgnoreExists(ctx context.Context, container string, cmd ...string) error {
	out, code, err := m.docker.Exec(ctx, container, cmd...)
	if err != nil {
		return err
	}

	if code != 0 && !strings.Contains(out, "already exists") {
		return fmt.Errorf("init command exited %d: %s", code, strings.TrimSpace(out))
	}

	return nil
}

// Stop force-removes the target's container and waits for the port to
// settle.
func (m *manager) Stop(ctx context.Context, target config.Target) error {
	if err := m.docker.RemoveContainerByName(ctx, target.Container); err != nil {
		return fmt.Errorf("stopping %s: %w", target.Key, err)
	}

	select {
	case <-time.After(stopSettle):
	case <-ctx.Done():
	}

	m.log.WithField("database", target.Key).Info("Database stopped")

	return nil
}

// StopAll stops every container target, logging failures instead of
// propagating them.
func (m *manager) StopAll(ctx context.Context, targets []config.Target) {
	for _, target := range targets {
		if target.Cloud {
			continue
		}

		if err := m.Stop(ctx, target); err != nil {
			m.log.WithError(err).WithField("database", target.Key).Warn("Failed to stop database")
		}
	}
}

func containerSpec(target config.Target) *docker.ContainerSpec {
	switch target.DBType {
	case config.MongoDB:
		return &docker.ContainerSpec{
			Name:          target.Container,
			Image:         target.Image,
			HostPort:      target.Port,
			ContainerPort: 27017,
		}
	case config.DocumentDB:
		return &docker.ContainerSpec{
			Name:          target.Container,
			Image:         target.Image,
			Command:       []string{"--username", "testuser", "--password", "testpass"},
			HostPort:      target.Port,
			ContainerPort: 10260,
		}
	case config.PostgreSQL:
		return &docker.ContainerSpec{
			Name:          target.Container,
			Image:         target.Image,
			Env:           map[string]string{"POSTGRES_PASSWORD": "password"},
			HostPort:      target.Port,
			ContainerPort: 5432,
		}
	case config.YugabyteDB:
		return &docker.ContainerSpec{
			Name:          target.Container,
			Image:         target.Image,
			Command:       []string{"bin/yugabyted", "start", "--background=false"},
			HostPort:      target.Port,
			ContainerPort: 5433,
		}
	case config.CockroachDB:
		return &docker.ContainerSpec{
			Name:          target.Container,
			Image:         target.Image,
			Command:       []string{"start-single-node", "--insecure"},
			HostPort:      target.Port,
			ContainerPort: 26257,
		}
	}

	return nil
}
