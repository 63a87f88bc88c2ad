// Package versions collects best-effort version metadata for result
// documents: the engine version, the Docker image identity, the Java client
// library, and the Java runtime. Every lookup degrades to an empty value
// rather than failing a benchmark.
package versions

import (
	"context"
	"encoding/xml"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/docbench/docbench/pkg/config"
	"github.com/docbench/docbench/pkg/docker"
)

// Database is the engine-side version metadata attached to a result.
type Database struct {
	Version        string
	DockerImage    string
	DockerImageTag string
	DockerImageID  string
}

// Client identifies the Java client library the load generator used.
type Client struct {
	Library string
	Version string
}

var (
	cockroachVersionRe = regexp.MustCompile(`CockroachDB\s+\w+\s+v?([\d.]+)`)
	yugabyteVersionRe  = regexp.MustCompile(`YB-([\d.]+)`)
	postgresVersionRe  = regexp.MustCompile(`PostgreSQL\s+([\d.]+)`)
	javaVersionRe      = regexp.MustCompile(`version\s+"([^"]+)"`)
)

// CollectImage fills the Docker image fields from a local image inspect.
func CollectImage(ctx context.Context, log logrus.FieldLogger, mgr docker.Manager, imageName string) Database {
	db := Database{DockerImage: imageName}

	info, err := mgr.ImageInfo(ctx, imageName)
	if err != nil {
		log.WithError(err).WithField("image", imageName).Debug("Failed to inspect image")

		return db
	}

	db.DockerImageTag = info.Tag
	db.DockerImageID = info.ID

	if info.Digest != "" {
		db.DockerImageID = info.Digest
	}

	return db
}

// ParseEngineVersion extracts the numeric engine version from the raw output
// of the engine's version query. SQL engines share a PostgreSQL-style banner,
// so YugabyteDB falls back to the PostgreSQL pattern when the YB marker is
// missing.
func ParseEngineVersion(dbType config.DBType, raw string) string {
	switch dbType {
	case config.CockroachDB:
		if m := cockroachVersionRe.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	case config.YugabyteDB:
		if m := yugabyteVersionRe.FindStringSubmatch(raw); m != nil {
			return m[1]
		}

		if m := postgresVersionRe.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	case config.PostgreSQL:
		if m := postgresVersionRe.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	default:
		// Document stores report a bare version string.
		return strings.TrimSpace(raw)
	}

	return ""
}

// ClientLibrary names the Java client library used against an engine.
func ClientLibrary(dbType config.DBType) string {
	switch dbType {
	case config.PostgreSQL, config.YugabyteDB, config.CockroachDB:
		return "postgresql"
	default:
		return "mongodb-driver-sync"
	}
}

type pomProject struct {
	Dependencies struct {
		Dependency []struct {
			GroupID    string `xml:"groupId"`
			ArtifactID string `xml:"artifactId"`
			Version    string `xml:"version"`
		} `xml:"dependency"`
	} `xml:"dependencies"`
}

// ClientVersion reads the version of a client library artifact from the load
// generator's pom.xml. Empty on any failure.
func ClientVersion(pomPath, artifact string) string {
	data, err := os.ReadFile(pomPath)
	if err != nil {
		return ""
	}

	var project pomProject
	if err := xml.Unmarshal(data, &project); err != nil {
		return ""
	}

	for _, dep := range project.Dependencies.Dependency {
		if dep.ArtifactID == artifact {
			return dep.Version
		}
	}

	return ""
}

// CollectClient resolves the client library name and version for an engine.
func CollectClient(dbType config.DBType, pomPath string) Client {
	library := ClientLibrary(dbType)

	return Client{
		Library: library,
		Version: ClientVersion(pomPath, library),
	}
}

// JavaVersion reports the local Java runtime version. The JVM prints its
// version banner on stderr.
func JavaVersion(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "java", "-version")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return ""
	}

	if m := javaVersionRe.FindStringSubmatch(string(out)); m != nil {
		return m[1]
	}

	return ""
}
