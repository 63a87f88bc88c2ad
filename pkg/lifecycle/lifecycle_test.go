package lifecycle

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbench/docbench/pkg/config"
	"github.com/docbench/docbench/pkg/docker"
)

type execCall struct {
	container string
	cmd       []string
}

// fakeDocker scripts Exec responses by the first command token.
type fakeDocker struct {
	execs     []execCall
	execOut   map[string]string
	execCode  map[string]int
	removed   []string
	pulled    []string
	tagged    [][2]string
	present   bool
	imageInfo *docker.ImageInfo
}

var _ docker.Manager = (*fakeDocker)(nil)

func (f *fakeDocker) Start(ctx context.Context) error { return nil }
func (f *fakeDocker) Stop() error                     { return nil }

func (f *fakeDocker) RunContainer(ctx context.Context, spec *docker.ContainerSpec) error {
	return nil
}

func (f *fakeDocker) RemoveContainerByName(ctx context.Context, name string) error {
	f.removed = append(f.removed, name)

	return nil
}

func (f *fakeDocker) ContainerRunning(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (f *fakeDocker) Exec(ctx context.Context, name string, cmd ...string) (string, int, error) {
	f.execs = append(f.execs, execCall{container: name, cmd: cmd})

	return f.execOut[cmd[0]], f.execCode[cmd[0]], nil
}

func (f *fakeDocker) ImagePresent(ctx context.Context, imageName string) (bool, error) {
	return f.present, nil
}

func (f *fakeDocker) PullImage(ctx context.Context, imageName string) error {
	f.pulled = append(f.pulled, imageName)

	return nil
}

func (f *fakeDocker) TagImage(ctx context.Context, source, target string) error {
	f.tagged = append(f.tagged, [2]string{source, target})

	return nil
}

func (f *fakeDocker) ImageInfo(ctx context.Context, imageName string) (*docker.ImageInfo, error) {
	if f.imageInfo == nil {
		return &docker.ImageInfo{Tag: "latest"}, nil
	}

	return f.imageInfo, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func target(dbType config.DBType) config.Target {
	for _, t := range config.ContainerTargets() {
		if t.DBType == dbType {
			return t
		}
	}

	return config.Target{}
}

func TestContainerSpec(t *testing.T) {
	tests := []struct {
		dbType        config.DBType
		containerPort int
		wantEnv       string
		wantCmd       []string
	}{
		{dbType: config.MongoDB, containerPort: 27017},
		{
			dbType: config.DocumentDB, containerPort: 10260,
			wantCmd: []string{"--username", "testuser", "--password", "testpass"},
		},
		{dbType: config.PostgreSQL, containerPort: 5432, wantEnv: "POSTGRES_PASSWORD"},
		{
			dbType: config.YugabyteDB, containerPort: 5433,
			wantCmd: []string{"bin/yugabyted", "start", "--background=false"},
		},
		{
			dbType: config.CockroachDB, containerPort: 26257,
			wantCmd: []string{"start-single-node", "--insecure"},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.dbType), func(t *testing.T) {
			tgt := target(tt.dbType)
			spec := containerSpec(tgt)
			require.NotNil(t, spec)

			assert.Equal(t, tgt.Container, spec.Name)
			assert.Equal(t, tgt.Port, spec.HostPort)
			assert.Equal(t, tt.containerPort, spec.ContainerPort)

			if tt.wantEnv != "" {
				assert.Contains(t, spec.Env, tt.wantEnv)
			}

			if tt.wantCmd != nil {
				assert.Equal(t, tt.wantCmd, spec.Command)
			}
		})
	}
}

func TestExecIgnoreExists(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		code    int
		wantErr bool
	}{
		{name: "success", out: "CREATE DATABASE", code: 0},
		{name: "already exists is success", out: `ERROR: database "test" already exists`, code: 1},
		{name: "other failure propagates", out: "ERROR: connection refused", code: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := &fakeDocker{
				execOut:  map[string]string{"psql": tt.out},
				execCode: map[string]int{"psql": tt.code},
			}

			m := &manager{log: testLogger(), docker: fd}

			err := m.execIgnoreExists(context.Background(), "postgres-benchmark",
				"psql", "-U", "postgres", "-c", "CREATE DATABASE test")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInitialize_CockroachDB(t *testing.T) {
	fd := &fakeDocker{
		execOut:  map[string]string{},
		execCode: map[string]int{},
	}

	m := &manager{log: testLogger(), docker: fd}

	require.NoError(t, m.initialize(context.Background(), target(config.CockroachDB)))

	// Database, user, and grant in order.
	require.Len(t, fd.execs, 3)
	assert.Contains(t, fd.execs[0].cmd, "CREATE DATABASE test")
	assert.Contains(t, fd.execs[1].cmd, "CREATE USER IF NOT EXISTS postgres")
	assert.Contains(t, fd.execs[2].cmd, "GRANT ALL ON DATABASE test TO postgres")
}

func TestInitialize_DocumentStoresAreNoops(t *testing.T) {
	fd := &fakeDocker{}
	m := &manager{log: testLogger(), docker: fd}

	require.NoError(t, m.initialize(context.Background(), target(config.MongoDB)))
	require.NoError(t, m.initialize(context.Background(), target(config.DocumentDB)))

	assert.Empty(t, fd.execs)
}

func TestEnsureDocumentDBImage(t *testing.T) {
	t.Run("present image is untouched", func(t *testing.T) {
		fd := &fakeDocker{present: true}
		m := &manager{log: testLogger(), docker: fd}

		require.NoError(t, m.ensureDocumentDBImage(context.Background()))
		assert.Empty(t, fd.pulled)
		assert.Empty(t, fd.tagged)
	})

	t.Run("missing image is pulled and retagged", func(t *testing.T) {
		fd := &fakeDocker{}
		m := &manager{log: testLogger(), docker: fd}

		require.NoError(t, m.ensureDocumentDBImage(context.Background()))

		require.Len(t, fd.pulled, 1)
		assert.Equal(t, documentDBUpstreamImage, fd.pulled[0])

		require.Len(t, fd.tagged, 1)
		assert.Equal(t, [2]string{documentDBUpstreamImage, documentDBLocalImage}, fd.tagged[0])
	})
}

func TestProbes_Ready(t *testing.T) {
	tests := []struct {
		name    string
		dbType  config.DBType
		out     map[string]string
		code    map[string]int
		wantErr bool
	}{
		{
			name:   "mongodb ping ok",
			dbType: config.MongoDB,
			out:    map[string]string{"mongosh": "1\n"},
		},
		{
			name:    "mongodb ping refused",
			dbType:  config.MongoDB,
			out:     map[string]string{"mongosh": "MongoNetworkError"},
			code:    map[string]int{"mongosh": 1},
			wantErr: true,
		},
		{
			name:   "postgresql accepting connections",
			dbType: config.PostgreSQL,
			out:    map[string]string{"pg_isready": "accepting connections"},
		},
		{
			name:    "postgresql not ready",
			dbType:  config.PostgreSQL,
			code:    map[string]int{"pg_isready": 2},
			wantErr: true,
		},
		{
			name:   "yugabyte running",
			dbType: config.YugabyteDB,
			out:    map[string]string{"bin/yugabyted": "Status   : Running."},
		},
		{
			name:    "yugabyte still starting",
			dbType:  config.YugabyteDB,
			out:     map[string]string{"bin/yugabyted": "Status   : Bootstrapping."},
			wantErr: true,
		},
		{
			name:   "cockroach query ok",
			dbType: config.CockroachDB,
			out:    map[string]string{"cockroach": "1 row"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := &fakeDocker{execOut: tt.out, execCode: tt.code}
			if fd.execOut == nil {
				fd.execOut = map[string]string{}
			}

			if fd.execCode == nil {
				fd.execCode = map[string]int{}
			}

			probe := newProbe(fd, target(tt.dbType))
			err := probe.Ready(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProbes_Version(t *testing.T) {
	fd := &fakeDocker{
		execOut: map[string]string{
			"mongosh":   "7.0.12\n",
			"psql":      " PostgreSQL 16.3 (Debian 16.3-1) on x86_64-pc-linux-gnu\n",
			"cockroach": "CockroachDB CCL v24.1.2 (x86_64-pc-linux-gnu)",
		},
		execCode: map[string]int{},
	}

	assert.Equal(t, "7.0.12",
		newProbe(fd, target(config.MongoDB)).Version(context.Background()))
	assert.Equal(t, "16.3",
		newProbe(fd, target(config.PostgreSQL)).Version(context.Background()))
	assert.Equal(t, "24.1.2",
		newProbe(fd, target(config.CockroachDB)).Version(context.Background()))
}
