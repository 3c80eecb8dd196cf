package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"stratacache/internal/cache"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.Node.ID)
	assert.Equal(t, string(cache.StampedeBestEffort), cfg.Engine.StampedeMode)
	assert.Equal(t, "gzip", cfg.Engine.Compression)
	assert.Equal(t, "none", cfg.Replication.Transport)
	assert.False(t, cfg.Cluster.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default().Node.ID, cfg.Node.ID)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		raw := `
node:
  id: "node-7"
engine:
  stampede_mode: "strict"
  compression: "brotli"
namespaces:
  - name: "api_response"
    max_entries: 5000
    default_ttl: 2m
    eviction_policy: "lru"
warmup:
  sources:
    - namespace: "static"
      type: "file"
      locator: "/tmp/seed.json"
      ttl: 1h
`
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "node-7", cfg.Node.ID)
		assert.Equal(t, "strict", cfg.Engine.StampedeMode)
		require.Len(t, cfg.Namespaces, 1)
		assert.Equal(t, 2*time.Minute, cfg.Namespaces[0].DefaultTTL.Std())
		assert.Equal(t, 5000, cfg.Namespaces[0].Policy().MaxEntries)
		assert.Equal(t, 2*time.Minute, cfg.Namespaces[0].Policy().DefaultTTL)
		require.Len(t, cfg.Warmup.Sources, 1)
		assert.Equal(t, time.Hour, cfg.Warmup.Sources[0].TTL.Std())
	})

	t.Run("malformed yaml errors", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("node: [unclosed"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestDurationUnmarshal(t *testing.T) {
	var target struct {
		D Duration `yaml:"d"`
	}

	t.Run("duration string", func(t *testing.T) {
		require.NoError(t, yaml.Unmarshal([]byte("d: 90s"), &target))
		assert.Equal(t, 90*time.Second, target.D.Std())
	})

	t.Run("integer nanoseconds", func(t *testing.T) {
		require.NoError(t, yaml.Unmarshal([]byte("d: 1000000000"), &target))
		assert.Equal(t, time.Second, target.D.Std())
	})

	t.Run("garbage rejected", func(t *testing.T) {
		assert.Error(t, yaml.Unmarshal([]byte("d: soon"), &target))
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return Default() }

	t.Run("empty node id", func(t *testing.T) {
		cfg := valid()
		cfg.Node.ID = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad stampede mode", func(t *testing.T) {
		cfg := valid()
		cfg.Engine.StampedeMode = "eventually"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad compression codec", func(t *testing.T) {
		cfg := valid()
		cfg.Engine.Compression = "zstd"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad eviction policy", func(t *testing.T) {
		cfg := valid()
		cfg.Namespaces = []NamespaceConfig{{Name: "x", EvictionKind: "random"}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative limits", func(t *testing.T) {
		cfg := valid()
		cfg.Namespaces = []NamespaceConfig{{Name: "x", MaxEntries: -1}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("nats transport needs a url", func(t *testing.T) {
		cfg := valid()
		cfg.Replication.Transport = "nats"
		assert.Error(t, cfg.Validate())

		cfg.Replication.NATSURL = "nats://localhost:4222"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad warmup source type", func(t *testing.T) {
		cfg := valid()
		cfg.Warmup.Sources = []WarmupSourceConfig{{Namespace: "static", Type: "s3", Locator: "bucket"}}
		assert.Error(t, cfg.Validate())
	})
}
