// Package config loads the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stratacache/internal/cache"
)

// Duration decodes YAML duration strings like "30s" or "5m". Plain integers
// are treated as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(int64(v))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Config represents the main configuration structure
type Config struct {
	Node        NodeConfig        `yaml:"node"`
	Engine      EngineConfig      `yaml:"engine"`
	Namespaces  []NamespaceConfig `yaml:"namespaces"`
	Warmup      WarmupConfig      `yaml:"warmup"`
	Cluster     ClusterConfig     `yaml:"cluster"`
	Replication ReplicationConfig `yaml:"replication"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// NodeConfig contains node-specific configuration
type NodeConfig struct {
	ID string `yaml:"id"`
}

// EngineConfig contains engine-wide configuration
type EngineConfig struct {
	StampedeMode string `yaml:"stampede_mode"` // "best-effort" or "strict"
	Compression  string `yaml:"compression"`   // "gzip", "brotli", "none"
}

// NamespaceConfig overrides the default policy for one namespace
type NamespaceConfig struct {
	Name                 string   `yaml:"name"`
	MaxSizeBytes         int64    `yaml:"max_size_bytes"`
	MaxEntries           int      `yaml:"max_entries"`
	DefaultTTL           Duration `yaml:"default_ttl"`
	EvictionKind         string   `yaml:"eviction_policy"`
	CompressionThreshold int64    `yaml:"compression_threshold_bytes"`
	ReplicationFactor    int      `yaml:"replication_factor"`
	WarmupOnStart        bool     `yaml:"warmup_on_start"`
}

// Policy converts the namespace configuration to an engine policy.
func (n NamespaceConfig) Policy() cache.Policy {
	return cache.Policy{
		MaxSizeBytes:         n.MaxSizeBytes,
		MaxEntries:           n.MaxEntries,
		DefaultTTL:           n.DefaultTTL.Std(),
		EvictionKind:         n.EvictionKind,
		CompressionThreshold: n.CompressionThreshold,
		ReplicationFactor:    n.ReplicationFactor,
		WarmupOnStart:        n.WarmupOnStart,
	}
}

// WarmupConfig configures the startup warmup loader
type WarmupConfig struct {
	MaxConcurrent int                  `yaml:"max_concurrent"`
	Sources       []WarmupSourceConfig `yaml:"sources"`
}

// WarmupSourceConfig describes one external warmup source
type WarmupSourceConfig struct {
	Namespace string   `yaml:"namespace"`
	Type      string   `yaml:"type"`    // "file", "http", "redis"
	Locator   string   `yaml:"locator"` // path, URL, or key pattern
	RedisAddr string   `yaml:"redis_addr,omitempty"`
	TTL       Duration `yaml:"ttl"`
}

// ClusterConfig contains gossip membership configuration
type ClusterConfig struct {
	Enabled          bool     `yaml:"enabled"`
	ClusterName      string   `yaml:"cluster_name"`
	BindAddress      string   `yaml:"bind_address"`
	BindPort         int      `yaml:"bind_port"`
	AdvertiseAddress string   `yaml:"advertise_address"`
	Seeds            []string `yaml:"seeds"`
}

// ReplicationConfig configures the replication transport
type ReplicationConfig struct {
	Transport     string `yaml:"transport"` // "none" or "nats"
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level         string `yaml:"level"` // debug, info, warn, error, fatal
	EnableConsole bool   `yaml:"enable_console"`
	EnableFile    bool   `yaml:"enable_file"`
	LogFile       string `yaml:"log_file"`
	BufferSize    int    `yaml:"buffer_size"`
	LogDir        string `yaml:"log_dir"`
}

// MetricsConfig configures the HTTP metrics listener
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BindAddr string `yaml:"bind_addr"`
	Port     int    `yaml:"port"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing config runs on defaults
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID: "stratacache-node-1",
		},
		Engine: EngineConfig{
			StampedeMode: string(cache.StampedeBestEffort),
			Compression:  "gzip",
		},
		Warmup: WarmupConfig{
			MaxConcurrent: 5,
		},
		Cluster: ClusterConfig{
			Enabled:     false,
			ClusterName: "stratacache",
			BindAddress: "0.0.0.0",
			BindPort:    7946,
		},
		Replication: ReplicationConfig{
			Transport:     "none",
			SubjectPrefix: "stratacache.repl",
		},
		Logging: LoggingConfig{
			Level:         "info",
			EnableConsole: true,
			BufferSize:    256,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			BindAddr: "0.0.0.0",
			Port:     9090,
		},
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id cannot be empty")
	}

	switch c.Engine.StampedeMode {
	case "", string(cache.StampedeBestEffort), string(cache.StampedeStrict):
	default:
		return fmt.Errorf("engine.stampede_mode must be %q or %q, got %q",
			cache.StampedeBestEffort, cache.StampedeStrict, c.Engine.StampedeMode)
	}

	switch c.Engine.Compression {
	case "", "gzip", "brotli", "none":
	default:
		return fmt.Errorf("engine.compression must be gzip, brotli or none, got %q", c.Engine.Compression)
	}

	for _, ns := range c.Namespaces {
		if ns.Name == "" {
			return fmt.Errorf("namespace name cannot be empty")
		}
		switch ns.EvictionKind {
		case "", cache.EvictionLRU, cache.EvictionLFU, cache.EvictionFIFO, cache.EvictionTTL:
		default:
			return fmt.Errorf("namespace %s: unknown eviction policy %q", ns.Name, ns.EvictionKind)
		}
		if ns.MaxSizeBytes < 0 || ns.MaxEntries < 0 {
			return fmt.Errorf("namespace %s: limits cannot be negative", ns.Name)
		}
	}

	if c.Replication.Transport == "nats" && c.Replication.NATSURL == "" {
		return fmt.Errorf("replication.nats_url is required when transport is nats")
	}

	for _, src := range c.Warmup.Sources {
		if src.Namespace == "" || src.Locator == "" {
			return fmt.Errorf("warmup sources need a namespace and a locator")
		}
		switch src.Type {
		case "file", "http", "redis":
		default:
			return fmt.Errorf("warmup source type must be file, http or redis, got %q", src.Type)
		}
	}

	return nil
}
