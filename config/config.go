package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/maxpert/amqp-router/entity"
	routererrors "github.com/maxpert/amqp-router/errors"
	"github.com/maxpert/amqp-router/logging"
)

const (
	// EnvPrefix marks environment variables that overlay the config file.
	// A double underscore separates levels: ROUTER_LOGGING__LEVEL=debug.
	EnvPrefix = "ROUTER_"

	envLevelDelimiter = "__"
)

// Management schema defaults filled into listener and connector entities
// before they reach LoadServerConfig. host and port are never defaulted.
var (
	ConnectorDefaults = entity.Entity{
		"role":               "normal",
		"cost":               DefaultCost,
		"maxFrameSize":       16384,
		"maxSessions":        MaxSessionsLimit,
		"idleTimeoutSeconds": 16,
		"stripAnnotations":   "both",
		"verifyHostname":     true,
	}

	ListenerDefaults = entity.Entity{
		"role":                           "normal",
		"cost":                           DefaultCost,
		"maxFrameSize":                   16384,
		"maxSessions":                    MaxSessionsLimit,
		"idleTimeoutSeconds":             16,
		"initialHandshakeTimeoutSeconds": 0,
		"stripAnnotations":               "both",
		"authenticatePeer":               false,
	}
)

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Address string `koanf:"address" yaml:"address"`
}

// SnapshotConfig controls persistence of refreshed entity attributes. Path
// is a directory holding one CBOR file per entity.
type SnapshotConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Path    string `koanf:"path" yaml:"path"`
}

// NodeConfig is the router node configuration file. Entity sections carry
// the flat management attribute maps for each declared object.
type NodeConfig struct {
	Logging  logging.Config `koanf:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Snapshot SnapshotConfig `koanf:"snapshot" yaml:"snapshot"`

	// ExitOnInitialListenFailure terminates the process when a listener
	// cannot bind during the first start
	ExitOnInitialListenFailure bool `koanf:"exit_on_initial_listen_failure" yaml:"exit_on_initial_listen_failure"`

	SSLProfiles        []entity.Entity `koanf:"ssl_profiles" yaml:"ssl_profiles"`
	AuthServicePlugins []entity.Entity `koanf:"auth_service_plugins" yaml:"auth_service_plugins"`
	Listeners          []entity.Entity `koanf:"listeners" yaml:"listeners"`
	Connectors         []entity.Entity `koanf:"connectors" yaml:"connectors"`
}

// DefaultNodeConfig creates a configuration with no declared entities
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		Snapshot: SnapshotConfig{
			Enabled: false,
			Path:    "./data/snapshots",
		},
		ExitOnInitialListenFailure: true,
		SSLProfiles:                []entity.Entity{},
		AuthServicePlugins:         []entity.Entity{},
		Listeners:                  []entity.Entity{},
		Connectors:                 []entity.Entity{},
	}
}

// ApplySchemaDefaults fills every listener and connector entity with the
// management schema defaults. Values already present are kept.
func (c *NodeConfig) ApplySchemaDefaults() {
	for i, ent := range c.Listeners {
		c.Listeners[i] = ent.WithDefaults(ListenerDefaults)
	}
	for i, ent := range c.Connectors {
		c.Connectors[i] = ent.WithDefaults(ConnectorDefaults)
	}
}

// Validate checks the node level settings. Entities may be unnamed and
// names may repeat; attribute level checks happen in LoadServerConfig when
// the entity is configured.
func (c *NodeConfig) Validate() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return routererrors.NewInvalidAttribute("logging.level", c.Logging.Level, nil)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return routererrors.NewInvalidAttribute("logging.format", c.Logging.Format, nil)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return routererrors.NewMissingAttribute("metrics.address")
	}
	if c.Snapshot.Enabled && c.Snapshot.Path == "" {
		return routererrors.NewMissingAttribute("snapshot.path")
	}
	return nil
}

// Load reads a YAML (or JSON) configuration file on top of the current
// values, overlays ROUTER_ environment variables, fills schema defaults and
// validates the result.
func (c *NodeConfig) Load(source string) error {
	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("unsupported configuration format: %s", ext)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(source), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}
	if err := k.Load(envProvider(os.Environ), nil); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if err := k.UnmarshalWithConf("", c, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("failed to parse configuration file: %w", err)
	}

	c.ApplySchemaDefaults()
	return c.Validate()
}

func envProvider(environ func() []string) *env.Env {
	return env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.TrimPrefix(k, EnvPrefix)
			k = strings.ToLower(strings.ReplaceAll(k, envLevelDelimiter, "."))
			return k, v
		},
		EnvironFunc: environ,
	})
}

// Save writes the configuration as YAML
func (c *NodeConfig) Save(destination string) error {
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}

	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(destination, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}
