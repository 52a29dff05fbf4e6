package config

import (
	"github.com/maxpert/amqp-router/entity"
)

// NodeConfigBuilder provides a fluent API for building node configuration
type NodeConfigBuilder struct {
	config *NodeConfig
}

// NewNodeConfigBuilder creates a new builder with defaults
func NewNodeConfigBuilder() *NodeConfigBuilder {
	return &NodeConfigBuilder{
		config: DefaultNodeConfig(),
	}
}

// FromNodeConfig creates a builder from an existing configuration. Entity
// sections are copied so the builder never edits the source.
func FromNodeConfig(config *NodeConfig) *NodeConfigBuilder {
	builder := NewNodeConfigBuilder()
	*builder.config = *config
	builder.config.SSLProfiles = cloneEntities(config.SSLProfiles)
	builder.config.AuthServicePlugins = cloneEntities(config.AuthServicePlugins)
	builder.config.Listeners = cloneEntities(config.Listeners)
	builder.config.Connectors = cloneEntities(config.Connectors)
	return builder
}

func cloneEntities(in []entity.Entity) []entity.Entity {
	out := make([]entity.Entity, 0, len(in))
	for _, ent := range in {
		out = append(out, ent.Clone())
	}
	return out
}

// WithLogging sets level, format and output path of the router log
func (b *NodeConfigBuilder) WithLogging(level, format, outputPath string) *NodeConfigBuilder {
	b.config.Logging.Level = level
	b.config.Logging.Format = format
	b.config.Logging.OutputPath = outputPath
	return b
}

// WithMetrics enables the metrics endpoint on address
func (b *NodeConfigBuilder) WithMetrics(address string) *NodeConfigBuilder {
	b.config.Metrics.Enabled = true
	b.config.Metrics.Address = address
	return b
}

// WithSnapshots enables snapshot persistence at path
func (b *NodeConfigBuilder) WithSnapshots(path string) *NodeConfigBuilder {
	b.config.Snapshot.Enabled = true
	b.config.Snapshot.Path = path
	return b
}

// WithExitOnInitialListenFailure sets whether a failed first bind is fatal
func (b *NodeConfigBuilder) WithExitOnInitialListenFailure(exit bool) *NodeConfigBuilder {
	b.config.ExitOnInitialListenFailure = exit
	return b
}

// WithSSLProfile declares a TLS profile
func (b *NodeConfigBuilder) WithSSLProfile(ent entity.Entity) *NodeConfigBuilder {
	b.config.SSLProfiles = append(b.config.SSLProfiles, ent.Clone())
	return b
}

// WithAuthServicePlugin declares a SASL auth service plugin
func (b *NodeConfigBuilder) WithAuthServicePlugin(ent entity.Entity) *NodeConfigBuilder {
	b.config.AuthServicePlugins = append(b.config.AuthServicePlugins, ent.Clone())
	return b
}

// WithListener declares a listener
func (b *NodeConfigBuilder) WithListener(ent entity.Entity) *NodeConfigBuilder {
	b.config.Listeners = append(b.config.Listeners, ent.Clone())
	return b
}

// WithConnector declares a connector
func (b *NodeConfigBuilder) WithConnector(ent entity.Entity) *NodeConfigBuilder {
	b.config.Connectors = append(b.config.Connectors, ent.Clone())
	return b
}

// Build fills schema defaults and returns the validated configuration
func (b *NodeConfigBuilder) Build() (*NodeConfig, error) {
	b.config.ApplySchemaDefaults()
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return b.config, nil
}

// BuildUnsafe returns the configuration without defaults or validation
func (b *NodeConfigBuilder) BuildUnsafe() *NodeConfig {
	return b.config
}
