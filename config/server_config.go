package config

import (
	"github.com/maxpert/amqp-router/failover"
)

// Protocol limits applied while loading listener and connector configuration
const (
	// MinMaxFrameSize is the smallest max-frame-size AMQP allows
	MinMaxFrameSize = 512

	// MaxSessionsLimit is the transport ceiling on sessions per connection
	MaxSessionsLimit = 32768

	DefaultLinkCapacity = 250
	DefaultCost         = 1

	// maxInt32 is the largest positive 32-bit value, used as the session
	// frame count when none is configured and as the capacity ceiling.
	maxInt32 = 0x7FFFFFFF
)

// TLSConfig holds the TLS material copied out of a TLS profile
type TLSConfig struct {
	CertificateFile      string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	PrivateKeyFile       string `json:"privateKeyFile,omitempty" yaml:"privateKeyFile,omitempty"`
	Ciphers              string `json:"ciphers,omitempty" yaml:"ciphers,omitempty"`
	Protocols            string `json:"protocols,omitempty" yaml:"protocols,omitempty"`
	Password             string `json:"-" yaml:"-"`
	TrustedCertificateDB string `json:"caCertFile,omitempty" yaml:"caCertFile,omitempty"`
	TrustedCertificates  string `json:"trustedCertsFile,omitempty" yaml:"trustedCertsFile,omitempty"`
	UIDFormat            string `json:"uidFormat,omitempty" yaml:"uidFormat,omitempty"`
	UIDNameMappingFile   string `json:"uidNameMappingFile,omitempty" yaml:"uidNameMappingFile,omitempty"`
}

// IsZero reports whether no TLS material is set
func (t TLSConfig) IsZero() bool {
	return t == TLSConfig{}
}

// TLSProfile is a named bundle of TLS settings declared by the management layer.
type TLSProfile struct {
	Name string
	TLSConfig
}

// ProfileName returns the profile name
func (p *TLSProfile) ProfileName() string {
	return p.Name
}

// SASLPluginProfile names an external authentication service.
type SASLPluginProfile struct {
	Name         string
	AuthService  string
	InitHostname string
	// SSLProfile is the name of the TLS profile securing the auth channel
	SSLProfile string
}

// ProfileName returns the plugin name
func (p *SASLPluginProfile) ProfileName() string {
	return p.Name
}

// SASLPluginConfig is the resolved copy of a SASL plugin profile
type SASLPluginConfig struct {
	AuthService  string
	InitHostname string
	UseSSL       bool
	TLS          TLSConfig
}

// ServerConfig is the validated configuration of one listener or connector.
// Every field is an independent value; nothing aliases the profiles it was
// resolved from.
type ServerConfig struct {
	Host           string
	Port           string
	HostPort       string
	Role           string
	ProtocolFamily string
	Name           string

	MaxFrameSize                   int64
	MaxSessions                    int64
	IncomingCapacity               uint64
	IdleTimeoutSeconds             int64
	InitialHandshakeTimeoutSeconds int64
	LinkCapacity                   int64
	InterRouterCost                int64

	RequireAuthentication        bool
	RequireEncryption            bool
	SSLRequired                  bool
	SSLRequirePeerAuthentication bool
	VerifyHostName               bool
	AllowInsecureAuthentication  bool
	MultiTenant                  bool

	StripInboundAnnotations  bool
	StripOutboundAnnotations bool

	SASLUsername   string
	SASLPassword   string
	SASLMechanisms string
	SSLProfile     string
	SASLPlugin     string

	TLS              TLSConfig
	SASLPluginConfig SASLPluginConfig

	HTTP        bool
	HTTPRootDir string
	Metrics     bool

	LogMessage string
	LogBits    LogBits

	FailoverList failover.List
}

// Clone returns a copy of the config that shares no mutable state with c
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.FailoverList = c.FailoverList.Clone()
	return &out
}
