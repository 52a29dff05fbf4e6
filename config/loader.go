package config

import (
	"math"
	"math/bits"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/maxpert/amqp-router/entity"
	routererrors "github.com/maxpert/amqp-router/errors"
)

// ProfileResolver looks up declared profiles by name during config load.
type ProfileResolver interface {
	FindTLSProfile(name string) (*TLSProfile, bool)
	FindSASLPlugin(name string) (*SASLPluginProfile, bool)
}

// wordSize is the platform word width. On narrow platforms the unbounded
// incoming capacity cannot be represented and collapses to zero.
var wordSize = bits.UintSize

// LoadServerConfig turns a listener or connector entity into a validated
// ServerConfig. Referenced TLS and SASL plugin profiles are copied by value.
// On error no config is returned.
func LoadServerConfig(ent entity.Entity, isListener bool, resolver ProfileResolver, log *zap.Logger) (*ServerConfig, error) {
	if log == nil {
		log = zap.NewNop()
	}

	authenticatePeer, err := ent.OptBool("authenticatePeer", false)
	if err != nil {
		return nil, err
	}
	verifyHostName, err := ent.OptBool("verifyHostname", true)
	if err != nil {
		return nil, err
	}
	requireEncryption, err := ent.OptBool("requireEncryption", false)
	if err != nil {
		return nil, err
	}
	requireSsl, err := ent.OptBool("requireSsl", false)
	if err != nil {
		return nil, err
	}

	c := &ServerConfig{}

	if c.LogMessage, err = ent.OptString("messageLoggingComponents", ""); err != nil {
		return nil, err
	}
	c.LogBits = ParseLogComponents(c.LogMessage)

	if c.Port, err = ent.GetString("port"); err != nil {
		return nil, err
	}
	if c.Name, err = ent.OptString("name", ""); err != nil {
		return nil, err
	}
	if c.Role, err = ent.GetString("role"); err != nil {
		return nil, err
	}
	if c.InterRouterCost, err = ent.OptLong("cost", DefaultCost); err != nil {
		return nil, err
	}
	if c.ProtocolFamily, err = ent.OptString("protocolFamily", ""); err != nil {
		return nil, err
	}
	if c.Metrics, err = ent.OptBool("metrics", true); err != nil {
		return nil, err
	}
	if c.HTTP, err = ent.OptBool("http", false); err != nil {
		return nil, err
	}
	if c.HTTPRootDir, err = ent.OptString("httpRootDir", ""); err != nil {
		return nil, err
	}

	// A root dir implies http. Without one only the websocket channel is
	// served, no static content.
	c.HTTP = c.HTTP || c.HTTPRootDir != ""
	if c.HTTP && c.HTTPRootDir == "" {
		log.Info("HTTP service is requested but no httpRootDir specified. The router will serve AMQP-over-websockets but no static content.")
	}
	if c.Metrics && !c.HTTP {
		log.Info("Metrics can only be exported on listener with http enabled.")
	}

	if c.MaxFrameSize, err = ent.GetLong("maxFrameSize"); err != nil {
		return nil, err
	}
	if c.MaxSessions, err = ent.GetLong("maxSessions"); err != nil {
		return nil, err
	}
	sessionFrames, err := ent.OptLong("maxSessionFrames", 0)
	if err != nil {
		return nil, err
	}
	if sessionFrames < 0 {
		return nil, routererrors.NewInvalidAttribute("maxSessionFrames", strconv.FormatInt(sessionFrames, 10), nil)
	}
	if c.IdleTimeoutSeconds, err = ent.GetLong("idleTimeoutSeconds"); err != nil {
		return nil, err
	}
	if isListener {
		if c.InitialHandshakeTimeoutSeconds, err = ent.GetLong("initialHandshakeTimeoutSeconds"); err != nil {
			return nil, err
		}
	}

	if c.SASLUsername, err = ent.OptString("saslUsername", ""); err != nil {
		return nil, err
	}
	if c.SASLPassword, err = ent.OptString("saslPassword", ""); err != nil {
		return nil, err
	}
	if c.SASLMechanisms, err = ent.OptString("saslMechanisms", ""); err != nil {
		return nil, err
	}
	if c.SSLProfile, err = ent.OptString("sslProfile", ""); err != nil {
		return nil, err
	}
	if c.SASLPlugin, err = ent.OptString("saslPlugin", ""); err != nil {
		return nil, err
	}
	if c.LinkCapacity, err = ent.OptLong("linkCapacity", 0); err != nil {
		return nil, err
	}
	if c.MultiTenant, err = ent.OptBool("multiTenant", false); err != nil {
		return nil, err
	}

	if c.Host, err = ent.GetString("host"); err != nil {
		return nil, err
	}
	c.HostPort = net.JoinHostPort(c.Host, c.Port)

	if c.LinkCapacity == 0 {
		c.LinkCapacity = DefaultLinkCapacity
	}
	if c.MaxSessions <= 0 || c.MaxSessions > MaxSessionsLimit {
		c.MaxSessions = MaxSessionsLimit
	}
	// Raised here rather than left to the transport because the capacity
	// below depends on it.
	if c.MaxFrameSize < MinMaxFrameSize {
		c.MaxFrameSize = MinMaxFrameSize
	}

	capacity, truncatedFrames, truncated := incomingCapacity(uint64(sessionFrames), uint64(c.MaxFrameSize))
	c.IncomingCapacity = capacity
	if truncated {
		log.Warn("requested maxSessionFrames truncated",
			zap.String("name", c.Name),
			zap.String("host", c.Host),
			zap.String("port", c.Port),
			zap.Int64("requested", sessionFrames),
			zap.Uint64("truncated", truncatedFrames))
	}

	// Hardwired until there is a reason to make it configurable.
	c.AllowInsecureAuthentication = true
	c.VerifyHostName = verifyHostName

	stripAnnotations, err := ent.OptString("stripAnnotations", "")
	if err != nil {
		return nil, err
	}
	c.StripInboundAnnotations, c.StripOutboundAnnotations = ParseStripAnnotations(stripAnnotations)

	c.RequireAuthentication = authenticatePeer
	c.RequireEncryption = requireEncryption || requireSsl

	if c.SSLProfile != "" {
		c.SSLRequired = requireSsl
		c.SSLRequirePeerAuthentication = strings.Contains(c.SASLMechanisms, "EXTERNAL")

		if resolver != nil {
			if profile, ok := resolver.FindTLSProfile(c.SSLProfile); ok {
				c.TLS = profile.TLSConfig
			}
		}
	}

	if c.SASLPlugin != "" {
		var plugin *SASLPluginProfile
		ok := false
		if resolver != nil {
			plugin, ok = resolver.FindSASLPlugin(c.SASLPlugin)
		}
		if !ok {
			return nil, routererrors.NewSASLPluginNotFound(c.SASLPlugin)
		}

		c.SASLPluginConfig.AuthService = plugin.AuthService
		c.SASLPluginConfig.InitHostname = plugin.InitHostname
		log.Info("Using auth service from SASL plugin",
			zap.String("authService", plugin.AuthService),
			zap.String("plugin", c.SASLPlugin))

		if plugin.SSLProfile != "" {
			c.SASLPluginConfig.UseSSL = true
			if profile, found := resolver.FindTLSProfile(plugin.SSLProfile); found {
				c.SASLPluginConfig.TLS = profile.TLSConfig
			} else {
				log.Warn("SASL plugin references an unknown sslProfile",
					zap.String("plugin", c.SASLPlugin),
					zap.String("sslProfile", plugin.SSLProfile))
			}
		}
	}

	return c, nil
}

// incomingCapacity computes the session flow-control budget in bytes from
// the configured session frame count and max frame size. When the product
// exceeds the 31-bit ceiling it is clamped and the equivalent frame count is
// returned with truncated set.
func incomingCapacity(sessionFrames, maxFrameSize uint64) (capacity, truncatedFrames uint64, truncated bool) {
	if sessionFrames == 0 {
		if wordSize < 64 {
			return 0, 0, false
		}
		hi, lo := bits.Mul64(maxInt32, maxFrameSize)
		if hi != 0 {
			return math.MaxUint64, 0, false
		}
		return lo, 0, false
	}

	hi, product := bits.Mul64(sessionFrames, maxFrameSize)
	if hi != 0 || product > maxInt32 {
		return maxInt32, maxInt32 / maxFrameSize, true
	}
	if product < MinMaxFrameSize {
		return MinMaxFrameSize, 0, false
	}
	return product, 0, false
}
