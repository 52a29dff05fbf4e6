package transport

import (
	"context"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/maxpert/amqp-router/config"
	routererrors "github.com/maxpert/amqp-router/errors"
	"github.com/maxpert/amqp-router/failover"
	"github.com/maxpert/amqp-router/interfaces"
)

// Product is advertised to peers in the connection properties
const Product = "amqp-router"

// Connect dials target in the background and reports the outcome to
// handler. A cancelled ctx aborts the attempt before dialing.
func (t *Transport) Connect(ctx context.Context, cfg *config.ServerConfig, target failover.Item, handler interfaces.ConnectHandler) {
	go t.connect(ctx, cfg, target, handler)
}

func (t *Transport) connect(ctx context.Context, cfg *config.ServerConfig, target failover.Item, handler interfaces.ConnectHandler) {
	amqpConfig, err := t.AMQPConfig(cfg, target)
	if err != nil {
		handler.ConnectionFailed(routererrors.NewConnectFailed(target.HostPort, err))
		return
	}
	if err := ctx.Err(); err != nil {
		handler.ConnectionFailed(routererrors.NewConnectFailed(target.HostPort, err))
		return
	}

	url := URL(cfg, target)
	t.log.Debug("Connecting", zap.String("connector", cfg.Name), zap.String("url", url))

	conn, err := t.dial(url, amqpConfig)
	if err != nil {
		handler.ConnectionFailed(routererrors.NewConnectFailed(target.HostPort, err))
		return
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	c := newConnection(conn.RemoteAddr().String(), conn.Close)
	handler.ConnectionOpened(c)

	var closeErr error
	if amqpErr, ok := <-closed; ok && amqpErr != nil {
		closeErr = amqpErr
	}
	c.release()
	handler.ConnectionClosed(c, closeErr)
}

// URL renders the AMQP URL of target. Items parsed without a scheme use
// amqps when the connector requires TLS.
func URL(cfg *config.ServerConfig, target failover.Item) string {
	scheme := target.Scheme
	if scheme == "" {
		scheme = failover.SchemeAMQP
		if cfg.SSLRequired {
			scheme = failover.SchemeAMQPS
		}
	}
	return scheme + "://" + target.HostPort + "/"
}

// AMQPConfig maps a connector configuration onto the AMQP client config
func (t *Transport) AMQPConfig(cfg *config.ServerConfig, target failover.Item) (amqp.Config, error) {
	props := amqp.NewConnectionProperties()
	props["product"] = Product
	if cfg.Name != "" {
		props.SetClientConnectionName(cfg.Name)
	}

	c := amqp.Config{
		SASL:       saslMechanisms(cfg),
		ChannelMax: uint16(cfg.MaxSessions),
		FrameSize:  int(cfg.MaxFrameSize),
		Heartbeat:  time.Duration(cfg.IdleTimeoutSeconds) * time.Second / 2,
		Properties: props,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(t.dialTimeout),
	}
	if strings.HasPrefix(URL(cfg, target), failover.SchemeAMQPS+"://") {
		tlsConfig, err := ClientTLSConfig(cfg.TLS, target.Host, cfg.VerifyHostName)
		if err != nil {
			return amqp.Config{}, err
		}
		c.TLSClientConfig = tlsConfig
	}
	return c, nil
}

// saslMechanisms picks the client mechanisms in the order saslMechanisms
// lists them. Without a list, credentials select PLAIN. A nil result lets
// the client fall back to the URL credentials.
func saslMechanisms(cfg *config.ServerConfig) []amqp.Authentication {
	var out []amqp.Authentication
	for _, mech := range strings.Fields(strings.ToUpper(cfg.SASLMechanisms)) {
		switch mech {
		case "EXTERNAL":
			out = append(out, &amqp.ExternalAuth{})
		case "PLAIN":
			out = append(out, &amqp.PlainAuth{Username: cfg.SASLUsername, Password: cfg.SASLPassword})
		case "AMQPLAIN":
			out = append(out, &amqp.AMQPlainAuth{Username: cfg.SASLUsername, Password: cfg.SASLPassword})
		}
	}
	if len(out) == 0 && cfg.SASLUsername != "" {
		out = append(out, &amqp.PlainAuth{Username: cfg.SASLUsername, Password: cfg.SASLPassword})
	}
	return out
}
