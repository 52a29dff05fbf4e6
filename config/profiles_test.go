package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/maxpert/amqp-router/entity"
	routererrors "github.com/maxpert/amqp-router/errors"
)

func TestParseStripAnnotations(t *testing.T) {
	tests := []struct {
		value    string
		inbound  bool
		outbound bool
	}{
		{"in", true, false},
		{"out", false, true},
		{"no", false, false},
		{"both", true, true},
		{"", true, true},
		{"garbage", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			in, out := ParseStripAnnotations(tt.value)
			assert.Equal(t, tt.inbound, in)
			assert.Equal(t, tt.outbound, out)
		})
	}
}

func TestParseLogComponents(t *testing.T) {
	assert.Equal(t, LogBits(0), ParseLogComponents(""))
	assert.Equal(t, LogBits(0), ParseLogComponents("none"))
	assert.Equal(t, LogBitsAll, ParseLogComponents("all"))

	bits := ParseLogComponents("message-id, to ,bogus")
	assert.True(t, bits.Enabled("message-id"))
	assert.True(t, bits.Enabled("to"))
	assert.False(t, bits.Enabled("user-id"))
	assert.False(t, bits.Enabled("bogus"))

	for _, component := range MessageComponents {
		assert.True(t, LogBitsAll.Enabled(component), component)
	}
}

func TestParseLogComponentsRoundTrip(t *testing.T) {
	bits := ParseLogComponents(strings.Join(MessageComponents, ","))
	for _, component := range MessageComponents {
		assert.True(t, bits.Enabled(component), component)
	}
	assert.Equal(t, LogBits(1<<len(MessageComponents)-1), bits)
}

func TestResolvePassword(t *testing.T) {
	t.Setenv("ROUTER_TEST_TLS_PASSWORD", "s3cret")

	pw, err := ResolvePassword("env:ROUTER_TEST_TLS_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = ResolvePassword("literal:  hunter2")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)

	pw, err = ResolvePassword("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", pw)

	pw, err = ResolvePassword("env:ROUTER_TEST_TLS_PASSWORD_UNSET")
	assert.True(t, routererrors.IsNotFound(err))
	assert.Equal(t, "env:ROUTER_TEST_TLS_PASSWORD_UNSET", pw)

	var cfgErr *routererrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "password", cfgErr.Key)
}

func TestReadPasswordFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "pw")
	require.NoError(t, os.WriteFile(path, []byte("first-line\nsecond-line\n"), 0600))
	assert.Equal(t, "first-line", readPasswordFile(path))

	long := filepath.Join(dir, "long")
	require.NoError(t, os.WriteFile(long, []byte(strings.Repeat("x", 300)), 0600))
	assert.Len(t, readPasswordFile(long), maxPasswordFileLen)

	assert.Equal(t, "", readPasswordFile(filepath.Join(dir, "missing")))
}

func TestDeclareTLSProfile(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "pw")
	require.NoError(t, os.WriteFile(pwFile, []byte("literal:from-file\n"), 0600))

	log, logs := observedLogger(zapcore.InfoLevel)
	p, err := DeclareTLSProfile(entity.Entity{
		"name":           "server-tls",
		"certFile":       "/certs/server.pem",
		"privateKeyFile": "/certs/server.key",
		"passwordFile":   pwFile,
		"caCertFile":     "/certs/ca.pem",
		"uidFormat":      "cou",
	}, log)
	require.NoError(t, err)

	assert.Equal(t, "server-tls", p.ProfileName())
	assert.Equal(t, "/certs/server.pem", p.CertificateFile)
	assert.Equal(t, "/certs/ca.pem", p.TrustedCertificateDB)
	assert.Equal(t, "from-file", p.Password)
	assert.Equal(t, 0, logs.FilterMessageSnippet("deprecated").Len())
	assert.Equal(t, 1, logs.FilterMessage("Created SSL Profile").Len())
}

func TestDeclareTLSProfileDeprecatedPassword(t *testing.T) {
	t.Setenv("ROUTER_TEST_PROFILE_PW", "from-env")

	log, logs := observedLogger(zapcore.WarnLevel)
	p, err := DeclareTLSProfile(entity.Entity{
		"name":         "legacy",
		"password":     "env:ROUTER_TEST_PROFILE_PW",
		"passwordFile": "/does/not/matter",
	}, log)
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.Password)
	assert.Equal(t, 1, logs.FilterMessageSnippet("deprecated").Len())
}

func TestDeclareTLSProfileMissingEnvironment(t *testing.T) {
	p, err := DeclareTLSProfile(entity.Entity{
		"name":     "broken",
		"password": "env:ROUTER_TEST_NOT_SET_ANYWHERE",
	}, nil)
	assert.Nil(t, p)
	assert.True(t, routererrors.IsNotFound(err))
}

func TestDeclareSASLPlugin(t *testing.T) {
	log, logs := observedLogger(zapcore.WarnLevel)

	p, err := DeclareSASLPlugin(entity.Entity{
		"name":       "auth",
		"host":       "auth.local",
		"port":       "5671",
		"realm":      "example",
		"sslProfile": "auth-tls",
	}, log)
	require.NoError(t, err)
	assert.Equal(t, "auth", p.ProfileName())
	assert.Equal(t, "auth.local:5671", p.AuthService)
	assert.Equal(t, "example", p.InitHostname)
	assert.Equal(t, "auth-tls", p.SSLProfile)
	assert.Equal(t, 0, logs.Len())

	p, err = DeclareSASLPlugin(entity.Entity{
		"name":        "legacy",
		"authService": "old.local:5672",
	}, log)
	require.NoError(t, err)
	assert.Equal(t, "old.local:5672", p.AuthService)
	assert.Equal(t, 1, logs.FilterMessageSnippet("authService").Len())
}

func TestDeclareSASLPluginIPv6Address(t *testing.T) {
	p, err := DeclareSASLPlugin(entity.Entity{
		"name": "auth6",
		"host": "fd00::10",
		"port": "5671",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "[fd00::10]:5671", p.AuthService)

	cfg, err := LoadServerConfig(entity.Entity{
		"host":               "fd00::10",
		"port":               "5671",
		"role":               "normal",
		"maxFrameSize":       16384,
		"maxSessions":        100,
		"idleTimeoutSeconds": 16,
	}, false, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, cfg.HostPort, p.AuthService)
}
