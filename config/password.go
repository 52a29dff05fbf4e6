package config

import (
	"bufio"
	"os"
	"strings"

	routererrors "github.com/maxpert/amqp-router/errors"
)

const (
	envPrefix     = "env:"
	literalPrefix = "literal:"

	// maxPasswordFileLen bounds how much of a password file's first line is read
	maxPasswordFileLen = 199
)

// ResolvePassword expands a TLS profile password directive.
//
//	env:NAME      the value of environment variable NAME
//	literal:TEXT  TEXT, with leading spaces removed
//
// Anything else is returned unchanged. When the environment variable is not
// set the original directive is returned together with a not-found error.
func ResolvePassword(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, envPrefix):
		name := strings.TrimLeft(value[len(envPrefix):], " ")
		if pw, ok := os.LookupEnv(name); ok {
			return pw, nil
		}
		return value, routererrors.NewEnvironmentNotFound(name)
	case strings.HasPrefix(value, literalPrefix):
		return strings.TrimLeft(value[len(literalPrefix):], " "), nil
	default:
		return value, nil
	}
}

// readPasswordFile returns the first line of path, truncated to
// maxPasswordFileLen bytes. An unreadable or empty file yields "".
func readPasswordFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var b strings.Builder
	for b.Len() < maxPasswordFileLen {
		c, err := r.ReadByte()
		if err != nil || c == '\n' {
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}
