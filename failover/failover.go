// Package failover keeps the ordered list of alternate addresses a connector
// may try, and renders it as the comma separated failoverUrls attribute.
package failover

import (
	"fmt"
	"net"
	"strings"

	routererrors "github.com/maxpert/amqp-router/errors"
)

const (
	SchemeAMQP  = "amqp"
	SchemeAMQPS = "amqps"

	DefaultPort    = "5672"
	DefaultTLSPort = "5671"

	separator = ", "
)

// Item is one address a connector may connect to.
type Item struct {
	Scheme   string
	Host     string
	Port     string
	HostPort string
}

// NewItem builds an item and composes its host:port
func NewItem(scheme, host, port string) Item {
	return Item{
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		HostPort: net.JoinHostPort(host, port),
	}
}

// NewPrimary builds the item describing a connector's own configured address
func NewPrimary(sslRequired bool, host, port string) Item {
	scheme := SchemeAMQP
	if sslRequired {
		scheme = SchemeAMQPS
	}
	return NewItem(scheme, host, port)
}

// String renders the item as scheme://host:port, without the scheme segment
// when the item has none.
func (i Item) String() string {
	if i.Scheme == "" {
		return i.HostPort
	}
	return i.Scheme + "://" + i.HostPort
}

// List is an ordered, conceptually circular list of failover items.
type List []Item

// Clone returns an independent copy of the list
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}

// Render walks the list starting at the 1-based index, wrapping to the head,
// and joins at most len(l) entries with ", ". Positions are counted as the
// walk wraps, so an index past the tail starts where the walk first reaches
// it. An index below 1 is never reached and renders nothing.
func (l List) Render(index int) string {
	n := len(l)
	if n == 0 || index < 1 {
		return ""
	}

	var b strings.Builder
	start := (index - 1) % n
	for emitted := 0; emitted < n; emitted++ {
		if emitted > 0 {
			b.WriteString(separator)
		}
		b.WriteString(l[(start+emitted)%n].String())
	}
	return b.String()
}

// Parse reads a comma and/or space separated list of [scheme://]host[:port]
// entries. Missing ports default by scheme.
func Parse(text string) (List, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, routererrors.NewInvalidAttribute("failoverUrls", text, fmt.Errorf("no urls"))
	}

	list := make(List, 0, len(fields))
	for _, field := range fields {
		item, err := parseItem(field)
		if err != nil {
			return nil, routererrors.NewInvalidAttribute("failoverUrls", text, err)
		}
		list = append(list, item)
	}
	return list, nil
}

func parseItem(raw string) (Item, error) {
	scheme := ""
	rest := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		scheme = raw[:idx]
		rest = raw[idx+3:]
		if scheme == "" {
			return Item{}, fmt.Errorf("empty scheme in %q", raw)
		}
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return Item{}, fmt.Errorf("missing host in %q", raw)
	}

	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		// no port given
		host = strings.TrimSuffix(strings.TrimPrefix(rest, "["), "]")
		port = defaultPort(scheme)
	}
	if host == "" {
		return Item{}, fmt.Errorf("missing host in %q", raw)
	}
	if port == "" {
		port = defaultPort(scheme)
	}
	return NewItem(scheme, host, port), nil
}

func defaultPort(scheme string) string {
	if scheme == SchemeAMQPS {
		return DefaultTLSPort
	}
	return DefaultPort
}
