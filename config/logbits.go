package config

import (
	"strings"
)

// LogBits selects which message components are written to the message log.
// Bit i corresponds to MessageComponents[i].
type LogBits uint32

const (
	logAll  = "all"
	logNone = "none"

	// LogBitsAll enables every component
	LogBitsAll = ^LogBits(0)
)

// MessageComponents are the loggable message components, in bit order
var MessageComponents = []string{
	"message-id",
	"user-id",
	"to",
	"subject",
	"reply-to",
	"correlation-id",
	"content-type",
	"content-encoding",
	"absolute-expiry-time",
	"creation-time",
	"group-id",
	"group-sequence",
	"reply-to-group-id",
	"app-properties",
}

// ParseLogComponents compiles a messageLoggingComponents value into a mask.
// Unknown component names are ignored.
func ParseLogComponents(value string) LogBits {
	if value == "" || value == logNone {
		return 0
	}
	if value == logAll {
		return LogBitsAll
	}

	var bits LogBits
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		for i, component := range MessageComponents {
			if component == token {
				bits |= 1 << i
			}
		}
	}
	return bits
}

// Enabled reports whether the named component is selected
func (b LogBits) Enabled(component string) bool {
	for i, name := range MessageComponents {
		if name == component {
			return (b>>i)&1 == 1
		}
	}
	return false
}
