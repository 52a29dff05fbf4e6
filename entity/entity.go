// Package entity models the flat attribute maps the management layer hands to
// the connection manager, with typed accessors that report missing or
// malformed attributes as validation errors.
package entity

import (
	"fmt"

	"github.com/spf13/cast"

	routererrors "github.com/maxpert/amqp-router/errors"
)

// Entity is a flat attribute map for one listener, connector or profile.
type Entity map[string]any

// Has reports whether key is present with a non-nil value
func (e Entity) Has(key string) bool {
	v, ok := e[key]
	return ok && v != nil
}

// GetString returns a required string attribute
func (e Entity) GetString(key string) (string, error) {
	if !e.Has(key) {
		return "", routererrors.NewMissingAttribute(key)
	}
	return e.toString(key)
}

// OptString returns a string attribute, or def when it is absent
func (e Entity) OptString(key, def string) (string, error) {
	if !e.Has(key) {
		return def, nil
	}
	return e.toString(key)
}

// GetLong returns a required integer attribute
func (e Entity) GetLong(key string) (int64, error) {
	if !e.Has(key) {
		return 0, routererrors.NewMissingAttribute(key)
	}
	return e.toLong(key)
}

// OptLong returns an integer attribute, or def when it is absent
func (e Entity) OptLong(key string, def int64) (int64, error) {
	if !e.Has(key) {
		return def, nil
	}
	return e.toLong(key)
}

// OptBool returns a boolean attribute, or def when it is absent
func (e Entity) OptBool(key string, def bool) (bool, error) {
	if !e.Has(key) {
		return def, nil
	}
	v, err := cast.ToBoolE(e[key])
	if err != nil {
		return false, routererrors.NewInvalidAttribute(key, fmt.Sprint(e[key]), err)
	}
	return v, nil
}

// SetString stores a string attribute
func (e Entity) SetString(key, value string) {
	e[key] = value
}

// WithDefaults returns a copy of e where every key of defaults that is absent
// from e has been filled in.
func (e Entity) WithDefaults(defaults Entity) Entity {
	out := make(Entity, len(e)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range e {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy of e
func (e Entity) Clone() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func (e Entity) toString(key string) (string, error) {
	v, err := cast.ToStringE(e[key])
	if err != nil {
		return "", routererrors.NewInvalidAttribute(key, fmt.Sprint(e[key]), err)
	}
	return v, nil
}

func (e Entity) toLong(key string) (int64, error) {
	v, err := cast.ToInt64E(e[key])
	if err != nil {
		return 0, routererrors.NewInvalidAttribute(key, fmt.Sprint(e[key]), err)
	}
	return v, nil
}
