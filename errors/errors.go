package errors

import (
	"errors"
	"fmt"
	"sync"
)

// RouterError represents a general connection-manager error
type RouterError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

func (e *RouterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", CodeName(e.Code), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", CodeName(e.Code), e.Message)
}

func (e *RouterError) Unwrap() error {
	return e.Cause
}

func (e *RouterError) As(target interface{}) bool {
	if routerErr, ok := target.(**RouterError); ok {
		*routerErr = e
		return true
	}
	return false
}

// Error codes
const (
	None       = 0
	Validation = 1
	NotFound   = 2
	Runtime    = 3
)

// CodeName returns a human readable name for an error code
func CodeName(code int) string {
	switch code {
	case None:
		return "none"
	case Validation:
		return "validation"
	case NotFound:
		return "not-found"
	case Runtime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Configuration Errors

// ConfigError represents a problem with one attribute of a management entity
type ConfigError struct {
	RouterError
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

func NewConfigError(code int, message, key, value string, cause error) *ConfigError {
	return &ConfigError{
		RouterError: RouterError{
			Code:    code,
			Message: message,
			Cause:   cause,
		},
		Key:   key,
		Value: value,
	}
}

func NewMissingAttribute(key string) *ConfigError {
	return NewConfigError(Validation, fmt.Sprintf("missing required attribute '%s'", key), key, "", nil)
}

func NewInvalidAttribute(key, value string, cause error) *ConfigError {
	return NewConfigError(Validation, fmt.Sprintf("invalid value for attribute '%s': %q", key, value), key, value, cause)
}

func NewEnvironmentNotFound(variable string) *ConfigError {
	message := fmt.Sprintf("failed to find a password in the environment variable '%s'", variable)
	return NewConfigError(NotFound, message, "password", variable, nil)
}

func (e *ConfigError) As(target interface{}) bool {
	if routerErr, ok := target.(**RouterError); ok {
		*routerErr = &e.RouterError
		return true
	}
	return false
}

// Profile Errors

// ProfileError represents a failure to resolve or declare a named profile
type ProfileError struct {
	RouterError
	Kind    string `json:"kind"`
	Profile string `json:"profile"`
}

func NewProfileError(code int, message, kind, profile string, cause error) *ProfileError {
	return &ProfileError{
		RouterError: RouterError{
			Code:    code,
			Message: message,
			Cause:   cause,
		},
		Kind:    kind,
		Profile: profile,
	}
}

func NewSASLPluginNotFound(name string) *ProfileError {
	return NewProfileError(Runtime, fmt.Sprintf("cannot find sasl plugin %s", name), "authServicePlugin", name, nil)
}

func (e *ProfileError) As(target interface{}) bool {
	if routerErr, ok := target.(**RouterError); ok {
		*routerErr = &e.RouterError
		return true
	}
	return false
}

// Endpoint Errors

// EndpointError represents a listen or connect failure for a host:port
type EndpointError struct {
	RouterError
	HostPort string `json:"host_port"`
}

func NewEndpointError(message, hostPort string, cause error) *EndpointError {
	return &EndpointError{
		RouterError: RouterError{
			Code:    Runtime,
			Message: message,
			Cause:   cause,
		},
		HostPort: hostPort,
	}
}

func NewListenFailed(hostPort string, cause error) *EndpointError {
	return NewEndpointError(fmt.Sprintf("listen on %s failed", hostPort), hostPort, cause)
}

func NewConnectFailed(hostPort string, cause error) *EndpointError {
	return NewEndpointError(fmt.Sprintf("connect to %s failed", hostPort), hostPort, cause)
}

func (e *EndpointError) As(target interface{}) bool {
	if routerErr, ok := target.(**RouterError); ok {
		*routerErr = &e.RouterError
		return true
	}
	return false
}

// Helper functions for common error checking

// IsValidation checks if an error is a validation failure
func IsValidation(err error) bool {
	return GetErrorCode(err) == Validation
}

// IsNotFound checks if an error indicates a referenced item was not found
func IsNotFound(err error) bool {
	return GetErrorCode(err) == NotFound
}

// IsRuntime checks if an error is a runtime failure
func IsRuntime(err error) bool {
	return GetErrorCode(err) == Runtime
}

// GetErrorCode returns the error code if the error is a RouterError
func GetErrorCode(err error) int {
	var routerErr *RouterError
	if errors.As(err, &routerErr) {
		return routerErr.Code
	}
	return None
}

// Register holds the latest error reported by a management operation.
type Register struct {
	mu  sync.Mutex
	err error
}

// Set records err as the latest error. A nil err clears the register.
func (r *Register) Set(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Clear resets the register
func (r *Register) Clear() {
	r.Set(nil)
}

// Latest returns the latest recorded error or nil
func (r *Register) Latest() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Code returns the code of the latest error, None when empty
func (r *Register) Code() int {
	err := r.Latest()
	if err == nil {
		return None
	}
	if code := GetErrorCode(err); code != None {
		return code
	}
	return Runtime
}

// Message returns the message of the latest error, empty when none
func (r *Register) Message() string {
	err := r.Latest()
	if err == nil {
		return ""
	}
	return err.Error()
}
