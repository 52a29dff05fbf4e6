package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterError(t *testing.T) {
	err := &RouterError{
		Code:    Validation,
		Message: "bad value",
	}

	assert.Equal(t, "validation error: bad value", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestRouterErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := &RouterError{
		Code:    Runtime,
		Message: "wrapper",
		Cause:   cause,
	}

	assert.Equal(t, cause, err.Unwrap())
	assert.Equal(t, "runtime error: wrapper: underlying error", err.Error())
}

func TestCodeName(t *testing.T) {
	names := map[int]string{
		None:       "none",
		Validation: "validation",
		NotFound:   "not-found",
		Runtime:    "runtime",
		99:         "unknown",
	}

	for code, expected := range names {
		assert.Equal(t, expected, CodeName(code))
	}
}

func TestMissingAttribute(t *testing.T) {
	err := NewMissingAttribute("port")

	assert.Equal(t, Validation, err.Code)
	assert.Equal(t, "port", err.Key)
	assert.Contains(t, err.Message, "'port'")
	assert.True(t, IsValidation(err))
}

func TestInvalidAttribute(t *testing.T) {
	cause := errors.New("not a number")
	err := NewInvalidAttribute("maxFrameSize", "abc", cause)

	assert.Equal(t, Validation, err.Code)
	assert.Equal(t, "abc", err.Value)
	assert.ErrorIs(t, err, cause)
}

func TestEnvironmentNotFound(t *testing.T) {
	err := NewEnvironmentNotFound("MISSING")

	assert.True(t, IsNotFound(err))
	assert.Equal(t, "MISSING", err.Value)
}

func TestSASLPluginNotFound(t *testing.T) {
	err := NewSASLPluginNotFound("ldap")

	assert.True(t, IsRuntime(err))
	assert.Equal(t, "ldap", err.Profile)
	assert.Contains(t, err.Error(), "cannot find sasl plugin ldap")
}

func TestEndpointErrors(t *testing.T) {
	cause := errors.New("address in use")

	listenErr := NewListenFailed("0.0.0.0:5672", cause)
	assert.True(t, IsRuntime(listenErr))
	assert.Equal(t, "0.0.0.0:5672", listenErr.HostPort)
	assert.ErrorIs(t, listenErr, cause)

	connectErr := NewConnectFailed("broker:5671", cause)
	assert.Contains(t, connectErr.Error(), "connect to broker:5671 failed")
}

func TestWrappedErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("loading connector: %w", NewMissingAttribute("role"))

	assert.Equal(t, Validation, GetErrorCode(wrapped))
	assert.Equal(t, None, GetErrorCode(errors.New("plain")))
	assert.Equal(t, None, GetErrorCode(nil))
}

func TestRegister(t *testing.T) {
	var r Register

	assert.Nil(t, r.Latest())
	assert.Equal(t, None, r.Code())
	assert.Empty(t, r.Message())

	r.Set(NewSASLPluginNotFound("missing"))
	assert.Equal(t, Runtime, r.Code())
	assert.Contains(t, r.Message(), "missing")

	r.Set(errors.New("untyped"))
	assert.Equal(t, Runtime, r.Code())

	r.Clear()
	assert.Nil(t, r.Latest())
}
