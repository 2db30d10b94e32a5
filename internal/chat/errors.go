package chat

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed completion call.
type ErrorKind string

const (
	KindNetwork            ErrorKind = "NetworkConnectivity"
	KindAuthentication     ErrorKind = "Authentication"
	KindModelConfiguration ErrorKind = "ModelConfiguration"
	KindEmptyResponse      ErrorKind = "EmptyResponse"
	KindTimeout            ErrorKind = "Timeout"
	KindHTTPStatus         ErrorKind = "HTTPStatus"
	KindDecode             ErrorKind = "Decode"
	KindTransport          ErrorKind = "Transport"

	// KindInternal marks failures that happen before the upstream is
	// contacted, such as missing configuration.
	KindInternal ErrorKind = "Internal"
)

// UpstreamError is returned by the completion client for every failure that
// involves the completion service.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion service error (%d): %s", e.StatusCode, msg)
	}
	return "completion service error: " + msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConfigError reports a completion client that cannot be used because a
// required setting is missing.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return e.Setting + " is not configured"
}

var errNoCompleter = errors.New("completion client is not configured")
