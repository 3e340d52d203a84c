package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfigMissing is returned when no config file exists yet.
var ErrConfigMissing = errors.New("cftun is not configured, run `cftun init` first")

// ErrCannotRemoveLast is returned when removing the only remaining account.
var ErrCannotRemoveLast = errors.New("cannot remove the last account, use `cftun reset` to remove all configuration")

// NotFoundError reports a missing account, zone or tunnel.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
}

// RemoteAPIError wraps a failed Cloudflare API call.
type RemoteAPIError struct {
	Operation string
	Err       error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// DaemonError wraps a failed service manager invocation.
type DaemonError struct {
	Operation string
	Detail    string
}

func (e *DaemonError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Operation, e.Detail)
	}
	return e.Operation
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsRemoteAPIError(err error) bool {
	var re *RemoteAPIError
	return errors.As(err, &re)
}

func IsAuthenticationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid token")
}
