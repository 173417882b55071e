package mpclient

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrConnectFailed       ErrorKind = "connect-failed"
	ErrIO                  ErrorKind = "io"
	ErrIncompatibleVersion ErrorKind = "incompatible-version"
	ErrProtocol            ErrorKind = "protocol"
	ErrTimeout             ErrorKind = "timeout"
)

var ErrInvalidRequest = errors.New("mpclient: invalid login request")

// HandshakeError is an errored login. A rejected login is not an error.
type HandshakeError struct {
	Kind   ErrorKind
	State  State
	Detail string
	Err    error
}

func (e *HandshakeError) Error() string {
	msg := fmt.Sprintf("wesnoth login %s in %s", e.Kind, e.State)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// KindOf returns the handshake error kind carried by err, or "".
func KindOf(err error) ErrorKind {
	var herr *HandshakeError
	if errors.As(err, &herr) {
		return herr.Kind
	}
	return ""
}
