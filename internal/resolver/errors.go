package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrInputNotFound is returned before any registry or network access
	// when the requested path does not exist.
	ErrInputNotFound = errors.New("no such file or directory")
	// ErrNoWindow is returned by OpenFiles when no verified window serves
	// the directory.
	ErrNoWindow = errors.New("no live window for workspace")
)

// EndpointError reports that a verified window received the request and
// refused it. No fallback is attempted in that case.
type EndpointError struct {
	Endpoint  string
	Workspace string
	Message   string
}

func (e *EndpointError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("window %s (%s): %s", e.Endpoint, e.Workspace, msg)
}
