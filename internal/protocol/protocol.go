// Package protocol defines the JSON-over-HTTP contract between the vo client
// and window endpoints.
package protocol

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Routes served by every window endpoint.
const (
	PathHealth = "/health"
	PathFiles  = "/files"
	PathOpen   = "/open"
	PathFocus  = "/focus"
)

// StatusOK is the identity status of a healthy endpoint.
const StatusOK = "ok"

// HandlerDefault names the editor's own open path in OpenResponse.HandlerUsed.
const HandlerDefault = "default"

// ErrInvalidRequest is wrapped by OpenRequest.Validate.
var ErrInvalidRequest = errors.New("invalid open request")

// IdentityResponse answers GET /health.
type IdentityResponse struct {
	Status    string `json:"status"`
	Workspace string `json:"workspace,omitempty"`
	OwnerID   string `json:"ownerId,omitempty"`
}

// OpenRequest is the body of POST /open.
type OpenRequest struct {
	File            string `json:"file"`
	Line            int    `json:"line,omitempty"`
	DistractionFree bool   `json:"distractionFree,omitempty"`
	BypassHandlers  bool   `json:"bypassHandlers,omitempty"`
}

// Validate checks the fields the endpoint relies on.
func (r OpenRequest) Validate() error {
	if r.File == "" {
		return fmt.Errorf("%w: file is required", ErrInvalidRequest)
	}
	if !filepath.IsAbs(r.File) {
		return fmt.Errorf("%w: file must be absolute: %s", ErrInvalidRequest, r.File)
	}
	if r.Line < 0 {
		return fmt.Errorf("%w: line must be positive, got %d", ErrInvalidRequest, r.Line)
	}
	return nil
}

// OpenResponse answers POST /open.
type OpenResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	HandlerUsed string `json:"handlerUsed,omitempty"`
}

// FilesResponse answers GET /files.
type FilesResponse struct {
	Success bool     `json:"success"`
	Files   []string `json:"files,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Ack answers requests that carry no payload, such as POST /focus.
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
