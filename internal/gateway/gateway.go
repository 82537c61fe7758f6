// Package gateway models the edge-gateway side of certificate attachment.
// A gateway holds named TLS listener certificates that each reference a
// vault secret by its version-less URI; the gateway re-resolves the latest
// version on its own refresh cycle.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the gateway has no listener certificate with the
	// requested name.
	ErrNotFound = errors.New("not attached to gateway")

	// ErrRemote wraps gateway control-plane failures.
	ErrRemote = errors.New("gateway operation failed")
)

// Action reports whether an Attach call created a new listener certificate
// or repointed an existing one.
type Action string

const (
	ActionAdded   Action = "added"
	ActionUpdated Action = "updated"
)

// Attachment is one named listener certificate on a gateway.
type Attachment struct {
	Name              string
	SecretID          string
	ProvisioningState string
	Updated           time.Time
}

// Client is the gateway control-plane boundary.
type Client interface {
	// Attach points the named listener certificate at secretID. The
	// reference must be version-less so the gateway can pick up rotated
	// versions without another attach.
	Attach(ctx context.Context, gatewayID, name, secretID string) (Action, *Attachment, error)

	List(ctx context.Context, gatewayID string) ([]Attachment, error)
	Get(ctx context.Context, gatewayID, name string) (*Attachment, error)
	Remove(ctx context.Context, gatewayID, name string) error
}
