// Package device drives the band's connection lifecycle: permission checks,
// locating and pairing the band, connecting, and feeding its byte stream
// through the frame assembler and record codec into the telemetry store.
package device

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied             = errors.New("permission denied")
	ErrDeviceNotFound               = errors.New("device not found")
	ErrPairingFailed                = errors.New("pairing failed")
	ErrConnectionVerificationFailed = errors.New("connection verification failed")
	ErrTransportDisconnected        = errors.New("transport disconnected")
	ErrNotConnected                 = errors.New("device is not connected")
	ErrConnectInProgress            = errors.New("connect already in progress")
	ErrConnectAbandoned             = errors.New("connect abandoned")
)

// Handle is a transport endpoint for one band. Implementations must tolerate
// Close being called more than once.
type Handle interface {
	// Name is the advertised device name, e.g. "HC-05".
	Name() string
	// Address uniquely identifies the endpoint on its transport.
	Address() string
	// Bonded reports whether the endpoint is already paired.
	Bonded() bool

	Connect(ctx context.Context) error
	IsConnected(ctx context.Context) (bool, error)

	// OnDataReceived registers fn for every chunk read from the endpoint. The
	// returned function removes the registration.
	OnDataReceived(fn func(chunk string)) (cancel func())

	// Write sends text to the device verbatim.
	Write(text string) error

	Close() error
}

// Transport discovers and pairs bands.
type Transport interface {
	ListBonded(ctx context.Context) ([]Handle, error)
	Discover(ctx context.Context) ([]Handle, error)
	Pair(ctx context.Context, h Handle) error

	// OnDeviceDisconnected registers fn for link loss on any endpoint the
	// transport opened. Notifications arrive independently of any request.
	OnDeviceDisconnected(fn func(h Handle)) (cancel func())
}

// Permission names a runtime permission required before discovery.
type Permission string

const (
	PermissionBluetooth Permission = "bluetooth"
	PermissionLocation  Permission = "location"
)

// RequiredPermissions are requested in order before every connect.
var RequiredPermissions = []Permission{PermissionBluetooth, PermissionLocation}

// Permissions grants or refuses runtime permissions.
type Permissions interface {
	Request(ctx context.Context, p Permission) (bool, error)
}

// RevocationNotifier is implemented by Permissions that can withdraw a grant
// while a session is running.
type RevocationNotifier interface {
	OnRevoked(fn func(p Permission)) (cancel func())
}
