package systemd1

import (
	"context"

	sysdbus "github.com/coreos/go-systemd/v22/dbus"
)

// unitAPI is the slice of go-systemd's connection the control client uses.
// *sysdbus.Conn satisfies it; tests substitute a fake.
type unitAPI interface {
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	GetUnitPropertyContext(ctx context.Context, unit string, propertyName string) (*sysdbus.Property, error)
	Close()
}

var _ unitAPI = (*sysdbus.Conn)(nil)

// Client wraps the systemd service manager for mutating unit operations.
// Every operation is fire-and-forget from the MQTT loop's point of view:
// failures are logged by the action layer and never retried.
type Client struct {
	conn unitAPI
}

type jobStarter func(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
