package systemd1

import (
	"context"

	sysdbus "github.com/coreos/go-systemd/v22/dbus"

	idbus "github.com/b0bbywan/go-systemctl-mqtt/backend/internal/dbus"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

// New connects to the systemd service manager on the system bus.
func New(ctx context.Context) (*Client, error) {
	conn, err := sysdbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("[systemd1] service manager connection established")
	return &Client{conn: conn}, nil
}

// Close releases the service manager connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// runJob enqueues a unit job and waits for its completion signal, the same
// pattern `systemctl` uses. The result string ("done", "failed", ...) is
// returned for logging; a non-"done" result is not an error at this layer.
func (c *Client) runJob(ctx context.Context, start jobStarter, name, mode string) error {
	ch := make(chan string, 1)
	if _, err := start(ctx, name, mode, ch); err != nil {
		return err
	}
	select {
	case result := <-ch:
		logger.Debug("[systemd1] job for %s finished: %s", name, result)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartUnit starts name with job mode "replace".
func (c *Client) StartUnit(ctx context.Context, name string) error {
	logger.Info("[systemd1] starting unit %s", name)
	return c.runJob(ctx, c.conn.StartUnitContext, name, modeReplace)
}

// StopUnit stops name with job mode "replace".
func (c *Client) StopUnit(ctx context.Context, name string) error {
	logger.Info("[systemd1] stopping unit %s", name)
	return c.runJob(ctx, c.conn.StopUnitContext, name, modeReplace)
}

// RestartUnit restarts name with job mode "replace".
func (c *Client) RestartUnit(ctx context.Context, name string) error {
	logger.Info("[systemd1] restarting unit %s", name)
	return c.runJob(ctx, c.conn.RestartUnitContext, name, modeReplace)
}

// IsolateUnit starts name with job mode "isolate", stopping everything the
// target does not depend on.
func (c *Client) IsolateUnit(ctx context.Context, name string) error {
	logger.Info("[systemd1] isolating unit %s", name)
	return c.runJob(ctx, c.conn.StartUnitContext, name, modeIsolate)
}

// IsIsolateAllowed reads the unit's AllowIsolate property. Any failure,
// including a missing or unloadable unit, defaults to "not allowed".
func (c *Client) IsIsolateAllowed(ctx context.Context, name string) bool {
	prop, err := c.conn.GetUnitPropertyContext(ctx, name, PROP_ALLOW_ISOLATE)
	if err != nil {
		logger.Debug("[systemd1] failed to read %s of %s: %v", PROP_ALLOW_ISOLATE, name, err)
		return false
	}
	if prop == nil {
		return false
	}
	allowed, ok := idbus.ExtractBool(prop.Value)
	if !ok {
		logger.Debug("[systemd1] %s of %s is not a bool: %v", PROP_ALLOW_ISOLATE, name, prop.Value)
		return false
	}
	return allowed
}
