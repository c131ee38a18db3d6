package login1

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/go-systemctl-mqtt/backend/internal/dbus"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

const prepareForShutdownSignal = LOGIN1_INTERFACE + "." + LOGIN1_SIGNAL_PREPARE_FOR_SHUTDOWN

// PrepareForShutdownHandler receives each decoded PrepareForShutdown payload.
// A handler error tears down the watch loop; the loops of one session form
// a single failure domain.
type PrepareForShutdownHandler func(active bool) error

// WatchPrepareForShutdown registers a match rule for logind's
// PrepareForShutdown signal and dispatches every payload to handler, in
// arrival order, until ctx is cancelled or the handler fails. Signals are
// never handled concurrently: the handler's publish-then-toggle-lock
// sequence must complete before the next signal is looked at.
func (c *Client) WatchPrepareForShutdown(ctx context.Context, handler PrepareForShutdownHandler) error {
	if err := c.conn.AddMatchSignal(
		dbus.WithMatchInterface(LOGIN1_INTERFACE),
		dbus.WithMatchMember(LOGIN1_SIGNAL_PREPARE_FOR_SHUTDOWN),
		dbus.WithMatchObjectPath(LOGIN1_PATH),
	); err != nil {
		return fmt.Errorf("failed to register PrepareForShutdown match rule: %w", err)
	}

	signals := make(chan *dbus.Signal, 10)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	logger.Info("[login1] watching PrepareForShutdown signals")
	return watchPrepareForShutdownLoop(ctx, signals, handler)
}

func watchPrepareForShutdownLoop(
	ctx context.Context,
	signals <-chan *dbus.Signal,
	handler PrepareForShutdownHandler,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig, ok := <-signals:
			if !ok {
				return &idbus.SignalError{Reason: "signal channel closed"}
			}
			active, ok := decodePrepareForShutdown(sig)
			if !ok {
				continue
			}
			logger.Debug("[login1] PrepareForShutdown(active=%v)", active)
			if err := handler(active); err != nil {
				return err
			}
		}
	}
}

// decodePrepareForShutdown extracts the boolean payload from a
// PrepareForShutdown signal. The shared connection delivers every matched
// signal to every registered channel, so unrelated signals are skipped.
func decodePrepareForShutdown(sig *dbus.Signal) (bool, bool) {
	if sig == nil || sig.Name != prepareForShutdownSignal {
		return false, false
	}
	if sig.Path != dbus.ObjectPath(LOGIN1_PATH) {
		return false, false
	}
	if len(sig.Body) < 1 {
		logger.Warn("[login1] PrepareForShutdown signal without payload")
		return false, false
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		logger.Warn("[login1] PrepareForShutdown payload is not a bool: %v", sig.Body[0])
		return false, false
	}
	return active, true
}
