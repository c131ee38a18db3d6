package systemd1

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/go-systemctl-mqtt/backend/internal/dbus"
	"github.com/b0bbywan/go-systemctl-mqtt/cache"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

// PublishFunc forwards a unit's ActiveState to MQTT (retained).
type PublishFunc func(ctx context.Context, activeState string) error

// Monitor is the long-lived signal task for one monitored unit. It shares
// the process-wide godbus connection with its sibling tasks; each task
// registers its own PropertiesChanged match rule scoped to the unit's
// object path and filters the shared signal stream by that path.
type Monitor struct {
	conn    *dbus.Conn
	unit    string
	path    dbus.ObjectPath
	states  *cache.Store[string]
	publish PublishFunc

	// fetch is swapped out by tests; the default reads ActiveState
	// from the resolved unit object.
	fetch func() (string, error)
}

func NewMonitor(conn *dbus.Conn, unit string, states *cache.Store[string], publish PublishFunc) *Monitor {
	m := &Monitor{
		conn:    conn,
		unit:    unit,
		states:  states,
		publish: publish,
	}
	m.fetch = m.fetchActiveState
	return m
}

// resolveUnitPath asks the service manager for the unit's object path.
// Called once at startup; the path backs the match rule and property reads
// for the task's whole lifetime.
func (m *Monitor) resolveUnitPath() error {
	manager := idbus.GetObject(m.conn, SYSTEMD1_PREFIX, SYSTEMD1_PATH)
	call := manager.Call(SYSTEMD1_METHOD_GET_UNIT, 0, m.unit)
	if err := idbus.CallWithTimeout(call); err != nil {
		return fmt.Errorf("failed to resolve unit %s: %w", m.unit, err)
	}
	if err := call.Store(&m.path); err != nil {
		return fmt.Errorf("failed to decode unit path of %s: %w", m.unit, err)
	}
	logger.Debug("[systemd1] resolved %s to %s", m.unit, m.path)
	return nil
}

func (m *Monitor) fetchActiveState() (string, error) {
	obj := m.conn.Object(SYSTEMD1_PREFIX, m.path)
	return idbus.GetStringProperty(obj, UNIT_INTERFACE, PROP_ACTIVE_STATE)
}

// Run resolves the unit, registers the match rule and processes
// PropertiesChanged signals until ctx is cancelled. A match-rule
// registration failure is fatal to the task's startup.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.resolveUnitPath(); err != nil {
		return err
	}

	if err := m.conn.AddMatchSignal(
		dbus.WithMatchInterface(idbus.DBUS_PROP_IFACE),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(m.path),
	); err != nil {
		return fmt.Errorf("failed to register PropertiesChanged match rule for %s: %w", m.unit, err)
	}

	signals := make(chan *dbus.Signal, 10)
	m.conn.Signal(signals)
	defer m.conn.RemoveSignal(signals)

	logger.Info("[systemd1] monitoring unit %s", m.unit)

	m.publishInitial(ctx)

	return m.runLoop(ctx, signals)
}

// publishInitial publishes the current state unconditionally so MQTT
// subscribers get a snapshot without waiting for a transition.
func (m *Monitor) publishInitial(ctx context.Context) {
	state, err := m.fetch()
	if err != nil {
		logger.Warn("[systemd1] failed to read initial %s of %s: %v", PROP_ACTIVE_STATE, m.unit, err)
		return
	}
	m.states.Set(m.unit, state)
	if err := m.publish(ctx, state); err != nil {
		logger.Error("[systemd1] failed to publish initial state of %s: %v", m.unit, err)
	}
}

func (m *Monitor) runLoop(ctx context.Context, signals <-chan *dbus.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig, ok := <-signals:
			if !ok {
				return &idbus.SignalError{Reason: "signal channel closed"}
			}
			if !m.matches(sig) {
				continue
			}
			m.refresh(ctx)
		}
	}
}

// matches filters the shared signal stream down to this unit's
// PropertiesChanged notifications.
func (m *Monitor) matches(sig *dbus.Signal) bool {
	return sig != nil && sig.Name == idbus.PROP_CHANGED_SIGNAL && sig.Path == m.path
}

// refresh re-reads ActiveState and publishes it when it differs from the
// last published value. Consecutive duplicates are suppressed; returning to
// an earlier value publishes again.
func (m *Monitor) refresh(ctx context.Context) {
	state, err := m.fetch()
	if err != nil {
		logger.Warn("[systemd1] failed to read %s of %s: %v", PROP_ACTIVE_STATE, m.unit, err)
		return
	}
	if !m.states.Changed(m.unit, state) {
		logger.Debug("[systemd1] %s still %s", m.unit, state)
		return
	}
	if err := m.publish(ctx, state); err != nil {
		logger.Error("[systemd1] failed to publish state of %s: %v", m.unit, err)
	}
}
