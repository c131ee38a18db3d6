package login1

import (
	"time"

	"github.com/godbus/dbus/v5"

	idbus "github.com/b0bbywan/go-systemctl-mqtt/backend/internal/dbus"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

// New creates a login manager client on top of an existing system bus
// connection. The connection must support unix fd passing (godbus
// negotiates this on the system bus), otherwise Inhibit replies are refused
// by dbus-broker.
func New(conn *dbus.Conn) *Client {
	return &Client{
		conn: conn,
		obj:  idbus.GetObject(conn, LOGIN1_PREFIX, LOGIN1_PATH),
	}
}

func (c *Client) call(method string, args ...interface{}) (*dbus.Call, error) {
	call := c.obj.Call(method, 0, args...)
	if err := idbus.CallWithTimeout(call); err != nil {
		return nil, err
	}
	return call, nil
}

// Inhibit takes an inhibitor lock and returns the file descriptor logind
// hands back. The caller owns the descriptor; closing it releases the lock.
func (c *Client) Inhibit(what, who, why, mode string) (dbus.UnixFD, error) {
	call, err := c.call(LOGIN1_METHOD_INHIBIT, what, who, why, mode)
	if err != nil {
		return -1, err
	}
	var fd dbus.UnixFD
	if err := call.Store(&fd); err != nil {
		return -1, err
	}
	return fd, nil
}

// InhibitShutdownDelay takes the delay-mode shutdown inhibitor lock this
// service holds between shutdown notifications.
func (c *Client) InhibitShutdownDelay() (dbus.UnixFD, error) {
	return c.Inhibit(inhibitWhatShutdown, inhibitWho, inhibitWhy, inhibitModeDelay)
}

// ListInhibitors returns the currently held inhibitor locks.
func (c *Client) ListInhibitors() ([]Inhibitor, error) {
	call, err := c.call(LOGIN1_METHOD_LIST_INHIBITORS)
	if err != nil {
		return nil, err
	}
	var inhibitors []Inhibitor
	if err := call.Store(&inhibitors); err != nil {
		return nil, err
	}
	return inhibitors, nil
}

// CanPowerOff asks logind whether the caller may power off the machine.
// Returns one of "yes", "no", "challenge", "na".
func (c *Client) CanPowerOff() (string, error) {
	call, err := c.call(LOGIN1_CAPABILITY_POWEROFF)
	if err != nil {
		return "", err
	}
	var result string
	if err := call.Store(&result); err != nil {
		return "", err
	}
	return result, nil
}

// ScheduleShutdown schedules action ("poweroff" or "reboot") for now+delay
// and classifies failures: polkit's interactive-auth error is logged with a
// ready-to-install rule, anything else with the raw error. The underlying
// error is returned for callers that care; the MQTT action layer drops it.
func (c *Client) ScheduleShutdown(action string, delay time.Duration) error {
	if action != ActionPoweroff && action != ActionReboot {
		return &InvalidActionError{Action: action}
	}
	when := time.Now().Add(delay)
	logger.Info("[login1] scheduling %s for %s", action, when.Format("2006-01-02 15:04:05"))
	// ScheduleShutdown(in s arg_0, in t arg_1): microseconds since epoch
	_, err := c.call(LOGIN1_METHOD_SCHEDULE_SHUTDOWN, action, uint64(when.UnixMicro()))
	if err != nil {
		if idbus.IsInteractiveAuthRequired(err) {
			logger.Error("%s", interactiveAuthRemediation("schedule "+action, polkitActionID(action)))
		} else {
			logger.Error("[login1] failed to schedule %s: %v", action, err)
		}
	}
	c.logShutdownInhibitors()
	return err
}

// Suspend puts the system to sleep without interactive authorization.
func (c *Client) Suspend() error {
	logger.Info("[login1] suspending system")
	_, err := c.call(LOGIN1_METHOD_SUSPEND, false)
	if err != nil {
		logger.Error("[login1] failed to suspend: %v", err)
	}
	return err
}

// LockAllSessions instructs every session to activate its screen lock,
// like `loginctl lock-sessions`.
func (c *Client) LockAllSessions() error {
	logger.Info("[login1] instruct all sessions to activate screen locks")
	_, err := c.call(LOGIN1_METHOD_LOCK_SESSIONS)
	if err != nil {
		if idbus.IsInteractiveAuthRequired(err) {
			logger.Error("%s", interactiveAuthRemediation("lock all sessions", polkitActionPrefix+"lock-sessions"))
		} else {
			logger.Error("[login1] failed to lock all sessions: %v", err)
		}
	}
	return err
}

// PreparingForShutdown reads logind's PreparingForShutdown property.
// The boolean result is only meaningful when the error is nil; callers must
// not publish anything on failure.
func (c *Client) PreparingForShutdown() (bool, error) {
	return idbus.GetBoolProperty(c.obj, LOGIN1_INTERFACE, LOGIN1_PROP_PREPARING_FOR_SHUTDOWN)
}

// logShutdownInhibitors lists active shutdown inhibitor locks at debug
// level. Best effort: a listing failure is a warning, never an error.
func (c *Client) logShutdownInhibitors() {
	if !logger.DebugEnabled() {
		return
	}
	inhibitors, err := c.ListInhibitors()
	if err != nil {
		logger.Warn("[login1] failed to fetch shutdown inhibitors: %v", err)
		return
	}
	found := false
	for _, inhibitor := range inhibitors {
		if !containsShutdown(inhibitor.What) {
			continue
		}
		found = true
		logger.Debug(
			"[login1] detected shutdown inhibitor %s (pid=%d, uid=%d, mode=%s): %s",
			inhibitor.Who, inhibitor.PID, inhibitor.UID, inhibitor.Mode, inhibitor.Why,
		)
	}
	if !found {
		logger.Debug("[login1] no shutdown inhibitor locks found")
	}
}
