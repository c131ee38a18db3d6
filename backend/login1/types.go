package login1

import (
	"github.com/godbus/dbus/v5"
)

// Client is a session-scoped facade over logind's Manager object.
// It shares the process-wide system bus connection with the signal tasks.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Inhibitor mirrors the 6-tuples returned by ListInhibitors.
type Inhibitor struct {
	What string
	Who  string
	Why  string
	Mode string
	UID  uint32
	PID  uint32
}

// InvalidActionError indicates an unsupported shutdown action string.
type InvalidActionError struct {
	Action string
}

func (e *InvalidActionError) Error() string {
	return "unsupported shutdown action: " + e.Action
}
