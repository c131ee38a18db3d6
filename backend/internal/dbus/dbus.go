package dbus

import (
	"errors"
	"time"

	"github.com/godbus/dbus/v5"
)

// DefaultTimeout is the timeout used for all D-Bus calls.
var DefaultTimeout = 5 * time.Second

// CallWithTimeout executes a D-Bus call with the default timeout.
func CallWithTimeout(call *dbus.Call) error {
	done := make(chan error, 1)
	go func() { done <- call.Err }()
	select {
	case err := <-done:
		return err
	case <-time.After(DefaultTimeout):
		return &TimeoutError{}
	}
}

// CallMethod calls a method on a D-Bus object with the default timeout.
func CallMethod(obj dbus.BusObject, method string, args ...interface{}) error {
	return CallWithTimeout(obj.Call(method, 0, args...))
}

// GetObject returns a D-Bus object for the given service and object path.
func GetObject(conn *dbus.Conn, service, path string) dbus.BusObject {
	return conn.Object(service, dbus.ObjectPath(path))
}

// GetProperty retrieves a single property from a D-Bus object.
// The request carries the "ss" signature (interface name, property name).
func GetProperty(obj dbus.BusObject, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	call := obj.Call(PROP_GET, 0, iface, prop)
	if err := CallWithTimeout(call); err != nil {
		return dbus.Variant{}, err
	}
	if err := call.Store(&v); err != nil {
		return dbus.Variant{}, err
	}
	return v, nil
}

// GetBoolProperty retrieves a property and extracts its boolean value.
func GetBoolProperty(obj dbus.BusObject, iface, prop string) (bool, error) {
	v, err := GetProperty(obj, iface, prop)
	if err != nil {
		return false, err
	}
	value, ok := ExtractBool(v)
	if !ok {
		return false, &SignalError{Reason: "property " + prop + " is not a bool"}
	}
	return value, nil
}

// GetStringProperty retrieves a property and extracts its string value.
func GetStringProperty(obj dbus.BusObject, iface, prop string) (string, error) {
	v, err := GetProperty(obj, iface, prop)
	if err != nil {
		return "", err
	}
	value, ok := ExtractString(v)
	if !ok {
		return "", &SignalError{Reason: "property " + prop + " is not a string"}
	}
	return value, nil
}

// FilterPropertiesChanged parses a PropertiesChanged D-Bus signal body.
// Returns the interface name and changed properties map, or an error if malformed.
func FilterPropertiesChanged(sig *dbus.Signal) (string, map[string]dbus.Variant, error) {
	if sig == nil {
		return "", nil, &SignalError{Reason: "channel closed"}
	}
	if len(sig.Body) < 2 {
		return "", nil, &SignalError{Reason: "body too short"}
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return "", nil, &SignalError{Reason: "failed to parse interface name"}
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", nil, &SignalError{Reason: "body[1] is not map[string]Variant"}
	}
	return iface, changed, nil
}

// --- Variant extraction helpers ---

// ExtractString extracts a string from a dbus.Variant.
func ExtractString(v dbus.Variant) (string, bool) {
	val, ok := v.Value().(string)
	return val, ok
}

// ExtractBool extracts a bool from a dbus.Variant.
func ExtractBool(v dbus.Variant) (bool, bool) {
	val, ok := v.Value().(bool)
	return val, ok
}

// --- Remote error classification ---

// ErrorName returns the D-Bus error name carried by err, or "".
func ErrorName(err error) string {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name
	}
	return ""
}

// IsInteractiveAuthRequired reports whether err is polkit's
// "interactive authorization required" error response.
func IsInteractiveAuthRequired(err error) bool {
	return ErrorName(err) == ERR_INTERACTIVE_AUTH
}
