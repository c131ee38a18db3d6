package dbus

// Standard D-Bus interface and member names
const (
	DBUS_INTERFACE  = "org.freedesktop.DBus"
	DBUS_PROP_IFACE = DBUS_INTERFACE + ".Properties"

	PROP_GET            = DBUS_PROP_IFACE + ".Get"
	PROP_CHANGED_SIGNAL = DBUS_PROP_IFACE + ".PropertiesChanged"

	// Error name polkit returns when an unattended caller would need
	// interactive authentication for the requested operation.
	ERR_INTERACTIVE_AUTH = DBUS_INTERFACE + ".Error.InteractiveAuthorizationRequired"
)
