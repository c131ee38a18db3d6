package systemd1

const (
	SYSTEMD1_PREFIX    = "org.freedesktop.systemd1"
	SYSTEMD1_PATH      = "/org/freedesktop/systemd1"
	SYSTEMD1_INTERFACE = SYSTEMD1_PREFIX + ".Manager"

	SYSTEMD1_METHOD_GET_UNIT = SYSTEMD1_INTERFACE + ".GetUnit"

	UNIT_INTERFACE = SYSTEMD1_PREFIX + ".Unit"

	PROP_ACTIVE_STATE  = "ActiveState"
	PROP_ALLOW_ISOLATE = "AllowIsolate"

	// Job modes, https://www.freedesktop.org/software/systemd/man/latest/org.freedesktop.systemd1.html
	modeReplace = "replace"
	modeIsolate = "isolate"
)
