package login1

const (
	LOGIN1_PREFIX    = "org.freedesktop.login1"
	LOGIN1_PATH      = "/org/freedesktop/login1"
	LOGIN1_INTERFACE = LOGIN1_PREFIX + ".Manager"

	LOGIN1_METHOD_INHIBIT           = LOGIN1_INTERFACE + ".Inhibit"
	LOGIN1_METHOD_LIST_INHIBITORS   = LOGIN1_INTERFACE + ".ListInhibitors"
	LOGIN1_METHOD_LOCK_SESSIONS     = LOGIN1_INTERFACE + ".LockSessions"
	LOGIN1_METHOD_SCHEDULE_SHUTDOWN = LOGIN1_INTERFACE + ".ScheduleShutdown"
	LOGIN1_METHOD_SUSPEND           = LOGIN1_INTERFACE + ".Suspend"

	LOGIN1_CAPABILITY_POWEROFF = LOGIN1_INTERFACE + ".CanPowerOff"

	LOGIN1_SIGNAL_PREPARE_FOR_SHUTDOWN = "PrepareForShutdown"
	LOGIN1_PROP_PREPARING_FOR_SHUTDOWN = "PreparingForShutdown"

	// Shutdown actions accepted by ScheduleShutdown
	ActionPoweroff = "poweroff"
	ActionReboot   = "reboot"

	// Inhibit parameters, https://www.freedesktop.org/wiki/Software/systemd/inhibit/
	inhibitWhatShutdown = "shutdown"
	inhibitWho          = "systemctl-mqtt"
	inhibitWhy          = "Report shutdown via MQTT"
	inhibitModeDelay    = "delay"

	polkitActionPrefix = LOGIN1_PREFIX + "."
	polkitRulesPath    = "/etc/polkit-1/rules.d/50-systemctl-mqtt.rules"
)
