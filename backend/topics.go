package backend

import "fmt"

// Topic suffixes below the configured prefix. Command topics carry no
// payload semantics; the topic itself is the command.
const (
	topicSuffixPreparingForShutdown = "preparing-for-shutdown"
	topicSuffixStatus               = "status"
	topicSuffixPoweroff             = "poweroff"
	topicSuffixLockAllSessions      = "lock-all-sessions"
	topicSuffixSuspend              = "suspend"

	// system-manager units live under unit/system, leaving room for a
	// future unit/user subtree
	unitTopicComponent = "unit/system"
)

func (s *State) topic(suffix string) string {
	return s.topicPrefix + "/" + suffix
}

// PreparingForShutdownTopic carries the retained shutdown notification.
func (s *State) PreparingForShutdownTopic() string {
	return s.topic(topicSuffixPreparingForShutdown)
}

// StatusTopic carries the online/offline availability payload, including
// the broker-side will.
func (s *State) StatusTopic() string {
	return s.topic(topicSuffixStatus)
}

// UnitActiveStateTopic carries a monitored unit's retained ActiveState.
func (s *State) UnitActiveStateTopic(unit string) string {
	return fmt.Sprintf("%s/%s/%s/active-state", s.topicPrefix, unitTopicComponent, unit)
}

// UnitActionTopic is the command topic for one verb on a controlled unit.
func (s *State) UnitActionTopic(unit, verb string) string {
	return fmt.Sprintf("%s/%s/%s/%s", s.topicPrefix, unitTopicComponent, unit, verb)
}

// DiscoveryConfigTopic is the device-based Home Assistant discovery topic.
func (s *State) DiscoveryConfigTopic() string {
	return fmt.Sprintf("%s/device/%s/config", s.discoveryPrefix, s.discoveryObjectID)
}

// BirthTopic is where Home Assistant announces itself after a restart;
// seeing it triggers a discovery re-publish.
func (s *State) BirthTopic() string {
	return s.discoveryPrefix + "/" + topicSuffixStatus
}

func encodeBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
