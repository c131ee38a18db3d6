package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/b0bbywan/go-systemctl-mqtt/config"
)

// Home Assistant device-based discovery payload, one document describing
// every entity this daemon exposes.
// https://www.home-assistant.io/integrations/mqtt/#device-discovery-payload

type discoveryDevice struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

type discoveryOrigin struct {
	Name       string `json:"name"`
	SWVersion  string `json:"sw_version"`
	SupportURL string `json:"support_url"`
}

type discoveryComponent struct {
	Platform     string `json:"platform"`
	Name         string `json:"name"`
	UniqueID     string `json:"unique_id"`
	ObjectID     string `json:"object_id,omitempty"`
	StateTopic   string `json:"state_topic,omitempty"`
	CommandTopic string `json:"command_topic,omitempty"`
	PayloadOn    string `json:"payload_on,omitempty"`
	PayloadOff   string `json:"payload_off,omitempty"`
}

type discoveryPayload struct {
	Device            discoveryDevice               `json:"device"`
	Origin            discoveryOrigin               `json:"origin"`
	AvailabilityTopic string                        `json:"availability_topic"`
	Components        map[string]discoveryComponent `json:"components"`
}

// entityID flattens a topic-ish name into the charset Home Assistant
// accepts for object ids.
func entityID(parts ...string) string {
	joined := strings.Join(parts, "_")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, joined)
}

func (s *State) discoveryComponents() map[string]discoveryComponent {
	components := map[string]discoveryComponent{
		"logind/preparing-for-shutdown": {
			Platform:   "binary_sensor",
			Name:       "preparing for shutdown",
			UniqueID:   config.AppName + "-" + s.hostname + "-logind-preparing-for-shutdown",
			ObjectID:   entityID(s.hostname, "logind", "preparing_for_shutdown"),
			StateTopic: s.PreparingForShutdownTopic(),
			PayloadOn:  "true",
			PayloadOff: "false",
		},
	}

	buttons := map[string]string{
		topicSuffixPoweroff:        "poweroff",
		topicSuffixLockAllSessions: "lock all sessions",
		topicSuffixSuspend:         "suspend",
	}
	for suffix, name := range buttons {
		components["logind/"+suffix] = discoveryComponent{
			Platform:     "button",
			Name:         name,
			UniqueID:     config.AppName + "-" + s.hostname + "-logind-" + suffix,
			ObjectID:     entityID(s.hostname, "logind", suffix),
			CommandTopic: s.topic(suffix),
		}
	}

	for _, unit := range s.monitorUnits {
		components["unit/"+unit+"/active-state"] = discoveryComponent{
			Platform:   "sensor",
			Name:       unit + " active state",
			UniqueID:   config.AppName + "-" + s.hostname + "-unit-" + entityID(unit) + "-active-state",
			ObjectID:   entityID(s.hostname, "unit", unit, "active_state"),
			StateTopic: s.UnitActiveStateTopic(unit),
		}
	}
	for _, unit := range s.controlUnits {
		for _, verb := range unitVerbs {
			components[fmt.Sprintf("unit/%s/%s", unit, verb)] = discoveryComponent{
				Platform:     "button",
				Name:         verb + " " + unit,
				UniqueID:     fmt.Sprintf("%s-%s-unit-%s-%s", config.AppName, s.hostname, entityID(unit), verb),
				ObjectID:     entityID(s.hostname, "unit", unit, verb),
				CommandTopic: s.UnitActionTopic(unit, verb),
			}
		}
	}
	return components
}

// DiscoveryConfig renders the retained discovery document published on
// DiscoveryConfigTopic.
func (s *State) DiscoveryConfig() ([]byte, error) {
	payload := discoveryPayload{
		Device: discoveryDevice{
			Identifiers: []string{config.AppName + "-" + s.hostname},
			Name:        s.hostname,
		},
		Origin: discoveryOrigin{
			Name:       config.AppName,
			SWVersion:  config.AppVersion,
			SupportURL: config.AppURL,
		},
		AvailabilityTopic: s.StatusTopic(),
		Components:        s.discoveryComponents(),
	}
	return json.Marshal(payload)
}
