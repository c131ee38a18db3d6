package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

const (
	AppName    = "systemctl-mqtt"
	AppVersion = "0.1.0"
	AppURL     = "https://github.com/b0bbywan/go-systemctl-mqtt"

	mqttDefaultPort    = 1883
	mqttDefaultTLSPort = 8883

	defaultPoweroffDelay = 4 * time.Second
)

type Config struct {
	MQTT          *MQTTConfig
	HomeAssistant *HomeAssistantConfig
	PoweroffDelay time.Duration
	MonitorUnits  []string
	ControlUnits  []string
	LogLevel      logger.Level
}

type MQTTConfig struct {
	Host        string
	Port        int
	DisableTLS  bool
	Username    string
	Password    string
	TopicPrefix string
}

type HomeAssistantConfig struct {
	DiscoveryPrefix   string
	DiscoveryObjectID string
}

// Home Assistant restricts node ids and object ids to this charset.
// https://www.home-assistant.io/integrations/mqtt/#discovery-topic
var discoveryObjectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateDiscoveryObjectID reports whether id may be used in a discovery topic.
func ValidateDiscoveryObjectID(id string) bool {
	return discoveryObjectIDPattern.MatchString(id)
}

// DefaultDiscoveryObjectID derives a discovery object id from the hostname,
// replacing characters home assistant rejects.
func DefaultDiscoveryObjectID() string {
	return sanitizeDiscoveryObjectID(hostname())
}

func sanitizeDiscoveryObjectID(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return AppName
	}
	return b.String()
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		logger.Warn("[config] failed to determine hostname: %v", err)
		return "localhost"
	}
	return name
}

// trimPasswordNewline strips a single trailing newline, mirroring the
// behaviour of reading a password file created with `echo`.
func trimPasswordNewline(password string) string {
	if strings.HasSuffix(password, "\r\n") {
		return password[:len(password)-2]
	}
	return strings.TrimSuffix(password, "\n")
}

func readPasswordFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read mqtt password file: %w", err)
	}
	return trimPasswordNewline(string(raw)), nil
}

func New() (*Config, error) {
	viper.SetDefault("mqtt.port", 0)
	viper.SetDefault("mqtt.disable-tls", false)
	viper.SetDefault("mqtt.topic-prefix", "systemctl/"+hostname())
	viper.SetDefault("homeassistant.discovery-prefix", "homeassistant")
	viper.SetDefault("homeassistant.discovery-object-id", DefaultDiscoveryObjectID())
	viper.SetDefault("poweroff-delay", defaultPoweroffDelay)
	viper.SetDefault("units.monitor", []string{})
	viper.SetDefault("units.control", []string{})
	viper.SetDefault("log-level", "INFO")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join("/etc", AppName))
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", AppName))
	}
	viper.SetEnvPrefix("SYSTEMCTL_MQTT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with defaults if not found
		if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
			logger.Warn("[config] failed to read config: %v", err)
		}
	}

	host := viper.GetString("mqtt.host")
	if host == "" {
		return nil, fmt.Errorf("missing mqtt.host")
	}

	disableTLS := viper.GetBool("mqtt.disable-tls")
	port := viper.GetInt("mqtt.port")
	if port == 0 {
		if disableTLS {
			port = mqttDefaultPort
		} else {
			port = mqttDefaultTLSPort
		}
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid mqtt port: %d", port)
	}

	username := viper.GetString("mqtt.username")
	password := viper.GetString("mqtt.password")
	if passwordPath := viper.GetString("mqtt.password-file"); passwordPath != "" {
		if password != "" {
			return nil, fmt.Errorf("mqtt.password and mqtt.password-file are mutually exclusive")
		}
		filePassword, err := readPasswordFile(passwordPath)
		if err != nil {
			return nil, err
		}
		password = filePassword
	}
	if password != "" && username == "" {
		return nil, fmt.Errorf("missing mqtt.username")
	}

	objectID := viper.GetString("homeassistant.discovery-object-id")
	if !ValidateDiscoveryObjectID(objectID) {
		return nil, fmt.Errorf(
			"invalid home assistant discovery object id %q (length >= 1, allowed characters: a-z A-Z 0-9 _ -)",
			objectID,
		)
	}

	poweroffDelay := viper.GetDuration("poweroff-delay")
	if poweroffDelay <= 0 {
		poweroffDelay = defaultPoweroffDelay
	}

	cfg := Config{
		MQTT: &MQTTConfig{
			Host:        host,
			Port:        port,
			DisableTLS:  disableTLS,
			Username:    username,
			Password:    password,
			TopicPrefix: strings.TrimSuffix(viper.GetString("mqtt.topic-prefix"), "/"),
		},
		HomeAssistant: &HomeAssistantConfig{
			DiscoveryPrefix:   viper.GetString("homeassistant.discovery-prefix"),
			DiscoveryObjectID: objectID,
		},
		PoweroffDelay: poweroffDelay,
		MonitorUnits:  viper.GetStringSlice("units.monitor"),
		ControlUnits:  viper.GetStringSlice("units.control"),
		LogLevel:      logger.ParseLevel(viper.GetString("log-level")),
	}

	return &cfg, nil
}
