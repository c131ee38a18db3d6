package backend

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/go-systemctl-mqtt/config"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

// transitionPublishTimeout bounds the blocking preparing-for-shutdown
// publish. logind only waits a few seconds (InhibitDelayMaxSec) once it
// announced the shutdown, so blocking longer would not help anyone.
const transitionPublishTimeout = 5 * time.Second

// Publisher is the MQTT surface the state needs. The mqtt client
// implements it; tests substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// loginManager is the slice of the login1 client the state consumes.
type loginManager interface {
	InhibitShutdownDelay() (dbus.UnixFD, error)
	ScheduleShutdown(action string, delay time.Duration) error
	Suspend() error
	LockAllSessions() error
	PreparingForShutdown() (bool, error)
}

// unitManager is the slice of the systemd1 client the unit actions consume.
type unitManager interface {
	StartUnit(ctx context.Context, name string) error
	StopUnit(ctx context.Context, name string) error
	RestartUnit(ctx context.Context, name string) error
	IsolateUnit(ctx context.Context, name string) error
	IsIsolateAllowed(ctx context.Context, name string) bool
}

// closeInhibitFD releases an inhibitor lock by closing its descriptor.
// Swapped out by tests.
var closeInhibitFD = func(fd dbus.UnixFD) error { return syscall.Close(int(fd)) }

// State is the shared runtime state of one connection session. All fields
// are immutable after construction except the inhibitor lock, which both
// the D-Bus shutdown-signal handler and the connect path touch and which
// is therefore guarded by a mutex. The mutex is never held across a
// publish.
type State struct {
	topicPrefix       string
	discoveryPrefix   string
	discoveryObjectID string
	hostname          string
	poweroffDelay     time.Duration
	monitorUnits      []string
	controlUnits      []string

	login loginManager
	units unitManager

	publisher Publisher

	mu               sync.Mutex
	shutdownLock     dbus.UnixFD
	shutdownLockHeld bool
}

// NewState builds the session state. units may be nil when no controlled
// units are configured. SetPublisher must be called before any publish.
func NewState(cfg *config.Config, login loginManager, units unitManager) *State {
	hostname, err := os.Hostname()
	if err != nil {
		logger.Warn("[state] failed to determine hostname: %v", err)
		hostname = "localhost"
	}
	return &State{
		topicPrefix:       cfg.MQTT.TopicPrefix,
		discoveryPrefix:   cfg.HomeAssistant.DiscoveryPrefix,
		discoveryObjectID: cfg.HomeAssistant.DiscoveryObjectID,
		hostname:          hostname,
		poweroffDelay:     cfg.PoweroffDelay,
		monitorUnits:      cfg.MonitorUnits,
		controlUnits:      cfg.ControlUnits,
		login:             login,
		units:             units,
	}
}

// SetPublisher wires the MQTT client in. Construction order demands this
// two-step: the client needs the state's topics, the state needs the
// client for publishing.
func (s *State) SetPublisher(publisher Publisher) {
	s.publisher = publisher
}

func (s *State) MonitorUnits() []string { return s.monitorUnits }
func (s *State) ControlUnits() []string { return s.controlUnits }

// AcquireShutdownLock takes the delay-mode inhibitor lock. Acquiring while
// the lock is already held is a logic error, not a runtime condition, and
// panics.
func (s *State) AcquireShutdownLock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdownLockHeld {
		panic("shutdown inhibitor lock acquired twice")
	}
	fd, err := s.login.InhibitShutdownDelay()
	if err != nil {
		return fmt.Errorf("failed to acquire shutdown inhibitor lock: %w", err)
	}
	s.shutdownLock = fd
	s.shutdownLockHeld = true
	logger.Debug("[state] acquired shutdown inhibitor lock")
	return nil
}

// ReleaseShutdownLock closes the inhibitor descriptor, permitting the
// pending shutdown to proceed. Releasing an unheld lock is a no-op.
func (s *State) ReleaseShutdownLock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shutdownLockHeld {
		return
	}
	if err := closeInhibitFD(s.shutdownLock); err != nil {
		logger.Warn("[state] failed to close shutdown inhibitor fd: %v", err)
	}
	s.shutdownLock = -1
	s.shutdownLockHeld = false
	logger.Debug("[state] released shutdown inhibitor lock")
}

func (s *State) ShutdownLockHeld() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownLockHeld
}

// HandlePreparingForShutdown couples a PrepareForShutdown signal to MQTT.
// The publish happens before the lock toggles: subscribers must observe
// the notification before the OS is allowed to proceed with shutdown,
// so the publish blocks (bounded) until the broker acknowledged it.
func (s *State) HandlePreparingForShutdown(ctx context.Context, active bool) error {
	payload := encodeBool(active)
	topic := s.PreparingForShutdownTopic()
	logger.Info("[state] publishing %q on %s", payload, topic)

	pubCtx, cancel := context.WithTimeout(ctx, transitionPublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, topic, []byte(payload), true); err != nil {
		// the lock must still toggle: holding it past logind's delay
		// window would not stop the shutdown anyway
		logger.Error("[state] failed to publish preparing-for-shutdown: %v", err)
	}

	if active {
		s.ReleaseShutdownLock()
		return nil
	}
	if s.ShutdownLockHeld() {
		// a cancelled shutdown we never saw the start of
		return nil
	}
	return s.AcquireShutdownLock()
}

// PublishPreparingForShutdown publishes the current property value as a
// startup snapshot. Best effort: a read failure means no publish, a
// publish failure is only logged.
func (s *State) PublishPreparingForShutdown(ctx context.Context) {
	active, err := s.login.PreparingForShutdown()
	if err != nil {
		logger.Error("[state] failed to read logind's PreparingForShutdown property: %v", err)
		return
	}
	payload := encodeBool(active)
	topic := s.PreparingForShutdownTopic()
	logger.Info("[state] publishing %q on %s", payload, topic)
	if err := s.publisher.Publish(ctx, topic, []byte(payload), true); err != nil {
		logger.Warn("[state] failed to publish preparing-for-shutdown snapshot: %v", err)
	}
}

// PublishUnitActiveState publishes a monitored unit's ActiveState (retained).
func (s *State) PublishUnitActiveState(ctx context.Context, unit, activeState string) error {
	topic := s.UnitActiveStateTopic(unit)
	logger.Info("[state] publishing %q on %s", activeState, topic)
	return s.publisher.Publish(ctx, topic, []byte(activeState), true)
}
