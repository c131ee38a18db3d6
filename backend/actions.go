package backend

import (
	"context"

	"github.com/b0bbywan/go-systemctl-mqtt/backend/login1"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

// Action is one MQTT-triggerable operation. Trigger runs synchronously on
// the dispatcher goroutine; D-Bus failures are logged here, never
// propagated, so one failed command cannot tear down the MQTT session.
type Action interface {
	Name() string
	Trigger(ctx context.Context, state *State)
}

// ConditionalAction gates triggering on a runtime permission check.
type ConditionalAction interface {
	Action
	Allowed(ctx context.Context, state *State) bool
}

// Unit action verbs, doubling as topic path components.
const (
	VerbStart   = "start"
	VerbStop    = "stop"
	VerbRestart = "restart"
	VerbIsolate = "isolate"
)

var unitVerbs = []string{VerbStart, VerbStop, VerbRestart, VerbIsolate}

type schedulePoweroffAction struct{}

func (schedulePoweroffAction) Name() string { return "schedule poweroff" }

func (schedulePoweroffAction) Trigger(_ context.Context, s *State) {
	// the login1 client already classifies and logs the failure modes
	_ = s.login.ScheduleShutdown(login1.ActionPoweroff, s.poweroffDelay)
}

type lockAllSessionsAction struct{}

func (lockAllSessionsAction) Name() string { return "lock all sessions" }

func (lockAllSessionsAction) Trigger(_ context.Context, s *State) {
	_ = s.login.LockAllSessions()
}

type suspendAction struct{}

func (suspendAction) Name() string { return "suspend" }

func (suspendAction) Trigger(_ context.Context, s *State) {
	_ = s.login.Suspend()
}

type unitAction struct {
	verb string
	unit string
}

func (a unitAction) Name() string { return a.verb + " " + a.unit }

func (a unitAction) Trigger(ctx context.Context, s *State) {
	if s.units == nil {
		logger.Warn("[actions] no service manager connection, ignoring %s", a.Name())
		return
	}
	var err error
	switch a.verb {
	case VerbStart:
		err = s.units.StartUnit(ctx, a.unit)
	case VerbStop:
		err = s.units.StopUnit(ctx, a.unit)
	case VerbRestart:
		err = s.units.RestartUnit(ctx, a.unit)
	case VerbIsolate:
		err = s.units.IsolateUnit(ctx, a.unit)
	}
	if err != nil {
		logger.Error("[actions] failed to %s unit %s: %v", a.verb, a.unit, err)
	}
}

// isolateAction adds the AllowIsolate gate; isolating a unit that does not
// permit it would fail in systemd anyway, the gate just refuses earlier
// and without enqueuing a job.
type isolateAction struct {
	unitAction
}

func (a isolateAction) Allowed(ctx context.Context, s *State) bool {
	return s.units != nil && s.units.IsIsolateAllowed(ctx, a.unit)
}

// TopicActions maps every command topic to its action. The map is the
// subscription list and the dispatch table in one.
func (s *State) TopicActions() map[string]Action {
	actions := map[string]Action{
		s.topic(topicSuffixPoweroff):        schedulePoweroffAction{},
		s.topic(topicSuffixLockAllSessions): lockAllSessionsAction{},
		s.topic(topicSuffixSuspend):         suspendAction{},
	}
	for _, unit := range s.controlUnits {
		for _, verb := range unitVerbs {
			action := unitAction{verb: verb, unit: unit}
			topic := s.UnitActionTopic(unit, verb)
			if verb == VerbIsolate {
				actions[topic] = isolateAction{action}
			} else {
				actions[topic] = action
			}
		}
	}
	return actions
}
