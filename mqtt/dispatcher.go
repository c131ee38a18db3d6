package mqtt

import (
	"context"

	"github.com/eclipse/paho.golang/paho"

	"github.com/b0bbywan/go-systemctl-mqtt/backend"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

// Dispatcher consumes the inbound message stream and triggers actions,
// one at a time. Sequential dispatch keeps D-Bus calls from racing each
// other on the shared connection.
type Dispatcher struct {
	state    *backend.State
	actions  map[string]backend.Action
	messages <-chan *paho.Publish

	// republishDiscovery reacts to Home Assistant birth messages
	republishDiscovery func(ctx context.Context)
}

func NewDispatcher(state *backend.State, messages <-chan *paho.Publish, republishDiscovery func(ctx context.Context)) *Dispatcher {
	return &Dispatcher{
		state:              state,
		actions:            state.TopicActions(),
		messages:           messages,
		republishDiscovery: republishDiscovery,
	}
}

// Run processes messages until ctx is cancelled or the stream closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-d.messages:
			if !ok {
				return &NotConnectedError{}
			}
			d.dispatch(ctx, msg)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *paho.Publish) {
	// retained messages replay on every subscribe; acting on them would
	// re-run stale commands after each reconnect
	if msg.Retain {
		logger.Debug("[mqtt] ignoring retained message on %s", msg.Topic)
		return
	}

	if msg.Topic == d.state.BirthTopic() {
		if string(msg.Payload) == payloadOnline {
			logger.Info("[mqtt] home assistant is back, re-publishing discovery config")
			d.republishDiscovery(ctx)
		}
		return
	}

	action, ok := d.actions[msg.Topic]
	if !ok {
		logger.Warn("[mqtt] no action for topic %s", msg.Topic)
		return
	}
	if conditional, ok := action.(backend.ConditionalAction); ok && !conditional.Allowed(ctx, d.state) {
		logger.Warn("[mqtt] action %q not permitted, ignoring", action.Name())
		return
	}
	logger.Info("[mqtt] triggering %q", action.Name())
	action.Trigger(ctx, d.state)
}
