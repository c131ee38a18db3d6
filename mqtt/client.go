package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/b0bbywan/go-systemctl-mqtt/backend"
	"github.com/b0bbywan/go-systemctl-mqtt/config"
	"github.com/b0bbywan/go-systemctl-mqtt/logger"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	keepAliveSeconds = 30
	connectTimeout   = 30 * time.Second

	// received commands queue here until the dispatcher picks them up
	messageBuffer = 16
)

// Client owns the broker session: the autopaho connection manager, the
// command subscriptions and the will/status lifecycle. It implements
// backend.Publisher.
type Client struct {
	cfg    *config.MQTTConfig
	state  *backend.State
	topics []string

	messages chan *paho.Publish

	mu sync.RWMutex
	cm *autopaho.ConnectionManager
}

// New prepares a client without connecting. The subscription list is
// derived from the state's action table plus the Home Assistant birth
// topic.
func New(cfg *config.MQTTConfig, state *backend.State) *Client {
	actions := state.TopicActions()
	topics := make([]string, 0, len(actions)+1)
	for topic := range actions {
		topics = append(topics, topic)
	}
	topics = append(topics, state.BirthTopic())

	return &Client{
		cfg:      cfg,
		state:    state,
		topics:   topics,
		messages: make(chan *paho.Publish, messageBuffer),
	}
}

func (c *Client) brokerURL() (*url.URL, error) {
	scheme := "mqtts"
	if c.cfg.DisableTLS {
		scheme = "mqtt"
	}
	return url.Parse(fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Host, c.cfg.Port))
}

// Connect starts the connection manager. autopaho reconnects on its own;
// a broker that is down at startup is logged, not fatal.
func (c *Client) Connect(ctx context.Context) error {
	brokerURL, err := c.brokerURL()
	if err != nil {
		return fmt.Errorf("invalid broker address: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       keepAliveSeconds,
		ConnectUsername: c.cfg.Username,
		ConnectPassword: []byte(c.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   c.state.StatusTopic(),
			Payload: []byte(payloadOffline),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: func(err error) {
			logger.Warn("[mqtt] connection error: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: config.AppName + "-" + config.DefaultDiscoveryObjectID(),
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
		},
	}
	if !c.cfg.DisableTLS {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("failed to start MQTT connection manager: %w", err)
	}
	c.setConnection(cm)

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		logger.Warn("[mqtt] broker %s not reachable yet, retrying in background: %v", brokerURL.Host, err)
	}
	return nil
}

func (c *Client) setConnection(cm *autopaho.ConnectionManager) {
	c.mu.Lock()
	c.cm = cm
	c.mu.Unlock()
}

func (c *Client) connection() *autopaho.ConnectionManager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cm
}

// onConnectionUp runs on every (re-)connect: restore subscriptions,
// announce availability, re-publish discovery and the retained
// preparing-for-shutdown snapshot.
func (c *Client) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.setConnection(cm)
	logger.Info("[mqtt] connected to %s", c.cfg.Host)

	ctx := context.Background()
	c.subscribe(ctx, cm)
	if err := c.Publish(ctx, c.state.StatusTopic(), []byte(payloadOnline), true); err != nil {
		logger.Warn("[mqtt] failed to publish availability: %v", err)
	}
	c.PublishDiscovery(ctx)
	c.state.PublishPreparingForShutdown(ctx)
}

func (c *Client) onPublishReceived(received paho.PublishReceived) (bool, error) {
	select {
	case c.messages <- received.Packet:
	default:
		logger.Warn("[mqtt] dropping message on %s, dispatcher backlog full", received.Packet.Topic)
	}
	return true, nil
}

func (c *Client) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	subscriptions := make([]paho.SubscribeOptions, 0, len(c.topics))
	for _, topic := range c.topics {
		subscriptions = append(subscriptions, paho.SubscribeOptions{Topic: topic, QoS: 1})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subscriptions}); err != nil {
		logger.Error("[mqtt] failed to subscribe: %v", err)
		return
	}
	logger.Info("[mqtt] subscribed to %d topics", len(subscriptions))
}

// Messages exposes the inbound command stream to the dispatcher.
func (c *Client) Messages() <-chan *paho.Publish {
	return c.messages
}

// Publish sends one message at QoS 1 and blocks until the broker
// acknowledged it or ctx expires.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	cm := c.connection()
	if cm == nil {
		return &NotConnectedError{}
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  retain,
	})
	return err
}

// PublishDiscovery publishes the retained Home Assistant discovery
// document.
func (c *Client) PublishDiscovery(ctx context.Context) {
	payload, err := c.state.DiscoveryConfig()
	if err != nil {
		logger.Error("[mqtt] failed to render discovery config: %v", err)
		return
	}
	topic := c.state.DiscoveryConfigTopic()
	if err := c.Publish(ctx, topic, payload, true); err != nil {
		logger.Warn("[mqtt] failed to publish discovery config: %v", err)
		return
	}
	logger.Debug("[mqtt] discovery config published on %s", topic)
}

// Disconnect announces offline and tears the session down. The will only
// fires on unclean disconnects, so the offline status is published
// explicitly here.
func (c *Client) Disconnect(ctx context.Context) error {
	cm := c.connection()
	if cm == nil {
		return nil
	}
	if err := c.Publish(ctx, c.state.StatusTopic(), []byte(payloadOffline), true); err != nil {
		logger.Warn("[mqtt] failed to publish offline status: %v", err)
	}
	return cm.Disconnect(ctx)
}
