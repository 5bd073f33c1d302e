// Package emitter publishes run statistics and reports to an MQTT broker.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Config holds the broker settings.
type Config struct {
	Broker   string // host:port or a full URL (tcp://, ssl://, ws://)
	ClientID string
	Topic    string // base topic, messages go to <Topic>/stats and <Topic>/report
	QoS      byte
	Format   string // json (default) or msgpack
}

// MQTTEmitter publishes run data to an MQTT broker
type MQTTEmitter struct {
	cfg    Config
	Client mqtt.Client

	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		newClient: mqtt.NewClient,
		published: make(map[string]uint64),
	}
}

// brokerURL adds the tcp scheme when the broker is a bare host:port.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker)
	}

	e.Client = e.newClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	// With connect retry enabled the client keeps dialing in the
	// background, so a failed Connect must stop it.
	token := e.Client.Connect()
	if !token.WaitTimeout(timeout) {
		e.Client.Disconnect(0)
		return fmt.Errorf("emitter: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		e.Client.Disconnect(0)
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// PublishStats publishes a periodic stats message to <topic>/stats.
func (e *MQTTEmitter) PublishStats(v interface{}) error {
	return e.publish("stats", v)
}

// PublishReport publishes the final run report to <topic>/report.
func (e *MQTTEmitter) PublishReport(v interface{}) error {
	return e.publish("report", v)
}

func (e *MQTTEmitter) publish(kind string, v interface{}) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("emitter: mqtt not connected")
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.Topic, kind)

	payload, err := Encode(v, e.cfg.Format)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: failed to encode %s: %w", kind, err)
	}

	token := e.Client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: published",
		"topic", topic,
		"qos", e.cfg.QoS,
		"size", len(payload),
	)

	return nil
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("emitter: mqtt disconnected")
	}

	e.setConnected(false)
	return nil
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
