package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"
)

type fakeToken struct {
	mqtt.Token
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                       { return !t.timeout }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                     { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mqtt.Client

	connectErr     error
	connectTimeout bool
	publishErr     error

	mu          sync.Mutex
	connected   bool
	disconnects int
	messages    []message
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil && !c.connectTimeout
	return &fakeToken{err: c.connectErr, timeout: c.connectTimeout}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr == nil {
		c.messages = append(c.messages, message{topic: topic, qos: qos, payload: payload.([]byte)})
	}
	return &fakeToken{err: c.publishErr}
}

func newTestEmitter(cfg Config, client *fakeClient) *MQTTEmitter {
	e := NewMQTTEmitter(cfg)
	e.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }
	return e
}

type sample struct {
	RunID   string `json:"run_id"`
	Buffers uint64 `json:"buffers"`
}

func TestMQTTEmitter_Publish(t *testing.T) {
	client := &fakeClient{}
	e := newTestEmitter(Config{
		Broker:   "localhost:1883",
		ClientID: "bh-1",
		Topic:    "buffer-hold/bh-1",
		QoS:      1,
	}, client)

	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := e.PublishStats(sample{RunID: "r1", Buffers: 10}); err != nil {
		t.Fatalf("PublishStats() error = %v", err)
	}
	if err := e.PublishStats(sample{RunID: "r1", Buffers: 20}); err != nil {
		t.Fatalf("PublishStats() error = %v", err)
	}
	if err := e.PublishReport(sample{RunID: "r1", Buffers: 30}); err != nil {
		t.Fatalf("PublishReport() error = %v", err)
	}

	if len(client.messages) != 3 {
		t.Fatalf("published %d messages, want 3", len(client.messages))
	}

	last := client.messages[2]
	if last.topic != "buffer-hold/bh-1/report" || last.qos != 1 {
		t.Errorf("report published to %q qos %d", last.topic, last.qos)
	}
	var got sample
	if err := json.Unmarshal(last.payload, &got); err != nil {
		t.Fatalf("report payload: %v", err)
	}
	if diff := cmp.Diff(sample{RunID: "r1", Buffers: 30}, got); diff != "" {
		t.Errorf("report payload mismatch (-want +got):\n%s", diff)
	}

	want := Stats{
		Connected: true,
		Published: map[string]uint64{
			"buffer-hold/bh-1/stats":  2,
			"buffer-hold/bh-1/report": 1,
		},
	}
	if diff := cmp.Diff(want, e.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}

	if err := e.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if e.Stats().Connected {
		t.Error("still connected after Disconnect")
	}
}

func TestMQTTEmitter_Msgpack(t *testing.T) {
	client := &fakeClient{}
	e := newTestEmitter(Config{Broker: "tcp://broker:1883", Topic: "t", Format: FormatMsgpack}, client)

	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := e.PublishReport(sample{RunID: "r2", Buffers: 5}); err != nil {
		t.Fatalf("PublishReport() error = %v", err)
	}

	var got map[string]interface{}
	if err := msgpack.Unmarshal(client.messages[0].payload, &got); err != nil {
		t.Fatalf("msgpack payload: %v", err)
	}
	if got["run_id"] != "r2" {
		t.Errorf("run_id = %v, want r2 (json field names)", got["run_id"])
	}
	if _, ok := got["buffers"]; !ok {
		t.Errorf("payload keys = %v, missing buffers", got)
	}
}

func TestMQTTEmitter_NotConnected(t *testing.T) {
	e := NewMQTTEmitter(Config{Topic: "t"})

	if err := e.PublishStats(sample{}); err == nil {
		t.Fatal("PublishStats() should fail before Connect")
	}
	if got := e.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestMQTTEmitter_ConnectFailure(t *testing.T) {
	errRefused := errors.New("connection refused")
	e := newTestEmitter(Config{Broker: "localhost:1883"}, &fakeClient{connectErr: errRefused})

	err := e.Connect(context.Background())
	if !errors.Is(err, errRefused) {
		t.Fatalf("Connect() error = %v, want wrapping %v", err, errRefused)
	}
	if e.Stats().Connected {
		t.Error("Connected after failed Connect")
	}
}

func TestMQTTEmitter_ConnectStopsClient(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"timeout", &fakeClient{connectTimeout: true}},
		{"refused", &fakeClient{connectErr: errors.New("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEmitter(Config{Broker: "localhost:1883"}, tt.client)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			if err := e.Connect(ctx); err == nil {
				t.Fatal("Connect() should fail")
			}
			if tt.client.disconnects != 1 {
				t.Errorf("client disconnected %d times, want 1 so background retries stop", tt.client.disconnects)
			}
		})
	}
}

func TestMQTTEmitter_PublishFailure(t *testing.T) {
	errBroker := errors.New("broker gone")
	e := newTestEmitter(Config{Topic: "t"}, &fakeClient{publishErr: errBroker})

	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := e.PublishStats(sample{}); !errors.Is(err, errBroker) {
		t.Errorf("PublishStats() error = %v, want wrapping %v", err, errBroker)
	}
	if got := e.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	if _, err := Encode(sample{}, "xml"); err == nil {
		t.Error("Encode() should reject unknown formats")
	}
}

func TestBrokerURL(t *testing.T) {
	tests := map[string]string{
		"localhost:1883":      "tcp://localhost:1883",
		"ssl://broker:8883":   "ssl://broker:8883",
		"ws://broker:80/mqtt": "ws://broker:80/mqtt",
		"192.168.1.10:1883":   "tcp://192.168.1.10:1883",
	}
	for in, want := range tests {
		if got := brokerURL(in); got != want {
			t.Errorf("brokerURL(%q) = %q, want %q", in, got, want)
		}
	}
}
