package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/loginhelper/internal/config"
	"github.com/energizer-project/loginhelper/internal/events"
	"github.com/energizer-project/loginhelper/internal/util"
)

type doneToken struct {
	done chan struct{}
	err  error
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { <-t.done; return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes; unused mqtt.Client methods panic via the nil embed.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	connected    bool
	messages     []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return newDoneToken(nil)
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newDoneToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func testConfig() config.MQTTConfig {
	cfg := config.DefaultConfig().MQTT
	cfg.Enabled = true
	cfg.BrokerURL = "broker.local"
	return cfg
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	_, err := NewMQTTHandler(config.DefaultConfig().MQTT)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestBrokerAddress(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "ssl://broker.local:8883", brokerAddress(cfg))

	cfg.UseTLS = false
	cfg.Port = 1883
	assert.Equal(t, "tcp://broker.local:1883", brokerAddress(cfg))
}

func TestTopic(t *testing.T) {
	h := newHandler(testConfig(), &fakeClient{}, util.SystemInfo{})

	assert.Equal(t, "login_helper/session", h.Topic(events.EventSessionStarted))
	assert.Equal(t, "login_helper/session", h.Topic(events.EventRevalidated))
	assert.Equal(t, "login_helper/session", h.Topic(events.EventSessionEnded))
	assert.Equal(t, "login_helper/auth", h.Topic(events.EventLoginAccepted))
	assert.Equal(t, "login_helper/auth", h.Topic(events.EventLoginRejected))
	assert.Equal(t, "login_helper/auth", h.Topic(events.EventConfigDenied))
	assert.Equal(t, "login_helper/command", h.Topic(events.EventClientCommand))

	cfg := testConfig()
	cfg.TopicPrefix = ""
	assert.Equal(t, "command", newHandler(cfg, &fakeClient{}, util.SystemInfo{}).Topic(events.EventClientCommand))
}

func TestPublishesBusEvents(t *testing.T) {
	client := &fakeClient{}
	h := newHandler(testConfig(), client, util.SystemInfo{Hostname: "gamebox", CPUCores: 4})
	require.NoError(t, h.Connect(context.Background()))

	bus := events.NewEventBus()
	h.Attach(bus)

	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	require.NoError(t, bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventLoginAccepted,
		Source:  "session",
		Time:    at,
		Payload: events.LoginPayload{Username: "mihawk"},
	}))
	require.True(t, h.Flush(time.Second))

	client.mu.Lock()
	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	client.mu.Unlock()

	assert.Equal(t, "login_helper/auth", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, "login_accepted", decoded["event"])
	assert.Equal(t, "session", decoded["source"])
	assert.Equal(t, "gamebox", decoded["hostname"])
	assert.Equal(t, float64(4), decoded["cpu_cores"])
	assert.Equal(t, "2026-10-14T12:00:00Z", decoded["timestamp"])
	assert.Equal(t, map[string]interface{}{"username": "mihawk"}, decoded["payload"])

	h.Close()
	assert.True(t, client.disconnected)
}

func TestPublishSkippedWhileDisconnected(t *testing.T) {
	client := &fakeClient{}
	h := newHandler(testConfig(), client, util.SystemInfo{})

	require.NoError(t, h.onEvent(context.Background(), events.Event{Type: events.EventSessionStarted}))
	assert.True(t, h.Flush(time.Second))
	assert.Empty(t, client.messages)

	h.Close()
	assert.False(t, client.disconnected)
}

func TestSessionEndedPayloadShape(t *testing.T) {
	h := newHandler(testConfig(), &fakeClient{}, util.SystemInfo{})
	msg := h.buildMessage(events.Event{
		Type: events.EventSessionEnded,
		Payload: events.SessionEndedPayload{
			Username: "mihawk",
			Reason:   events.EndReasonBye,
			Duration: 2 * time.Second,
			Sent:     3,
			Received: 4,
		},
	})

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reason":"bye"`)
	assert.Contains(t, string(data), `"duration_ns":2000000000`)
	assert.NotEmpty(t, msg["timestamp"])
}
