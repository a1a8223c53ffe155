// Package telemetry publishes session events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/loginhelper/internal/config"
	"github.com/energizer-project/loginhelper/internal/events"
	"github.com/energizer-project/loginhelper/internal/util"
)

// MQTT topic suffixes, appended to the configured prefix.
const (
	TopicSession = "session"
	TopicAuth    = "auth"
	TopicCommand = "command"
)

// ErrDisabled is returned when MQTT telemetry is switched off in config.
var ErrDisabled = errors.New("MQTT is disabled")

// MQTTHandler publishes session events as JSON. Publishing never blocks the
// session; Close waits a bounded time for in-flight messages.
type MQTTHandler struct {
	mu sync.Mutex

	cfg    config.MQTTConfig
	client mqtt.Client
	logger zerolog.Logger

	pending sync.WaitGroup

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg config.MQTTConfig) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	sysInfo := util.GetSystemInfo()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerAddress(cfg))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("loginhelper-%s-%d", sysInfo.Hostname, os.Getpid()))
	}

	// A helper lives as long as one client, so no persistent session.
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(cfg.PublishTimeout())

	if cfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS: load client certificate
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	h := newHandler(cfg, nil, sysInfo)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

func newHandler(cfg config.MQTTConfig, client mqtt.Client, sysInfo util.SystemInfo) *MQTTHandler {
	return &MQTTHandler{
		cfg:    cfg,
		client: client,
		logger: log.With().Str("component", "mqtt").Logger(),
		metadata: map[string]interface{}{
			"hostname":  sysInfo.Hostname,
			"os":        sysInfo.OS,
			"arch":      sysInfo.Architecture,
			"cpu_cores": sysInfo.CPUCores,
			"memory_mb": sysInfo.TotalMemory,
			"pid":       os.Getpid(),
		},
	}
}

func brokerAddress(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port)
}

// Connect dials the broker, giving up after the publish timeout or when ctx
// is done.
func (h *MQTTHandler) Connect(ctx context.Context) error {
	h.logger.Debug().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(h.cfg.PublishTimeout()):
		return fmt.Errorf("MQTT connect timed out after %s", h.cfg.PublishTimeout())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}
	return nil
}

// Attach subscribes the handler to every session event on bus.
func (h *MQTTHandler) Attach(bus *events.EventBus) {
	bus.SubscribeAll("mqtt", h.onEvent)
}

func (h *MQTTHandler) onEvent(_ context.Context, event events.Event) error {
	h.publish(h.Topic(event.Type), event)
	return nil
}

// Topic returns the full topic an event type is published on.
func (h *MQTTHandler) Topic(eventType events.EventType) string {
	suffix := TopicSession
	switch eventType {
	case events.EventLoginAccepted, events.EventLoginRejected, events.EventConfigDenied:
		suffix = TopicAuth
	case events.EventClientCommand:
		suffix = TopicCommand
	}
	if h.cfg.TopicPrefix == "" {
		return suffix
	}
	return h.cfg.TopicPrefix + "/" + suffix
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, event events.Event) {
	if !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(event))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		if !token.WaitTimeout(h.cfg.PublishTimeout()) {
			h.logger.Warn().Str("topic", topic).Msg("MQTT publish timed out")
			return
		}
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event.
func (h *MQTTHandler) buildMessage(event events.Event) map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := make(map[string]interface{}, len(h.metadata)+4)
	for k, v := range h.metadata {
		msg[k] = v
	}

	msg["event"] = string(event.Type)
	msg["source"] = event.Source
	msg["payload"] = event.Payload
	at := event.Time
	if at.IsZero() {
		at = time.Now()
	}
	msg["timestamp"] = at.UTC().Format(time.RFC3339Nano)

	return msg
}

// Flush waits up to timeout for in-flight publishes. It reports whether they
// all completed.
func (h *MQTTHandler) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close flushes in-flight publishes and disconnects.
func (h *MQTTHandler) Close() {
	if !h.Flush(h.cfg.PublishTimeout()) {
		h.logger.Warn().Msg("MQTT flush incomplete")
	}
	if h.client.IsConnected() {
		h.client.Disconnect(250)
	}
	h.logger.Debug().Msg("MQTT disconnected")
}
