// Package telemetry publishes session and command audit events to an MQTT
// broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/config"
	"github.com/energizer-project/rconsole/internal/events"
	"github.com/energizer-project/rconsole/internal/util"
)

// Topic suffixes below the configured prefix.
const (
	TopicSession = "session"
	TopicCommand = "command"
)

// MQTTHandler forwards bus events to MQTT.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// commandAudit is what gets published for a command. The response body
// stays local; only its size leaves the host.
type commandAudit struct {
	SessionID     string  `json:"session_id"`
	Address       string  `json:"address"`
	Command       string  `json:"command"`
	Error         string  `json:"error,omitempty"`
	DurationMS    float64 `json:"duration_ms"`
	ResponseBytes int     `json:"response_bytes"`
	MultiPacket   bool    `json:"multi_packet"`
}

// NewMQTTHandler creates a handler with a paho client for the configured
// broker. It does not connect until Start.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("rconsole-%s", sysInfo.Hostname))
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.BrokerURL).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	return newMQTTHandler(cfg, eventBus, mqtt.NewClient(opts), sysInfo), nil
}

func newMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus, client mqtt.Client, sysInfo util.SystemInfo) *MQTTHandler {
	return &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		client:   client,
		metadata: map[string]interface{}{
			"hostname":  sysInfo.Hostname,
			"os":        sysInfo.OS,
			"arch":      sysInfo.Architecture,
			"cpu_model": sysInfo.CPUModel,
			"cpu_cores": sysInfo.CPUCores,
			"memory_mb": sysInfo.TotalMemory,
		},
	}
}

// Start connects to the broker, subscribes to bus events and blocks until
// ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.SubscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(2000)
	log.Info().Msg("MQTT disconnected")
	return nil
}

// SubscribeEvents registers the bus handlers that publish to MQTT.
func (h *MQTTHandler) SubscribeEvents() {
	for _, t := range []events.EventType{
		events.EventSessionConnected,
		events.EventSessionAuthFailed,
		events.EventSessionClosed,
	} {
		h.eventBus.Subscribe(t, "mqtt.session", h.onSession)
	}
	h.eventBus.Subscribe(events.EventCommandExecuted, "mqtt.command", h.onCommand)
	h.eventBus.Subscribe(events.EventCommandFailed, "mqtt.command", h.onCommand)
}

// Topic returns the full topic for a suffix.
func (h *MQTTHandler) Topic(suffix string) string {
	return h.cfg.TopicPrefix + "/" + suffix
}

func (h *MQTTHandler) onSession(_ context.Context, event events.Event) error {
	return h.publish(h.Topic(TopicSession), event, event.Payload)
}

func (h *MQTTHandler) onCommand(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.CommandPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return h.publish(h.Topic(TopicCommand), event, commandAudit{
		SessionID:     p.SessionID,
		Address:       p.Address,
		Command:       p.Command,
		Error:         p.Error,
		DurationMS:    float64(p.Duration) / float64(time.Millisecond),
		ResponseBytes: len(p.Response),
		MultiPacket:   p.Multi,
	})
}

// publish sends a JSON message with QoS 1. It is a no-op while
// disconnected; auto-reconnect brings later events through.
func (h *MQTTHandler) publish(topic string, event events.Event, payload interface{}) error {
	if !h.client.IsConnected() {
		return nil
	}

	data, err := json.Marshal(h.buildMessage(event, payload))
	if err != nil {
		return fmt.Errorf("failed to marshal MQTT message: %w", err)
	}

	token := h.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
	return nil
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(event events.Event, payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}

	ts := event.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	msg["event"] = string(event.Type)
	msg["payload"] = payload
	msg["timestamp"] = ts.UTC().Format(time.RFC3339)
	return msg
}

// PublishShutdown announces that this rconsole instance is going away.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.Topic(TopicSession), events.Event{Type: events.EventShutdown}, nil)
}
