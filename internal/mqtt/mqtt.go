// Package mqtt bridges fleet telemetry over an MQTT broker. Collector
// agents on sites without direct HTTP reachability publish batches to
// <prefix>/ingest; the bridge feeds them into the telemetry module and
// republishes fleet events outward for integrations.
package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/internal/telemetry"
	"github.com/hashfleet/hashfleet/pkg/models"
	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// BatchSink accepts decoded telemetry batches. Implemented by the telemetry
// module; resolved at Start.
type BatchSink interface {
	Ingest(ctx context.Context, batch []models.RawTelemetry, receivedAt time.Time) string
}

// Module implements the MQTT bridge plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	plugins plugin.PluginResolver

	mu     sync.RWMutex
	client pahomqtt.Client
	sink   BatchSink
}

// New creates a new MQTT bridge plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "mqtt",
		Version:     "0.1.0",
		Description: "Bridges telemetry batches and fleet events over MQTT",
		Roles:       []string{"integration"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.plugins = deps.Plugins
	m.cfg = DefaultConfig()
	m.cfg.applyOverrides(deps.Config)

	if m.cfg.BrokerURL == "" {
		m.logger.Warn("MQTT broker URL not configured; bridge is disabled",
			zap.String("component", "mqtt"),
		)
	}

	m.logger.Info("mqtt module initialized",
		zap.String("broker_url", m.cfg.BrokerURL),
		zap.String("client_id", m.cfg.ClientID),
		zap.String("topic_prefix", m.cfg.TopicPrefix),
		zap.Uint8("qos", m.cfg.QoS),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.plugins != nil {
		if p, ok := m.plugins.Resolve("telemetry"); ok {
			if sink, ok := p.(BatchSink); ok {
				m.mu.Lock()
				m.sink = sink
				m.mu.Unlock()
			}
		}
	}

	if m.cfg.BrokerURL == "" {
		m.logger.Info("mqtt bridge idle, no broker configured")
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(m.cfg.Timeout).
		SetOnConnectHandler(m.onConnect)

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password) //nolint:gosec // G101: config field
	}

	client := pahomqtt.NewClient(opts)
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	token := client.Connect()
	switch {
	case !token.WaitTimeout(m.cfg.Timeout):
		m.logger.Warn("mqtt connect timed out, retrying in background")
	case token.Error() != nil:
		m.logger.Warn("mqtt connect failed, retrying in background",
			zap.Error(token.Error()),
		)
	default:
		m.logger.Info("mqtt broker connected",
			zap.String("broker_url", m.cfg.BrokerURL),
		)
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		m.logger.Info("mqtt bridge stopped")
	}
	return nil
}

// onConnect re-establishes the ingest subscription. Runs on every connect,
// including automatic reconnects.
func (m *Module) onConnect(client pahomqtt.Client) {
	topic := m.ingestTopic()
	token := client.Subscribe(topic, m.cfg.QoS, m.onIngestMessage)
	if !token.WaitTimeout(m.cfg.Timeout) || token.Error() != nil {
		m.logger.Warn("mqtt subscribe failed",
			zap.String("topic", topic),
			zap.Error(token.Error()),
		)
		return
	}
	m.logger.Info("mqtt subscribed", zap.String("topic", topic))
}

// onIngestMessage decodes a published batch and hands it to the telemetry
// module. Malformed payloads are logged and dropped; a bad publisher must
// not take the bridge down.
func (m *Module) onIngestMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink == nil {
		m.logger.Warn("mqtt ingest dropped: telemetry module not available")
		return
	}

	batch, err := telemetry.DecodeBatch(msg.Payload())
	if err != nil {
		m.logger.Warn("mqtt ingest dropped: malformed batch",
			zap.String("topic", msg.Topic()),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()
	batchID := sink.Ingest(ctx, batch, time.Now().UTC())
	m.logger.Debug("mqtt batch ingested",
		zap.String("batch_id", batchID),
		zap.Int("devices", len(batch)),
	)
}

// Subscriptions implements plugin.EventSubscriber. Fleet events are
// republished outward so site integrations can react without polling.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: telemetry.TopicBatchReceived, Handler: m.publishEvent},
		{Topic: telemetry.TopicStoreCleared, Handler: m.publishEvent},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.cfg.BrokerURL == "" {
		return plugin.HealthStatus{
			Status:  "healthy",
			Message: "bridge idle, no broker configured",
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || !m.client.IsConnected() {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "broker connection down",
		}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Message: "connected to " + m.cfg.BrokerURL,
	}
}

func (m *Module) ingestTopic() string {
	return m.cfg.TopicPrefix + "/ingest"
}

// mqttTopicFromEvent maps an event bus topic to an MQTT topic path.
func (m *Module) mqttTopicFromEvent(eventTopic string) string {
	switch eventTopic {
	case telemetry.TopicBatchReceived:
		return m.cfg.TopicPrefix + "/fleet/batch"
	case telemetry.TopicStoreCleared:
		return m.cfg.TopicPrefix + "/fleet/cleared"
	default:
		return m.cfg.TopicPrefix + "/unknown"
	}
}

func (m *Module) publishEvent(_ context.Context, event plugin.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.client == nil || !m.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		m.logger.Warn("mqtt payload encode failed",
			zap.String("event_topic", event.Topic),
			zap.Error(err),
		)
		return
	}

	mqttTopic := m.mqttTopicFromEvent(event.Topic)
	token := m.client.Publish(mqttTopic, m.cfg.QoS, m.cfg.Retain, payload)
	switch {
	case !token.WaitTimeout(m.cfg.Timeout):
		m.logger.Warn("mqtt publish timed out",
			zap.String("mqtt_topic", mqttTopic),
		)
		return
	case token.Error() != nil:
		m.logger.Warn("mqtt publish failed",
			zap.String("mqtt_topic", mqttTopic),
			zap.Error(token.Error()),
		)
		return
	}

	m.logger.Debug("mqtt event published",
		zap.String("mqtt_topic", mqttTopic),
		zap.String("event_topic", event.Topic),
	)
}
