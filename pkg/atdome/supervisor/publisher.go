package supervisor

import (
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// EventPublisher is the Supervisor's only dependency on the outside
// world: wherever summaryState, heartbeat, and telemetry end up is this
// interface's business, not the Supervisor's.
type EventPublisher interface {
	PublishSummaryState(state State) error
	PublishHeartbeat() error
	PublishTelemetry(values map[string]any) error
}

// mqttPublisher JSON-encodes events and telemetry onto an MQTT broker,
// one topic per event kind under a configurable root.
type mqttPublisher struct {
	client    mqtt.Client
	topicRoot string
	logger    log.FieldLogger
}

// NewMQTTPublisher builds an EventPublisher that publishes events under
// <topicRoot>/events/<name> and the whole telemetry map on the single
// topic <topicRoot>/telemetry/atdome.
func NewMQTTPublisher(client mqtt.Client, topicRoot string, logger log.FieldLogger) EventPublisher {
	return &mqttPublisher{
		client:    client,
		topicRoot: topicRoot,
		logger:    logger.WithField("component", "supervisor.publisher"),
	}
}

func (p *mqttPublisher) publish(topic string, payload any) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client is not connected")
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, false, value)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

func (p *mqttPublisher) PublishSummaryState(state State) error {
	return p.publish(p.topicRoot+"/events/summaryState", map[string]string{"summaryState": state.String()})
}

func (p *mqttPublisher) PublishHeartbeat() error {
	return p.publish(p.topicRoot+"/events/heartbeat", map[string]bool{"heartbeat": true})
}

func (p *mqttPublisher) PublishTelemetry(values map[string]any) error {
	return p.publish(p.topicRoot+"/telemetry/atdome", values)
}

// RecordingPublisher records every publish call in memory. Tests use it
// to assert on what the Supervisor emitted without standing up a
// broker; cmd/atdomectl uses it as the publisher when no MQTT broker is
// configured.
type RecordingPublisher struct {
	mu sync.Mutex

	summaryStates []State
	heartbeats    int
	telemetry     []map[string]any

	FailSummaryState bool
}

// NewRecordingPublisher builds an in-memory EventPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishSummaryState(state State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailSummaryState {
		return fmt.Errorf("injected summary state publish failure")
	}
	p.summaryStates = append(p.summaryStates, state)
	return nil
}

func (p *RecordingPublisher) PublishHeartbeat() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heartbeats++
	return nil
}

func (p *RecordingPublisher) PublishTelemetry(values map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.telemetry = append(p.telemetry, values)
	return nil
}

func (p *RecordingPublisher) SummaryStates() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]State, len(p.summaryStates))
	copy(out, p.summaryStates)
	return out
}

func (p *RecordingPublisher) Heartbeats() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heartbeats
}

func (p *RecordingPublisher) TelemetryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.telemetry)
}
