// Package ingestion turns MQTT messages from panic buttons and sensors into
// dispatch signals.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mr1hm/guard-dispatch/internal/config"
	"github.com/mr1hm/guard-dispatch/internal/dispatch"
	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/worker"
)

const defaultSource = "mqtt"

var ErrBadTopic = errors.New("topic does not match subscription")

type Submitter interface {
	Submit(ctx context.Context, in dispatch.SignalInput) (dispatch.SubmitResult, error)
}

type message struct {
	topic   string
	payload []byte
}

// payload is the JSON body devices publish. The beacon comes from the topic.
type payload struct {
	Type     string `json:"type"`
	Source   string `json:"source"`
	Priority string `json:"priority,omitempty"`
}

type Manager struct {
	cfg       config.MQTTConfig
	workers   config.WorkerConfig
	submitter Submitter
	client    mqtt.Client
	pool      *worker.Pool[message]
	log       *slog.Logger
}

func NewManager(cfg config.MQTTConfig, workers config.WorkerConfig, submitter Submitter) *Manager {
	return &Manager{
		cfg:       cfg,
		workers:   workers,
		submitter: submitter,
		log:       slog.Default().With("component", "ingestion"),
	}
}

// Start launches the worker pool and, when a broker is configured, connects
// and subscribes. Messages are handed to the pool without blocking the MQTT
// client; a full pool drops the message.
func (m *Manager) Start(ctx context.Context) error {
	m.pool = worker.New("ingestion", m.workers.Count, m.workers.BufferSize, m.handle)
	m.pool.Start(ctx)

	if !m.cfg.Enabled() {
		m.log.Info("mqtt ingestion disabled")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
	}
	if m.cfg.Password != "" {
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	// Resubscribe after every reconnect since the session is clean.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(m.cfg.Topic, byte(m.cfg.QoS), m.onMessage); token.Wait() && token.Error() != nil {
			m.log.Error("mqtt subscribe failed", "topic", m.cfg.Topic, "error", token.Error())
			return
		}
		m.log.Info("subscribed", "broker", m.cfg.Broker, "topic", m.cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn("mqtt connection lost", "error", err)
	})

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		m.pool.Stop()
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

func (m *Manager) onMessage(_ mqtt.Client, msg mqtt.Message) {
	err := m.pool.TrySubmit(message{topic: msg.Topic(), payload: msg.Payload()})
	if err != nil {
		m.log.Warn("dropping signal", "topic", msg.Topic(), "error", err)
	}
}

func (m *Manager) handle(ctx context.Context, msg message) error {
	in, err := m.parse(msg.topic, msg.payload)
	if err != nil {
		m.log.Warn("malformed signal", "topic", msg.topic, "error", err)
		return nil
	}

	res, err := m.submitter.Submit(ctx, in)
	if err != nil {
		return fmt.Errorf("submit signal from %s: %w", msg.topic, err)
	}

	m.log.Info("signal ingested", "beacon_id", in.BeaconID, "type", in.Type, "incident_id", res.IncidentID, "created", res.Created)
	return nil
}

func (m *Manager) parse(topic string, body []byte) (dispatch.SignalInput, error) {
	beaconID, err := beaconFromTopic(m.cfg.Topic, topic)
	if err != nil {
		return dispatch.SignalInput{}, err
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return dispatch.SignalInput{}, fmt.Errorf("decode payload: %w", err)
	}

	typ, err := models.ParseSignalType(p.Type)
	if err != nil {
		return dispatch.SignalInput{}, err
	}

	in := dispatch.SignalInput{BeaconID: beaconID, Type: typ, Source: p.Source}
	if in.Source == "" {
		in.Source = defaultSource
	}
	if p.Priority != "" {
		if in.Priority, err = models.ParsePriority(p.Priority); err != nil {
			return dispatch.SignalInput{}, err
		}
	}
	return in, nil
}

// beaconFromTopic returns the topic level matched by the single '+' wildcard
// in filter.
func beaconFromTopic(filter, topic string) (string, error) {
	want := strings.Split(filter, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	beaconID := ""
	for i, level := range want {
		switch level {
		case "+":
			beaconID = got[i]
		case got[i]:
		default:
			return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
		}
	}
	if beaconID == "" {
		return "", fmt.Errorf("%w: empty beacon in %s", ErrBadTopic, topic)
	}
	return beaconID, nil
}

func (m *Manager) Stop() {
	if m.client != nil {
		m.client.Unsubscribe(m.cfg.Topic).Wait()
		m.client.Disconnect(250)
	}
	if m.pool != nil {
		m.pool.Stop()
	}
	m.log.Info("ingestion manager stopped")
}
