// Package mqtt receives live station observations pushed by field gateways
// and hands them to the analytics module.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"atmos-server/internal/config"
	"atmos-server/internal/modules/analytics/types"
)

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	// MessageHandler is called for each valid observation message.
	MessageHandler func(obs types.Observation) error
}

// ObservationSubscriber is the interface modules use to attach their
// message handler.
type ObservationSubscriber interface {
	SetMessageHandler(handler func(obs types.Observation) error)
}

// SetMessageHandler sets the handler for observation messages.
func (s *Subscriber) SetMessageHandler(handler func(obs types.Observation) error) {
	s.MessageHandler = handler
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect establishes connection to the MQTT broker and subscribes to the
// configured topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	// Fast path.
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	// Wait in a ctx/stop-aware loop.
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			break
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}

	if err := s.subscribe(); err != nil {
		s.client.Disconnect(0)
		return fmt.Errorf("subscribe: %w", err)
	}

	return nil
}

func (s *Subscriber) subscribe() error {
	if !s.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := s.cfg.MQTTTopic
	qos := byte(1) // At least once delivery

	messageHandler := func(client mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	}

	token := s.client.Subscribe(topic, qos, messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var obs types.Observation
	if err := json.Unmarshal(payload, &obs); err != nil {
		s.logger.Warn("failed to parse observation message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if err := validateObservation(obs); err != nil {
		s.logger.Warn("invalid observation message",
			"topic", topic,
			"station_code", obs.StationCode,
			"error", err,
		)
		return
	}

	if s.MessageHandler != nil {
		if err := s.MessageHandler(obs); err != nil {
			s.logger.Error("message handler failed",
				"topic", topic,
				"station_code", obs.StationCode,
				"error", err,
			)
		} else {
			s.logger.Debug("processed observation message",
				"station_code", obs.StationCode,
				"observed_at", obs.ObservedAt,
			)
		}
	}
}

func validateObservation(obs types.Observation) error {
	if obs.StationCode == "" {
		return fmt.Errorf("station_code is required")
	}
	if obs.VariableCode == "" {
		return fmt.Errorf("variable_code is required")
	}
	if obs.ObservedAt.IsZero() {
		return fmt.Errorf("observed_at is required")
	}
	return nil
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Subscriber) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	s.stopOnce.Do(func() { close(s.stopCh) })

	// Unsubscribe before disconnecting
	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}

	// Disconnect without holding s.mu to avoid lock contention/deadlocks.
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
