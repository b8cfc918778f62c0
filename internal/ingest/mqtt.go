package ingest

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Ingester consumes power samples.
type Ingester interface {
	Ingest(powerW float64, ts time.Time)
}

// IngesterFunc adapts a function to Ingester.
type IngesterFunc func(powerW float64, ts time.Time)

func (f IngesterFunc) Ingest(powerW float64, ts time.Time) {
	f(powerW, ts)
}

// ErrorRecorder counts rejected messages by reason.
type ErrorRecorder interface {
	IngestError(reason string)
}

// MQTTConfig describes the broker connection and power topic.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// Subscriber feeds power readings from an MQTT topic into an Ingester.
// Messages are handled one at a time, so the Ingester sees samples in
// arrival order.
type Subscriber struct {
	cfg    MQTTConfig
	target Ingester
	errs   ErrorRecorder
	log    *zap.Logger
	now    func() time.Time
	client mqtt.Client
}

func NewSubscriber(cfg MQTTConfig, target Ingester, errs ErrorRecorder, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Subscriber{cfg: cfg, target: target, errs: errs, log: log, now: time.Now}
	if cfg.Broker != "" {
		s.client = mqtt.NewClient(s.ClientOptions())
	}
	return s
}

// ClientOptions builds the paho options: auto-reconnect, ordered delivery,
// and a resubscribe on every (re)connect.
func (s *Subscriber) ClientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(s.cfg.Topic, 1, s.HandleMessage); token.Wait() && token.Error() != nil {
			s.log.Error("Failed to subscribe", zap.String("topic", s.cfg.Topic), zap.Error(token.Error()))
			return
		}
		s.log.Info("Subscribed to power topic", zap.String("topic", s.cfg.Topic))
	})
	return opts
}

// Connect opens the broker connection.
func (s *Subscriber) Connect() error {
	if s.client == nil {
		return errors.New("mqtt broker not configured")
	}
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to %s: %w", s.cfg.Broker, token.Error())
	}
	return nil
}

// Client returns the broker client, or nil when no broker is configured.
// It may be used for publishing once Connect succeeds.
func (s *Subscriber) Client() mqtt.Client {
	return s.client
}

// Close disconnects, waiting up to 250ms for in-flight work.
func (s *Subscriber) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

// HandleMessage is the paho message handler.
func (s *Subscriber) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	sample, err := ParsePayload(msg.Payload(), s.now())
	if err != nil {
		reason := "parse"
		if errors.Is(err, ErrNonFinite) {
			reason = "non_finite"
		}
		if s.errs != nil {
			s.errs.IngestError(reason)
		}
		s.log.Warn("Dropping power message",
			zap.String("topic", msg.Topic()),
			zap.ByteString("payload", msg.Payload()),
			zap.Error(err))
		return
	}
	s.target.Ingest(sample.PowerW, sample.Time)
}
