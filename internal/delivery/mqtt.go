package delivery

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"solar_report/internal/model"
)

// PublishTimeout bounds how long a publish may take to be acknowledged.
const PublishTimeout = 10 * time.Second

var errPublishTimeout = errors.New("publish timed out")

// Publisher is the subset of mqtt.Client used for delivery.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ErrorRecorder counts failed deliveries.
type ErrorRecorder interface {
	PublishError()
}

// MQTTSink publishes each report as a JSON Envelope.
//
// Reports are produced from inside the subscriber's message handler, so
// OnReport never blocks on the publish token; completion is awaited on a
// separate goroutine.
type MQTTSink struct {
	client Publisher
	topic  string
	errs   ErrorRecorder
	log    *zap.Logger
	// done is called after each publish completes; used by tests.
	done func(error)
}

func NewMQTTSink(client Publisher, topic string, errs ErrorRecorder, log *zap.Logger) *MQTTSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &MQTTSink{client: client, topic: topic, errs: errs, log: log}
}

func (s *MQTTSink) OnReport(message string, data model.DailyReportData) {
	payload, err := json.Marshal(Envelope{Message: message, Data: data})
	if err != nil {
		s.fail(err)
		return
	}
	s.publish(s.topic, payload)
}

// PublishPulse publishes the pulse state to <topic>/pulse.
func (s *MQTTSink) PublishPulse(active bool) {
	s.publish(s.topic+"/pulse", []byte(strconv.FormatBool(active)))
}

func (s *MQTTSink) publish(topic string, payload []byte) {
	token := s.client.Publish(topic, 1, false, payload)
	go func() {
		var err error
		if !token.WaitTimeout(PublishTimeout) {
			err = errPublishTimeout
		} else {
			err = token.Error()
		}
		if err != nil {
			s.fail(err)
		} else {
			s.log.Debug("Published", zap.String("topic", topic))
		}
		if s.done != nil {
			s.done(err)
		}
	}()
}

func (s *MQTTSink) fail(err error) {
	if s.errs != nil {
		s.errs.PublishError()
	}
	s.log.Error("Failed to publish report", zap.String("topic", s.topic), zap.Error(err))
}
