package delivery

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar_report/internal/model"
)

var sampleData = model.DailyReportData{
	DateKey:           "2024-06-21",
	EnergyKWh:         15.8,
	EfficiencyPercent: 79,
	PeakPowerKW:       4.2,
	PeakTime:          time.Date(2024, 6, 21, 13, 15, 0, 0, time.UTC),
	ProductionHours:   8.5,
	Comparison:        model.Comparison{Percent: 12, Type: model.CompareYesterday},
	Weather:           model.WeatherSunny,
}

type mockSink struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockSink) OnReport(message string, _ model.DailyReportData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}

func TestFanout(t *testing.T) {
	a, b := &mockSink{}, &mockSink{}
	f := Fanout{a, nil, b}
	f.OnReport("hello", sampleData)

	assert.Equal(t, []string{"hello"}, a.messages)
	assert.Equal(t, []string{"hello"}, b.messages)
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, qos, payload.([]byte)})
	return newToken(p.err)
}

type errCounter struct {
	mu sync.Mutex
	n  int
}

func (c *errCounter) PublishError() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func waitDone(s *MQTTSink) <-chan error {
	ch := make(chan error, 4)
	s.done = func(err error) { ch <- err }
	return ch
}

func TestMQTTSink_PublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, "solar/daily_report", nil, nil)
	done := waitDone(sink)

	sink.OnReport("Solar production complete!", sampleData)
	require.NoError(t, <-done)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "solar/daily_report", pub.msgs[0].topic)
	assert.Equal(t, byte(1), pub.msgs[0].qos)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &env))
	assert.Equal(t, "Solar production complete!", env.Message)
	assert.Equal(t, "2024-06-21", env.Data.DateKey)
	assert.InDelta(t, 15.8, env.Data.EnergyKWh, 1e-9)
	assert.Equal(t, model.WeatherSunny, env.Data.Weather)
	assert.True(t, sampleData.PeakTime.Equal(env.Data.PeakTime))
}

func TestMQTTSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	errs := &errCounter{}
	sink := NewMQTTSink(pub, "solar/daily_report", errs, nil)
	done := waitDone(sink)

	sink.OnReport("x", sampleData)
	assert.EqualError(t, <-done, "not connected")
	assert.Equal(t, 1, errs.n)
}

func TestMQTTSink_PublishPulse(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, "solar/daily_report", nil, nil)
	done := waitDone(sink)

	sink.PublishPulse(true)
	sink.PublishPulse(false)
	<-done
	<-done

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "solar/daily_report/pulse", pub.msgs[0].topic)
	assert.Equal(t, "true", string(pub.msgs[0].payload))
	assert.Equal(t, "false", string(pub.msgs[1].payload))
}

type transitions struct {
	mu     sync.Mutex
	states []bool
}

func (tr *transitions) record(active bool) {
	tr.mu.Lock()
	tr.states = append(tr.states, active)
	tr.mu.Unlock()
}

func (tr *transitions) get() []bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]bool(nil), tr.states...)
}

func TestPulse_ResetsAfterDelay(t *testing.T) {
	tr := &transitions{}
	p := NewPulse(20*time.Millisecond, tr.record)
	assert.False(t, p.Active())

	p.OnReport("x", sampleData)
	assert.True(t, p.Active())

	assert.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(tr.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, tr.get())
}

func TestPulse_OnBeforeOffWithSlowObserver(t *testing.T) {
	for i := 0; i < 5; i++ {
		tr := &transitions{}
		p := NewPulse(time.Millisecond, func(active bool) {
			if active {
				time.Sleep(10 * time.Millisecond)
			}
			tr.record(active)
		})

		p.OnReport("x", sampleData)
		assert.Eventually(t, func() bool { return len(tr.get()) == 2 }, time.Second, time.Millisecond)
		assert.Equal(t, []bool{true, false}, tr.get())
		assert.False(t, p.Active())
	}
}

func TestPulse_StopDuringNotify(t *testing.T) {
	tr := &transitions{}
	var p *Pulse
	p = NewPulse(time.Millisecond, func(active bool) {
		tr.record(active)
		if active {
			p.Stop()
		}
	})

	p.OnReport("x", sampleData)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []bool{true}, tr.get())
	assert.False(t, p.Active())
}

func TestPulse_RetriggerExtends(t *testing.T) {
	tr := &transitions{}
	p := NewPulse(50*time.Millisecond, tr.record)

	p.OnReport("x", sampleData)
	p.OnReport("y", sampleData)

	assert.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []bool{true, true, false}, tr.get())
}

func TestPulse_Stop(t *testing.T) {
	tr := &transitions{}
	p := NewPulse(20*time.Millisecond, tr.record)
	p.OnReport("x", sampleData)
	p.Stop()
	assert.False(t, p.Active())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []bool{true}, tr.get())
}

func TestNewPulse_DefaultDuration(t *testing.T) {
	assert.Equal(t, DefaultPulseDuration, NewPulse(0, nil).Duration())
}
