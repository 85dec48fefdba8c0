// Package telemetry forwards the scheduler lifecycle events to the logs, to
// prometheus and to NATS.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"

	"github.com/akhenakh/tracklink/metrics"
	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/scheduler"
)

// SubjectPrefix starts the NATS subjects of the events.
const SubjectPrefix = "tracklink"

type multi []scheduler.EventSink

func (m multi) Handle(e scheduler.Event) {
	for _, s := range m {
		s.Handle(e)
	}
}

// Multi sends the events to every sink, nil sinks are skipped.
func Multi(sinks ...scheduler.EventSink) scheduler.EventSink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// LogSink logs the events, failed steps at warning level.
type LogSink struct {
	logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{logger: log.With(logger, "component", "events")}
}

func (s *LogSink) Handle(e scheduler.Event) {
	kv := append([]interface{}{"msg", "event", "kind", e.Kind().String()}, fields(e)...)
	if r := e.Report(); !r.IsZero() {
		kv = append(kv,
			"radio_code", r.RadioCode,
			"hal_code", r.HALCode,
			"hal_line", r.HALLine,
			"vendor_code", r.VendorCode,
		)
		level.Warn(s.logger).Log(kv...)
		return
	}
	level.Info(s.logger).Log(kv...)
}

func fields(e scheduler.Event) []interface{} {
	switch ev := e.(type) {
	case scheduler.AboutToPowerOn:
		return []interface{}{"radio", ev.Radio.String()}
	case scheduler.CellularNetworkInfo:
		return []interface{}{"technology", ev.Info.Technology, "operator", ev.Info.Operator}
	case scheduler.CellularFetchShadow:
		return []interface{}{
			"read_position", ev.Document.Logging.ReadPosition,
			"firmware", ev.Document.Firmware.Version,
			"configuration", ev.Document.Configuration.Version,
		}
	case scheduler.CellularSendLogging:
		return []interface{}{"position", ev.Position}
	case scheduler.CellularDownloadFile:
		return []interface{}{"size", ev.Size}
	case scheduler.CellularMaxBackoffReached:
		return []interface{}{"backoff", ev.Backoff}
	case scheduler.SatelliteSendStatus:
		return []interface{}{"size", ev.Size}
	case scheduler.ApplyFirmwareUpdate:
		return []interface{}{"version", ev.Version}
	case scheduler.ApplyConfigUpdate:
		return []interface{}{"version", ev.Version}
	case scheduler.NextPrepass:
		return []interface{}{"timestamp", ev.Timestamp}
	}
	return nil
}

// MetricsSink counts the events and the connection results.
type MetricsSink struct{}

func (MetricsSink) Handle(e scheduler.Event) {
	res := metrics.ResultOK
	if !e.Report().IsZero() {
		res = metrics.ResultError
	}
	metrics.EventCounter.WithLabelValues(e.Kind().String(), res).Inc()

	switch ev := e.(type) {
	case scheduler.CellularSendStatus:
		metrics.AttemptCounter.WithLabelValues(radio.Cellular.String(), res).Inc()
	case scheduler.CellularConnect:
		if res == metrics.ResultError {
			metrics.AttemptCounter.WithLabelValues(radio.Cellular.String(), res).Inc()
		}
	case scheduler.SatelliteSendStatus:
		metrics.AttemptCounter.WithLabelValues(radio.Satellite.String(), res).Inc()
	case scheduler.CellularMaxBackoffReached:
		metrics.BackoffGauge.Set(float64(ev.Backoff))
	case scheduler.NextPrepass:
		metrics.NextPassGauge.Set(float64(ev.Timestamp))
	}
}

// Publisher publishes a message, a *nats.Conn is one.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON published for each event.
type Message struct {
	ID     uuid.UUID         `json:"id"`
	Device string            `json:"device"`
	Kind   string            `json:"kind"`
	Time   time.Time         `json:"time"`
	Report radio.ErrorReport `json:"report"`
	Event  scheduler.Event   `json:"event"`
}

// Subject returns the subject the events of kind are published on.
func Subject(device string, kind scheduler.Kind) string {
	return fmt.Sprintf("%s.%s.events.%s", SubjectPrefix, device, kind)
}

// NATSSink publishes the events of device.
type NATSSink struct {
	device string
	pub    Publisher
	logger log.Logger
	now    func() time.Time
}

func NewNATSSink(device string, pub Publisher, logger log.Logger) *NATSSink {
	return &NATSSink{
		device: device,
		pub:    pub,
		logger: log.With(logger, "component", "nats"),
		now:    time.Now,
	}
}

// Handle publishes e, failures are logged, events are never retried.
func (s *NATSSink) Handle(e scheduler.Event) {
	msg := Message{
		ID:     uuid.New(),
		Device: s.device,
		Kind:   e.Kind().String(),
		Time:   s.now().UTC(),
		Report: e.Report(),
		Event:  e,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		level.Error(s.logger).Log("msg", "can't marshal event", "kind", msg.Kind, "error", err)
		return
	}
	if err := s.pub.Publish(Subject(s.device, e.Kind()), b); err != nil {
		level.Warn(s.logger).Log("msg", "can't publish event", "kind", msg.Kind, "error", err)
	}
}

// Received is a Message read back by a subscriber, the event is left raw.
type Received struct {
	ID     uuid.UUID         `json:"id"`
	Device string            `json:"device"`
	Kind   string            `json:"kind"`
	Time   time.Time         `json:"time"`
	Report radio.ErrorReport `json:"report"`
	Event  json.RawMessage   `json:"event"`
}

// Watcher consumes the events published by the trackers.
type Watcher struct {
	logger log.Logger
}

func NewWatcher(logger log.Logger) *Watcher {
	return &Watcher{logger: log.With(logger, "component", "watcher")}
}

// HandleMessage decodes and logs one published event.
func (w *Watcher) HandleMessage(subject string, data []byte) (Received, error) {
	var msg Received
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decoding event on %s: %w", subject, err)
	}

	res := metrics.ResultOK
	kv := []interface{}{
		"msg", "tracker event",
		"device", msg.Device,
		"kind", msg.Kind,
		"id", msg.ID,
		"event_time", msg.Time,
	}
	if !msg.Report.IsZero() {
		res = metrics.ResultError
		kv = append(kv, "radio_code", msg.Report.RadioCode, "vendor_code", msg.Report.VendorCode)
		level.Warn(w.logger).Log(kv...)
	} else {
		level.Debug(w.logger).Log(kv...)
	}
	metrics.ReceivedEventCounter.WithLabelValues(msg.Kind, res).Inc()
	return msg, nil
}

// WatchSubject matches the events of every device.
func WatchSubject() string {
	return SubjectPrefix + ".*.events.*"
}
