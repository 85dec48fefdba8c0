package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/scheduler"
)

type published struct {
	subject string
	data    []byte
}

type recorder struct {
	msgs []published
	err  error
}

func (r *recorder) Publish(subject string, data []byte) error {
	r.msgs = append(r.msgs, published{subject, data})
	return r.err
}

func TestNATSSink(t *testing.T) {
	rec := &recorder{}
	s := NewNATSSink("tracker-1", rec, log.NewNopLogger())
	s.now = func() time.Time { return time.Unix(1580068417, 0) }

	s.Handle(scheduler.NextPrepass{Timestamp: 1580069017})
	require.Len(t, rec.msgs, 1)
	require.Equal(t, "tracklink.tracker-1.events.next-prepass-prediction", rec.msgs[0].subject)

	var msg struct {
		Device string
		Kind   string
		Time   time.Time
		Event  struct{ Timestamp uint32 }
	}
	require.NoError(t, json.Unmarshal(rec.msgs[0].data, &msg))
	require.Equal(t, "tracker-1", msg.Device)
	require.Equal(t, "next-prepass-prediction", msg.Kind)
	require.Equal(t, uint32(1580069017), msg.Event.Timestamp)
	require.True(t, msg.Time.Equal(time.Unix(1580068417, 0)))

	// publication failures are dropped
	rec.err = errors.New("disconnected")
	s.Handle(scheduler.AboutToPowerOn{Radio: radio.Cellular})
	require.Len(t, rec.msgs, 2)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(log.NewLogfmtLogger(&buf))

	s.Handle(scheduler.AboutToPowerOn{Radio: radio.Satellite})
	require.Contains(t, buf.String(), "kind=about-to-power-on")
	require.Contains(t, buf.String(), "radio=satellite")
	require.Contains(t, buf.String(), "level=info")

	buf.Reset()
	var ev scheduler.CellularConnect
	ev.Error = radio.ErrorReport{RadioCode: radio.CodeConnect, HALCode: 2, VendorCode: 30}
	s.Handle(ev)
	require.Contains(t, buf.String(), "level=warn")
	require.Contains(t, buf.String(), "vendor_code=30")
}

func TestMulti(t *testing.T) {
	var got []scheduler.Kind
	rec := scheduler.EventSinkFunc(func(e scheduler.Event) { got = append(got, e.Kind()) })
	m := Multi(rec, nil, MetricsSink{}, rec)

	m.Handle(scheduler.CellularMaxBackoffReached{Backoff: 240})
	m.Handle(scheduler.SatelliteSendStatus{Size: 28})
	require.Equal(t, []scheduler.Kind{
		scheduler.KindCellularMaxBackoffReached,
		scheduler.KindCellularMaxBackoffReached,
		scheduler.KindSatelliteSendStatus,
		scheduler.KindSatelliteSendStatus,
	}, got)
}

func TestWatcher(t *testing.T) {
	rec := &recorder{}
	s := NewNATSSink("tracker-1", rec, log.NewNopLogger())
	var ev scheduler.CellularConnect
	ev.Error = radio.ErrorReport{RadioCode: radio.CodeConnect, VendorCode: 30}
	s.Handle(ev)
	require.Len(t, rec.msgs, 1)

	var buf bytes.Buffer
	w := NewWatcher(log.NewLogfmtLogger(&buf))
	msg, err := w.HandleMessage(rec.msgs[0].subject, rec.msgs[0].data)
	require.NoError(t, err)
	require.Equal(t, "tracker-1", msg.Device)
	require.Equal(t, "cellular-connect", msg.Kind)
	require.Equal(t, int32(30), msg.Report.VendorCode)
	require.Contains(t, buf.String(), "level=warn")

	_, err = w.HandleMessage("tracklink.x.events.y", []byte("{"))
	require.Error(t, err)

	require.Equal(t, "tracklink.*.events.*", WatchSubject())
}
