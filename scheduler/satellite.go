package scheduler

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/tracklink/argos"
	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/timer"
)

func (s *Scheduler) satelliteAttempt(ctx context.Context) {
	st := &s.sat
	s.emit(AboutToPowerOn{Radio: radio.Satellite})

	if err := s.satelliteSession(ctx); err != nil {
		level.Warn(s.logger).Log("msg", "satellite transmission failed", "error", err)
		s.resetSatelliteMaxInterval()
		return
	}

	if st.ignorePrepass {
		st.lastTx = s.deps.Clock.Now()
	} else {
		st.lastTx = st.nextTx
	}
	st.updates = 0
	st.transmitRequested = false
	s.resetSatelliteIntervals()
	level.Info(s.logger).Log("msg", "satellite transmission done", "last_tx", st.lastTx)
}

func (s *Scheduler) satelliteSession(ctx context.Context) error {
	sess := s.deps.Session

	err := func() error {
		err := sess.PowerOn(ctx, radio.Satellite)
		s.emit(PowerOn{Radio: radio.Satellite, result: result{s.report(err)}})
		if err != nil {
			return fmt.Errorf("power on: %w", err)
		}

		payload := TestPayload
		if !s.cfg.Satellite.TestMode {
			payload = devstatus.EncodeSatellite(s.snapshot(), argos.MaxPayload)
		}
		err = sess.SendPayload(ctx, s.cfg.Satellite.Timeout, payload)
		s.emit(SatelliteSendStatus{result: result{s.report(err)}, Size: len(payload)})
		if err != nil {
			return fmt.Errorf("send %d bytes: %w", len(payload), err)
		}
		return nil
	}()

	perr := sess.PowerOff(ctx)
	s.emit(PowerOff{Radio: radio.Satellite, result: result{s.report(perr)}})
	if perr != nil {
		level.Warn(s.logger).Log("msg", "satellite power off failed", "error", perr)
	}
	return err
}

// onPrepass fires when the satellite window opens.
func (s *Scheduler) onPrepass() {
	s.sat.prepassReached = true
	s.Tick(s.deps.Context)
	s.sat.prepassReached = false
}

func (s *Scheduler) schedulePrepass(fix devstatus.Location) error {
	now := s.deps.Clock.Now()
	cfg := s.cfg.Satellite

	next, err := s.deps.Predict(cfg.Bulletins.Bulletins(), cfg.Prepass, fix.Longitude, fix.Latitude, now)
	if err != nil {
		level.Warn(s.logger).Log("msg", "can't predict next satellite pass", "error", err)
		return &PredictionError{Err: err}
	}

	wake := int64(next) + s.jitter()
	earliest := int64(now) + int64(cfg.TurnOnLatency)
	if wake < earliest {
		wake = earliest
	}

	s.deps.Timers.Set(s.timers.satPrepass, timer.OneShot, uint32(wake-earliest))
	s.sat.nextTx = uint32(wake)
	s.emit(NextPrepass{Timestamp: s.sat.nextTx})
	level.Debug(s.logger).Log("msg", "next satellite pass", "predicted", next, "wake", wake)

	return nil
}

// jitter returns a uniform offset in [-w/2, w/2) for the randomised window w.
func (s *Scheduler) jitter() int64 {
	w := int64(s.cfg.Satellite.RandomizedTxWindow)
	if w == 0 {
		return 0
	}
	limit := (int64(RandMax) + 1) / w * w
	for {
		r := int64(s.deps.Rand.Int31())
		if r < limit {
			return r%w - w/2
		}
	}
}
