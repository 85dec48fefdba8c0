package scheduler

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/timer"
)

type pendingUpdate struct {
	firmware uint32
	config   uint32
}

func (s *Scheduler) cellularAttempt(ctx context.Context) {
	c := &s.cell
	s.emit(AboutToPowerOn{Radio: radio.Cellular})

	c.isPending = true
	c.retryRequested = false
	upd, err := s.cellularSession(ctx)
	c.isPending = false

	if err != nil {
		level.Warn(s.logger).Log("msg", "cellular connection failed", "error", err, "backoff", c.backoff)
		s.cellularFailed()
		return
	}

	now := s.deps.Clock.Now()
	c.lastSuccess = now
	c.backoff = BackoffSeed
	c.maxBackoffReached = false
	c.updates = 0
	s.deps.Timers.Cancel(s.timers.cellRetry)
	s.resetCellularIntervals()
	level.Info(s.logger).Log("msg", "cellular connection done", "log_position", s.logPosition)

	s.applyUpdate(upd)
}

// cellularSession runs the connection steps, the radio is always powered
// off whatever step failed.
func (s *Scheduler) cellularSession(ctx context.Context) (pendingUpdate, error) {
	sess := s.deps.Session
	var upd pendingUpdate

	err := func() error {
		err := sess.PowerOn(ctx, radio.Cellular)
		s.emit(PowerOn{Radio: radio.Cellular, result: result{s.report(err)}})
		if err != nil {
			return fmt.Errorf("power on: %w", err)
		}

		return s.cellularExchange(ctx, &upd)
	}()

	perr := sess.PowerOff(ctx)
	s.emit(PowerOff{Radio: radio.Cellular, result: result{s.report(perr)}})
	if perr != nil {
		level.Warn(s.logger).Log("msg", "cellular power off failed", "error", perr)
	}

	return upd, err
}

func (s *Scheduler) cellularExchange(ctx context.Context, upd *pendingUpdate) error {
	sess := s.deps.Session
	timeout := s.cfg.Cellular.Timeout

	err := sess.Connect(ctx, timeout)
	s.emit(CellularNetworkInfo{Info: sess.NetworkInfo()})
	s.emit(CellularConnect{result{s.report(err)}})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	doc, err := sess.FetchDeviceShadow(ctx, timeout)
	s.emit(CellularFetchShadow{result: result{s.report(err)}, Document: doc})
	if err != nil {
		return fmt.Errorf("fetch shadow: %w", err)
	}
	s.logPosition = doc.Logging.ReadPosition

	if s.cfg.Cellular.LogFilter != 0 && s.deps.LogFile != nil {
		if err := s.shipLog(ctx); err != nil {
			return err
		}
	}

	err = sess.SendDeviceStatus(ctx, timeout, s.snapshot())
	s.emit(CellularSendStatus{result{s.report(err)}})
	if err != nil {
		return fmt.Errorf("send status: %w", err)
	}

	if doc.Firmware.Version > s.cfg.FirmwareVersion && doc.Firmware.URL != "" {
		size, err := sess.DownloadFile(ctx, timeout, doc.Firmware.URL, FirmwareFile)
		s.emit(CellularDownloadFile{result: result{s.report(err)}, Target: UpdateFirmware, Size: size})
		if err != nil {
			return fmt.Errorf("download firmware %d: %w", doc.Firmware.Version, err)
		}
		upd.firmware = doc.Firmware.Version
	}

	if doc.Configuration.Version > s.cfg.ConfigVersion && doc.Configuration.URL != "" {
		size, err := sess.DownloadFile(ctx, timeout, doc.Configuration.URL, ConfigFile)
		s.emit(CellularDownloadFile{result: result{s.report(err)}, Target: UpdateConfig, Size: size})
		if err != nil {
			return fmt.Errorf("download configuration %d: %w", doc.Configuration.Version, err)
		}
		upd.config = doc.Configuration.Version
	}

	return nil
}

func (s *Scheduler) shipLog(ctx context.Context) error {
	f, err := s.deps.LogFile()
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	if int64(s.logPosition) == f.Size() {
		return nil
	}

	pos, err := s.deps.Session.SendLogging(ctx, s.cfg.Cellular.Timeout, f, s.logPosition)
	s.emit(CellularSendLogging{result: result{s.report(err)}, Position: pos})
	if err != nil {
		return fmt.Errorf("send logging from %d: %w", s.logPosition, err)
	}
	s.logPosition = pos
	return nil
}

// cellularFailed arms the retry timer for the current backoff and doubles
// it up to the ceiling.
func (s *Scheduler) cellularFailed() {
	c := &s.cell
	s.deps.Timers.Cancel(s.timers.cellMax)
	s.deps.Timers.Set(s.timers.cellRetry, timer.OneShot, c.backoff)

	if c.backoff >= s.maxBackoff {
		if !c.maxBackoffReached {
			c.maxBackoffReached = true
			s.emit(CellularMaxBackoffReached{Backoff: c.backoff})
		}
		return
	}

	if c.backoff > s.maxBackoff/2 {
		c.backoff = s.maxBackoff
		return
	}
	c.backoff *= 2
}

func (s *Scheduler) applyUpdate(upd pendingUpdate) {
	switch {
	case upd.firmware != 0:
		s.emit(ApplyFirmwareUpdate{Version: upd.firmware})
		level.Info(s.logger).Log("msg", "applying firmware update", "version", upd.firmware)
		if s.deps.Updater == nil {
			return
		}
		if err := s.deps.Updater.ApplyFirmwareUpdate(FirmwareFile, upd.firmware); err != nil {
			level.Error(s.logger).Log("msg", "firmware update failed", "version", upd.firmware, "error", err)
		}
	case upd.config != 0:
		s.emit(ApplyConfigUpdate{Version: upd.config})
		level.Info(s.logger).Log("msg", "applying configuration update", "version", upd.config)
		if s.deps.Updater != nil {
			s.deps.Updater.Reset()
		}
	}
}
