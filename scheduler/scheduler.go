// Package scheduler decides when the tracker powers its radios.
//
// Tick is expected to be called periodically and NewPosition on every GPS
// fix, both from the same goroutine driving the timers. Each Tick performs at
// most one complete synchronous connection on the radio whose conditions are
// met, the cellular radio wins ties on priority.
package scheduler

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/prepass"
	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/timer"
)

const (
	// BackoffSeed is the first cellular retry delay in seconds.
	BackoffSeed = 30

	// RandMax is the largest value returned by Rand.
	RandMax = math.MaxInt32

	// FirmwareFile and ConfigFile are the names downloads are stored under.
	FirmwareFile = "firmware.bin"
	ConfigFile   = "configuration.yaml"

	defaultCellularTimeout  = 3 * time.Minute
	defaultSatelliteTimeout = time.Minute
)

var (
	ErrMissingDependency = errors.New("missing scheduler dependency")
	ErrPrediction        = errors.New("satellite pass prediction failed")
)

// PredictionError wraps the predictor failure, it matches ErrPrediction.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string { return ErrPrediction.Error() + ": " + e.Err.Error() }
func (e *PredictionError) Unwrap() error { return e.Err }
func (e *PredictionError) Is(target error) bool {
	return target == ErrPrediction
}

// TestPayload is sent instead of the status in satellite test mode.
var TestPayload = []byte{0x54, 0x45, 0x53, 0x54, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A}

type CellularConfig struct {
	Enabled bool
	// MinInterval is the minimum number of seconds between two connections.
	MinInterval uint32
	// MaxInterval forces a connection after that many seconds, 0 disables it.
	MaxInterval uint32
	// MinUpdates is the number of GPS fixes triggering a connection.
	MinUpdates uint32
	// MaxBackoffInterval caps the retry delay.
	MaxBackoffInterval uint32
	Priority           uint8
	// LogFilter enables log shipping when not zero.
	LogFilter uint32
	// Timeout bounds each session operation.
	Timeout time.Duration
}

type SatelliteConfig struct {
	Enabled     bool
	MinInterval uint32
	MaxInterval uint32
	MinUpdates  uint32
	Priority    uint8
	// RandomizedTxWindow spreads the transmission around the predicted pass, seconds.
	RandomizedTxWindow uint32
	// TurnOnLatency is the time the modem needs before transmitting, seconds.
	TurnOnLatency uint32
	TestMode      bool
	Timeout       time.Duration
	Bulletins     prepass.Table
	Prepass       prepass.Config
}

type Config struct {
	// installed versions
	FirmwareVersion uint32
	ConfigVersion   uint32

	Cellular  CellularConfig
	Satellite SatelliteConfig
}

// Timers is the software timer subsystem.
type Timers interface {
	Init(cb timer.Callback) (timer.Handle, error)
	Set(h timer.Handle, mode timer.Mode, seconds uint32)
	Cancel(h timer.Handle)
	Running(h timer.Handle) bool
}

// Clock returns the RTC time in Unix seconds.
type Clock interface {
	Now() uint32
}

// Updater applies downloaded updates.
type Updater interface {
	// ApplyFirmwareUpdate installs the firmware stored as name and restarts.
	ApplyFirmwareUpdate(name string, version uint32) error
	// Reset restarts the device, reloading its configuration.
	Reset()
}

// BatterySource reads the battery.
type BatterySource interface {
	Battery() (level uint8, millivolts uint16, ok bool)
}

// PredictFunc computes the next satellite pass midpoint.
type PredictFunc func(bulletins []prepass.Bulletin, cfg prepass.Config, lon, lat float64, now uint32) (uint32, error)

// Rand returns non negative pseudo random numbers up to RandMax.
type Rand interface {
	Int31() int32
}

type Deps struct {
	Session radio.Session
	Timers  Timers
	Clock   Clock

	Updater Updater
	Battery BatterySource
	// LogFile opens the log to ship.
	LogFile func() (logship.File, error)
	Sink    EventSink
	Predict PredictFunc
	Rand    Rand
	Logger  log.Logger
	// Context is used for the connections started from a timer.
	Context context.Context
}

type cellularState struct {
	enabled            bool
	isPending          bool
	retryRequested     bool
	minIntervalReached bool
	maxIntervalReached bool
	maxBackoffReached  bool
	updates            uint32
	backoff            uint32
	lastSuccess        uint32
}

type satelliteState struct {
	enabled            bool
	transmitRequested  bool
	minIntervalReached bool
	maxIntervalReached bool
	ignorePrepass      bool
	prepassReached     bool
	updates            uint32
	lastTx             uint32
	nextTx             uint32
}

type timerSet struct {
	cellMin, cellMax, cellRetry timer.Handle
	satMin, satMax, satPrepass timer.Handle
}

// State is a read only view of the scheduler.
type State struct {
	CellularBackoff           uint32
	CellularRetryRequested    bool
	CellularMaxBackoffReached bool
	CellularUpdates           uint32
	SatelliteUpdates          uint32
	LastCellularConnection    uint32
	LastSatelliteTx           uint32
	NextSatelliteTx           uint32
	PrepassArmed              bool
	LogPosition               uint32
}

type Scheduler struct {
	cfg        Config
	deps       Deps
	logger     log.Logger
	maxBackoff uint32

	cell   cellularState
	sat    satelliteState
	timers timerSet

	lastFix     devstatus.Location
	hasFix      bool
	logPosition uint32
	closed      bool
}

// New validates the configuration, allocates the timers and arms the
// interval timers of the enabled radios.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Session == nil || deps.Timers == nil || deps.Clock == nil {
		return nil, ErrMissingDependency
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNopLogger()
	}
	if deps.Predict == nil {
		deps.Predict = prepass.Predict
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if cfg.Cellular.Timeout == 0 {
		cfg.Cellular.Timeout = defaultCellularTimeout
	}
	if cfg.Satellite.Timeout == 0 {
		cfg.Satellite.Timeout = defaultSatelliteTimeout
	}

	s := &Scheduler{
		cfg:        cfg,
		deps:       deps,
		logger:     log.With(deps.Logger, "component", "scheduler"),
		maxBackoff: cfg.Cellular.MaxBackoffInterval,
	}
	if s.maxBackoff < BackoffSeed {
		s.maxBackoff = BackoffSeed
	}

	handles := []struct {
		h  *timer.Handle
		cb timer.Callback
	}{
		{&s.timers.cellMin, func() { s.cell.minIntervalReached = true }},
		{&s.timers.cellMax, func() { s.cell.maxIntervalReached = true }},
		{&s.timers.cellRetry, func() { s.cell.retryRequested = true }},
		{&s.timers.satMin, func() { s.sat.minIntervalReached = true }},
		{&s.timers.satMax, func() { s.sat.maxIntervalReached = true }},
		{&s.timers.satPrepass, s.onPrepass},
	}
	for _, t := range handles {
		h, err := deps.Timers.Init(t.cb)
		if err != nil {
			return nil, err
		}
		*t.h = h
	}

	s.cell.enabled = cfg.Cellular.Enabled
	s.cell.backoff = BackoffSeed
	s.sat.enabled = cfg.Satellite.Enabled
	s.sat.ignorePrepass = cfg.Satellite.Bulletins.Len() == 0

	if s.cell.enabled {
		s.resetCellularIntervals()
	}
	if s.sat.enabled {
		s.resetSatelliteIntervals()
	}

	level.Info(s.logger).Log(
		"msg", "scheduler started",
		"cellular", s.cell.enabled,
		"satellite", s.sat.enabled,
		"ignore_prepass", s.sat.ignorePrepass,
	)
	return s, nil
}

// Tick evaluates both radios and performs at most one connection.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.closed {
		return
	}
	cell := s.cellularReady()
	sat := s.satelliteReady()

	switch {
	case cell && sat:
		if s.cfg.Cellular.Priority >= s.cfg.Satellite.Priority {
			s.cellularAttempt(ctx)
		} else {
			s.satelliteAttempt(ctx)
		}
	case cell:
		s.cellularAttempt(ctx)
	case sat:
		s.satelliteAttempt(ctx)
	}
}

// NewPosition records a GPS fix and plans the next satellite pass when
// none is pending.
func (s *Scheduler) NewPosition(fix devstatus.Location) error {
	if s.closed || (!s.cell.enabled && !s.sat.enabled) {
		return nil
	}
	if s.cell.enabled {
		s.cell.updates++
	}
	if s.sat.enabled {
		s.sat.updates++
	}
	s.lastFix = fix
	s.hasFix = true

	if !s.sat.enabled || s.sat.ignorePrepass || s.deps.Timers.Running(s.timers.satPrepass) {
		return nil
	}
	return s.schedulePrepass(fix)
}

// TriggerCellular requests a cellular connection on the next tick, bypassing
// a pending retry delay.
func (s *Scheduler) TriggerCellular() {
	if s.closed || !s.cell.enabled {
		return
	}
	s.deps.Timers.Cancel(s.timers.cellRetry)
	s.cell.retryRequested = true
}

// TriggerSatellite requests a satellite transmission, still subject to the
// minimum interval and the pass window.
func (s *Scheduler) TriggerSatellite() {
	if s.closed || !s.sat.enabled {
		return
	}
	s.sat.transmitRequested = true
}

// Close cancels all timers, the scheduler does nothing afterwards.
func (s *Scheduler) Close() {
	if s.closed {
		return
	}
	for _, h := range []timer.Handle{
		s.timers.cellMin, s.timers.cellMax, s.timers.cellRetry,
		s.timers.satMin, s.timers.satMax, s.timers.satPrepass,
	} {
		s.deps.Timers.Cancel(h)
	}
	s.closed = true
	level.Info(s.logger).Log("msg", "scheduler stopped")
}

func (s *Scheduler) State() State {
	return State{
		CellularBackoff:           s.cell.backoff,
		CellularRetryRequested:    s.cell.retryRequested,
		CellularMaxBackoffReached: s.cell.maxBackoffReached,
		CellularUpdates:           s.cell.updates,
		SatelliteUpdates:          s.sat.updates,
		LastCellularConnection:    s.cell.lastSuccess,
		LastSatelliteTx:           s.sat.lastTx,
		NextSatelliteTx:           s.sat.nextTx,
		PrepassArmed:              s.deps.Timers.Running(s.timers.satPrepass),
		LogPosition:               s.logPosition,
	}
}

func (s *Scheduler) cellularReady() bool {
	c := &s.cell
	if !c.enabled || !c.minIntervalReached || c.isPending {
		return false
	}
	if c.retryRequested {
		return true
	}
	if s.deps.Timers.Running(s.timers.cellRetry) {
		return false
	}
	return c.updates >= s.cfg.Cellular.MinUpdates || c.maxIntervalReached
}

func (s *Scheduler) satelliteReady() bool {
	st := &s.sat
	if !st.enabled || !st.minIntervalReached {
		return false
	}
	if !st.ignorePrepass && !st.prepassReached {
		return false
	}
	return st.updates >= s.cfg.Satellite.MinUpdates || st.maxIntervalReached || st.transmitRequested
}

func (s *Scheduler) resetCellularIntervals() {
	c := &s.cell
	if s.cfg.Cellular.MinInterval == 0 {
		c.minIntervalReached = true
	} else {
		c.minIntervalReached = false
		s.deps.Timers.Set(s.timers.cellMin, timer.OneShot, s.cfg.Cellular.MinInterval)
	}
	c.maxIntervalReached = false
	if s.cfg.Cellular.MaxInterval > 0 {
		s.deps.Timers.Set(s.timers.cellMax, timer.OneShot, s.cfg.Cellular.MaxInterval)
	}
}

func (s *Scheduler) resetSatelliteIntervals() {
	st := &s.sat
	if s.cfg.Satellite.MinInterval == 0 {
		st.minIntervalReached = true
	} else {
		st.minIntervalReached = false
		s.deps.Timers.Set(s.timers.satMin, timer.OneShot, s.cfg.Satellite.MinInterval)
	}
	s.resetSatelliteMaxInterval()
}

func (s *Scheduler) resetSatelliteMaxInterval() {
	s.sat.maxIntervalReached = false
	if s.cfg.Satellite.MaxInterval > 0 {
		s.deps.Timers.Set(s.timers.satMax, timer.OneShot, s.cfg.Satellite.MaxInterval)
	}
}

func (s *Scheduler) emit(e Event) {
	if s.deps.Sink == nil {
		return
	}
	s.deps.Sink.Handle(e)
}

// report returns the session error report when err is set.
func (s *Scheduler) report(err error) radio.ErrorReport {
	if err == nil {
		return radio.ErrorReport{}
	}
	return s.deps.Session.ErrorReport()
}

// snapshot gathers the status sent over both radios.
func (s *Scheduler) snapshot() devstatus.DeviceStatus {
	var st devstatus.DeviceStatus

	st.LogPosition = s.logPosition
	st.Set(devstatus.FieldLogPosition)

	if s.hasFix {
		st.Location = s.lastFix
		st.Set(devstatus.FieldLocation)
	}
	if s.deps.Battery != nil {
		if lvl, mv, ok := s.deps.Battery.Battery(); ok {
			st.BatteryLevel = lvl
			st.BatteryVoltage = mv
			st.Set(devstatus.FieldBatteryLevel)
			st.Set(devstatus.FieldBatteryVoltage)
		}
	}
	if s.cell.lastSuccess != 0 {
		st.LastCellularConnection = s.cell.lastSuccess
		st.Set(devstatus.FieldLastCellularConnection)
	}
	if s.sat.lastTx != 0 {
		st.LastSatelliteTx = s.sat.lastTx
		st.Set(devstatus.FieldLastSatelliteTx)
	}
	if s.sat.nextTx != 0 {
		st.NextSatelliteTx = s.sat.nextTx
		st.Set(devstatus.FieldNextSatelliteTx)
	}
	st.ConfigVersion = s.cfg.ConfigVersion
	st.Set(devstatus.FieldConfigVersion)
	st.FirmwareVersion = s.cfg.FirmwareVersion
	st.Set(devstatus.FieldFirmwareVersion)

	return st
}
