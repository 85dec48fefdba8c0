package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/tracklink/config"
	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/radio/cellular"
	"github.com/akhenakh/tracklink/radio/satellite"
	"github.com/akhenakh/tracklink/scheduler"
	"github.com/akhenakh/tracklink/telemetry"
	"github.com/akhenakh/tracklink/timer"
)

const (
	defaultLogName = "tracker.log"
	metersPerDeg   = 111320.0
)

// action is what the main loop does once a tick returns.
type action int

const (
	actionNone action = iota
	actionReload
	actionRestart
)

// updater records the update requested by the scheduler.
type updater struct {
	dir      string
	action   action
	firmware uint32
	config   uint32
}

func (u *updater) ApplyFirmwareUpdate(name string, version uint32) error {
	if _, err := os.Stat(filepath.Join(u.dir, name)); err != nil {
		return err
	}
	u.action = actionRestart
	u.firmware = version
	return nil
}

func (u *updater) Reset() { u.action = actionReload }

// Handle keeps the version of the configuration about to be applied.
func (u *updater) Handle(e scheduler.Event) {
	if ev, ok := e.(scheduler.ApplyConfigUpdate); ok {
		u.config = ev.Version
	}
}

// battery is a slowly draining simulated battery.
type battery struct {
	level uint8
}

func (b *battery) Battery() (uint8, uint16, bool) {
	return b.level, 3300 + uint16(b.level)*9, true
}

func (b *battery) drain() {
	if b.level > 0 {
		b.level--
	}
}

// logFile is the device log, opened for append.
type logFile struct {
	*os.File
}

func (f logFile) Size() int64 {
	fi, err := f.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}

// recorder logs the successful connections in the device log.
type recorder struct {
	logger log.Logger
	clock  timer.Clock
	w      *logship.Writer
}

func (r *recorder) Handle(e scheduler.Event) {
	var tag logship.Tag
	switch e.(type) {
	case scheduler.CellularSendStatus:
		tag = logship.TagCellularConnection
	case scheduler.SatelliteSendStatus:
		tag = logship.TagSatelliteTx
	default:
		return
	}
	if !e.Report().IsZero() {
		return
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], r.clock.Now())
	if err := r.w.Write(tag, b[:]); err != nil {
		level.Warn(r.logger).Log("msg", "can't log connection", "error", err)
	}
}

type deviceOptions struct {
	// WorkDir holds the log and the downloaded files.
	WorkDir string
	// ArgosAddr relays the satellite frames to a ground station, a stub
	// driver is used when empty.
	ArgosAddr string
	// Publisher receives the events when set.
	Publisher  telemetry.Publisher
	Clock      timer.Clock
	HTTPClient *http.Client
	// Coverage reports the cellular coverage, nil means always.
	Coverage func() bool
	// Start is the first simulated position, Walk the largest move in
	// meters between two fixes.
	Start devstatus.Location
	Walk  float64
	Seed  int64
}

// device is the simulated tracker.
type device struct {
	cfg     *config.Config
	opts    deviceOptions
	logger  log.Logger
	wheel   *timer.Wheel
	sched   *scheduler.Scheduler
	log     *os.File
	logw    *logship.Writer
	battery *battery
	updater *updater
	rand    *rand.Rand
	fix     devstatus.Location
}

func logPath(cfg *config.Config, workDir string) string {
	p := cfg.Log.Path
	if p == "" {
		p = defaultLogName
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, p)
}

// newDevice wires the radios and the scheduler, cfg MUST be validated and
// normalized.
func newDevice(ctx context.Context, cfg *config.Config, opts deviceOptions, logger log.Logger) (*device, error) {
	if opts.Clock == nil {
		opts.Clock = timer.SystemClock{}
	}
	logger = log.With(logger, "device", cfg.Device.Name)

	d := &device{
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		battery: &battery{level: 100},
		updater: &updater{dir: opts.WorkDir},
		rand:    rand.New(rand.NewSource(opts.Seed)),
		fix:     opts.Start,
	}

	f, err := os.OpenFile(logPath(cfg, opts.WorkDir), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	d.log = f
	d.logw = logship.NewWriter(f)
	if (logFile{f}).Size() == 0 {
		if err := d.logw.Event(logship.TagLogStart); err != nil {
			f.Close()
			return nil, err
		}
	}

	mux := &radio.Mux{}
	if cfg.Cellular.Enabled {
		modem := &cellular.StubModem{
			Network:  radio.NetworkInfo{Technology: "LTE-M", Operator: "simulated", MCC: 208, MNC: 1, SignalDBm: -85},
			Coverage: opts.Coverage,
		}
		sess, err := cellular.New(cellular.Config{
			URL:           cfg.Cloud.URL,
			Device:        cfg.Device.Name,
			Secret:        []byte(cfg.Cloud.Secret),
			TokenTTL:      cfg.Cloud.TokenTTL,
			LogBufferSize: cfg.Log.BufferSize,
			DownloadDir:   opts.WorkDir,
			Clock:         opts.Clock,
		}, modem, opts.HTTPClient, logger)
		if err != nil {
			f.Close()
			return nil, err
		}
		mux.Cellular = sess
	}
	if cfg.Satellite.Enabled {
		var drv satellite.Driver = &satellite.StubDriver{}
		if opts.ArgosAddr != "" {
			drv = &satellite.UDPDriver{Addr: opts.ArgosAddr}
		}
		sess, err := satellite.New(cfg.Device.ArgosID, drv, logger)
		if err != nil {
			f.Close()
			return nil, err
		}
		mux.Satellite = sess
	}

	sc, err := cfg.SchedulerConfig()
	if err != nil {
		f.Close()
		return nil, err
	}

	var natsSink scheduler.EventSink
	if opts.Publisher != nil {
		natsSink = telemetry.NewNATSSink(cfg.Device.Name, opts.Publisher, logger)
	}
	sink := telemetry.Multi(
		telemetry.NewLogSink(logger),
		telemetry.MetricsSink{},
		&recorder{logger: logger, clock: opts.Clock, w: d.logw},
		d.updater,
		natsSink,
	)

	d.wheel = timer.NewWheel(opts.Clock)
	d.sched, err = scheduler.New(sc, scheduler.Deps{
		Session: mux,
		Timers:  d.wheel,
		Clock:   opts.Clock,
		Updater: d.updater,
		Battery: d.battery,
		LogFile: func() (logship.File, error) { return logFile{d.log}, nil },
		Sink:    sink,
		Logger:  logger,
		Context: ctx,
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// step fires the due timers and runs at most one connection.
func (d *device) step(ctx context.Context) action {
	d.wheel.Advance()
	d.sched.Tick(ctx)
	return d.updater.action
}

// newFix moves the simulated tracker, logs and reports the fix.
func (d *device) newFix() devstatus.Location {
	if d.opts.Walk > 0 {
		d.fix.Latitude += (d.rand.Float64()*2 - 1) * d.opts.Walk / metersPerDeg
		d.fix.Longitude += (d.rand.Float64()*2 - 1) * d.opts.Walk / (metersPerDeg * math.Cos(d.fix.Latitude*math.Pi/180))
		d.fix.Latitude = math.Max(-89.9, math.Min(89.9, d.fix.Latitude))
		d.fix.Longitude = math.Remainder(d.fix.Longitude, 360)
	}
	now := d.opts.Clock.Now()
	d.fix.Timestamp = now
	d.battery.drain()
	lvl, mv, _ := d.battery.Battery()

	for _, err := range []error{
		d.logw.Timestamp(now),
		d.logw.GPSPosition(now%604800*1000, d.fix.Longitude, d.fix.Latitude, 0),
		d.logw.BatteryLevel(lvl),
		d.logw.BatteryVoltage(mv),
	} {
		if err != nil {
			level.Warn(d.logger).Log("msg", "can't write log", "error", err)
			break
		}
	}

	if err := d.sched.NewPosition(d.fix); err != nil {
		level.Warn(d.logger).Log("msg", "position not scheduled", "error", err)
	}
	return d.fix
}

func (d *device) close() {
	d.sched.Close()
	d.log.Close()
}

// reloadConfig installs the downloaded configuration at path, stamped with
// the version announced by the shadow.
func (d *device) reloadConfig(path string) (*config.Config, error) {
	downloaded := filepath.Join(d.opts.WorkDir, scheduler.ConfigFile)
	cfg, err := config.Load(downloaded)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	if d.updater.config > cfg.Device.ConfigVersion {
		cfg.Device.ConfigVersion = d.updater.config
	}
	if err := config.Save(path, cfg); err != nil {
		return nil, err
	}
	os.Remove(downloaded)
	return cfg, nil
}
