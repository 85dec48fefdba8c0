package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/scheduler"
	"github.com/akhenakh/tracklink/shadow"
	badgeridx "github.com/akhenakh/tracklink/storage/badger"
	"github.com/akhenakh/tracklink/timer"
)

const trackerConfig = `
device:
  name: tracker-1
  argos_id: 0x42
  config_version: %d
cellular:
  enabled: true
  min_updates: 1
  log_filter: 1
  timeout: 5s
cloud:
  url: %s
  secret: s3cr3t
log:
  path: tracker.log
`

func TestDeviceCellularCycle(t *testing.T) {
	dir, err := ioutil.TempDir("", "trackerd")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	opt := badger.DefaultOptions(filepath.Join(dir, "db"))
	opt.Logger = nil
	db, err := badger.Open(opt)
	require.NoError(t, err)
	defer db.Close()

	store := &badgeridx.Store{DB: db}
	srv := shadow.NewServer("test", log.NewNopLogger(), store, &badgeridx.Indexer{DB: db}, shadow.Config{Secret: []byte("s3cr3t")})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	cfgPath := filepath.Join(dir, "tracker.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(trackerConfig, 1, ts.URL)), 0o644))
	cfg, err := loadConfig(cfgPath)
	require.NoError(t, err)

	clock := &timer.ManualClock{T: 1600000000}
	ctx := context.Background()
	d, err := newDevice(ctx, cfg, deviceOptions{
		WorkDir:    dir,
		Clock:      clock,
		HTTPClient: ts.Client(),
		Start:      devstatus.Location{Latitude: 48.8, Longitude: 2.2},
		Walk:       100,
		Seed:       1,
	}, log.NewNopLogger())
	require.NoError(t, err)
	defer d.close()

	// first fix, the log is shipped then the connection is logged
	fix := d.newFix()
	require.Equal(t, clock.T, fix.Timestamp)
	require.Equal(t, actionNone, d.step(ctx))

	st := d.sched.State()
	require.Equal(t, clock.T, st.LastCellularConnection)

	stored, err := store.LogSize("tracker-1")
	require.NoError(t, err)
	require.Equal(t, st.LogPosition, stored)
	require.Equal(t, int64(stored)+5, logFile{d.log}.Size())

	b, err := store.Document("tracker-1")
	require.NoError(t, err)
	var doc shadow.Document
	require.NoError(t, json.Unmarshal(b, &doc))
	require.NotNil(t, doc.Reported)
	require.InDelta(t, fix.Latitude, doc.Reported.Location.Latitude, 1e-6)

	// announce a new configuration
	require.NoError(t, store.PutFile("cfg-2.yaml", []byte(fmt.Sprintf(trackerConfig, 1, ts.URL))))
	_, err = store.UpdateDocument("tracker-1", func(cur []byte) ([]byte, error) {
		var doc shadow.Document
		if err := json.Unmarshal(cur, &doc); err != nil {
			return nil, err
		}
		doc.Configuration = shadow.UpdateInfo{Version: 2, URL: "/v1/files/cfg-2.yaml"}
		return json.Marshal(doc)
	})
	require.NoError(t, err)

	clock.Add(60)
	d.newFix()
	require.Equal(t, actionReload, d.step(ctx))
	require.FileExists(t, filepath.Join(dir, scheduler.ConfigFile))

	ncfg, err := d.reloadConfig(cfgPath)
	require.NoError(t, err)
	require.Equal(t, uint32(2), ncfg.Device.ConfigVersion)

	saved, err := loadConfig(cfgPath)
	require.NoError(t, err)
	require.Equal(t, uint32(2), saved.Device.ConfigVersion)
	require.NoFileExists(t, filepath.Join(dir, scheduler.ConfigFile))
}

func TestUpdater(t *testing.T) {
	dir, err := ioutil.TempDir("", "updater")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	u := &updater{dir: dir}
	require.Error(t, u.ApplyFirmwareUpdate(scheduler.FirmwareFile, 8))
	require.Equal(t, actionNone, u.action)

	require.NoError(t, os.WriteFile(filepath.Join(dir, scheduler.FirmwareFile), []byte("FW"), 0o644))
	require.NoError(t, u.ApplyFirmwareUpdate(scheduler.FirmwareFile, 8))
	require.Equal(t, actionRestart, u.action)
	require.Equal(t, uint32(8), u.firmware)

	u.Handle(scheduler.ApplyConfigUpdate{Version: 4})
	u.Reset()
	require.Equal(t, actionReload, u.action)
	require.Equal(t, uint32(4), u.config)
}

func TestBattery(t *testing.T) {
	b := &battery{level: 1}
	lvl, mv, ok := b.Battery()
	require.True(t, ok)
	require.Equal(t, uint8(1), lvl)
	require.Equal(t, uint16(3309), mv)

	b.drain()
	b.drain()
	lvl, _, _ = b.Battery()
	require.Equal(t, uint8(0), lvl)
}
