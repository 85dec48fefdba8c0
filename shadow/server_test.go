package shadow

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/akhenakh/tracklink/devstatus"
	bstore "github.com/akhenakh/tracklink/storage/badger"
)

var testSecret = []byte("shadow-secret")

func openServer(t *testing.T) (*httptest.Server, func()) {
	dir, err := ioutil.TempDir("", "shadow")
	require.NoError(t, err)

	opt := badger.DefaultOptions(dir)
	opt.Logger = nil
	db, err := badger.Open(opt)
	require.NoError(t, err)

	s := NewServer("test", log.NewNopLogger(), &bstore.Store{DB: db}, &bstore.Indexer{DB: db}, Config{Secret: testSecret})
	ts := httptest.NewServer(s.Router())

	return ts, func() {
		ts.Close()
		db.Close()
		os.RemoveAll(dir)
	}
}

func call(t *testing.T, method, url, subject string, body []byte) *http.Response {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if subject != "" {
		tok, err := IssueToken(testSecret, subject, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAuth(t *testing.T) {
	ts, clean := openServer(t)
	defer clean()

	u := ts.URL + "/v1/devices/tracker-1/shadow"

	resp := call(t, http.MethodGet, u, "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, http.MethodGet, u, "tracker-2", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, http.MethodPut, ts.URL+"/v1/devices/tracker-1/desired", "tracker-1", []byte(`{}`))
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, http.MethodGet, u, "tracker-1", nil)
	var doc Document
	decode(t, resp, &doc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "tracker-1", doc.DeviceName)
	require.Nil(t, doc.Reported)
}

func TestPutStatus(t *testing.T) {
	ts, clean := openServer(t)
	defer clean()

	loc := devstatus.Location{Latitude: 48.8, Longitude: 2.2, Timestamp: 1600000000}
	var s devstatus.DeviceStatus
	s.Location = loc
	s.Set(devstatus.FieldLocation)
	s.BatteryLevel = 80
	s.Set(devstatus.FieldBatteryLevel)
	b, err := json.Marshal(NewStatus(s, 1600000010))
	require.NoError(t, err)

	resp := call(t, http.MethodPut, ts.URL+"/v1/devices/tracker-1/status", "tracker-1", b)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, http.MethodPut, ts.URL+"/v1/devices/tracker-1/status", "tracker-1", []byte("{"))
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var doc Document
	decode(t, call(t, http.MethodGet, ts.URL+"/v1/devices/tracker-1/shadow", "tracker-1", nil), &doc)
	require.NotNil(t, doc.Reported)
	require.Equal(t, uint32(1600000010), doc.Reported.Timestamp)
	require.Equal(t, uint8(80), *doc.Reported.BatteryLevel)

	var devices []string
	decode(t, call(t, http.MethodGet, ts.URL+"/api/devices", "", nil), &devices)
	require.Equal(t, []string{"tracker-1"}, devices)

	var data []map[string]interface{}
	decode(t, call(t, http.MethodGet, ts.URL+"/api/data/tracker-1", "", nil), &data)
	require.Len(t, data, 1)
	require.Equal(t, "tracker-1", data[0]["device"])

	var fc struct {
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	decode(t, call(t, http.MethodGet, ts.URL+"/api/rect/48.83/2.56/48.62/2.13", "", nil), &fc)
	require.Len(t, fc.Features, 1)
	require.Equal(t, "tracker-1", fc.Features[0].Properties["device"])

	resp = call(t, http.MethodGet, ts.URL+"/api/rect/48.83/x/48.62/2.13", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostLogs(t *testing.T) {
	ts, clean := openServer(t)
	defer clean()

	u := ts.URL + "/v1/devices/tracker-1/logs?offset="

	var lr LogResponse
	resp := call(t, http.MethodPost, u+"0", "tracker-1", []byte("abcd"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &lr)
	require.Equal(t, uint32(4), lr.Size)

	resp = call(t, http.MethodPost, u+"10", "tracker-1", []byte("zz"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	decode(t, resp, &lr)
	require.Equal(t, uint32(4), lr.Size)

	resp = call(t, http.MethodPost, u+"abc", "tracker-1", []byte("zz"))
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var doc Document
	decode(t, call(t, http.MethodGet, ts.URL+"/v1/devices/tracker-1/shadow", "tracker-1", nil), &doc)
	require.Equal(t, uint32(4), doc.Logging.ReadPosition)
}

func TestDesiredAndFiles(t *testing.T) {
	ts, clean := openServer(t)
	defer clean()

	resp := call(t, http.MethodGet, ts.URL+"/v1/files/fw-7.bin", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, http.MethodPut, ts.URL+"/v1/files/fw-7.bin", "tracker-1", []byte("FIRMWARE"))
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, http.MethodPut, ts.URL+"/v1/files/fw-7.bin", OperatorSubject, []byte("FIRMWARE"))
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, http.MethodGet, ts.URL+"/v1/files/fw-7.bin", "", nil)
	b, err := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, "FIRMWARE", string(b))

	d, err := json.Marshal(Desired{Firmware: &UpdateInfo{Version: 7, URL: "/v1/files/fw-7.bin"}})
	require.NoError(t, err)
	resp = call(t, http.MethodPut, ts.URL+"/v1/devices/tracker-1/desired", OperatorSubject, d)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc Document
	decode(t, resp, &doc)
	require.Equal(t, uint32(7), doc.Firmware.Version)
	require.Equal(t, uint32(0), doc.Configuration.Version)

	decode(t, call(t, http.MethodGet, ts.URL+"/v1/devices/tracker-1/shadow", "tracker-1", nil), &doc)
	require.Equal(t, "/v1/files/fw-7.bin", doc.Firmware.URL)
}
