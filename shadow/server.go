package shadow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/akhenakh/cayenne"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/akhenakh/tracklink/metrics"
	"github.com/akhenakh/tracklink/storage"
)

const (
	// OperatorSubject is the token subject allowed to manage updates.
	OperatorSubject = "operator"

	defaultMaxBody = 1 << 20
	historySize    = 100
)

type Config struct {
	// Secret verifies the bearer tokens.
	Secret []byte
	// MaxBody bounds the request bodies.
	MaxBody int64
}

// Server is the device shadow service.
type Server struct {
	appName string
	logger  log.Logger
	store   storage.Store
	geoDB   storage.Indexer
	config  Config
}

func NewServer(appName string, logger log.Logger, store storage.Store, geoDB storage.Indexer, cfg Config) *Server {
	if cfg.MaxBody == 0 {
		cfg.MaxBody = defaultMaxBody
	}
	return &Server{
		appName: appName,
		logger:  log.With(logger, "component", "shadow"),
		store:   store,
		geoDB:   geoDB,
		config:  cfg,
	}
}

// Router returns the routes of the service.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	dev := r.PathPrefix("/v1/devices/{name}").Subrouter()
	dev.Use(s.deviceAuth)
	dev.HandleFunc("/shadow", s.GetShadow).Methods(http.MethodGet)
	dev.HandleFunc("/status", s.PutStatus).Methods(http.MethodPut)
	dev.HandleFunc("/logs", s.PostLogs).Methods(http.MethodPost)

	r.HandleFunc("/v1/files/{file}", s.GetFile).Methods(http.MethodGet)

	op := r.PathPrefix("/v1").Subrouter()
	op.Use(s.operatorAuth)
	op.HandleFunc("/devices/{name}/desired", s.PutDesired).Methods(http.MethodPut)
	op.HandleFunc("/files/{file}", s.PutFile).Methods(http.MethodPut)

	r.HandleFunc("/api/devices", s.DevicesQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/data/{name}", s.DataQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/rect/{urlat}/{urlng}/{bllat}/{bllng}", s.RectQuery).Methods(http.MethodGet)
	return r
}

// startSpan continues the trace of the caller when there is one.
func (s *Server) startSpan(r *http.Request, operationName string) (context.Context, opentracing.Span) {
	wireContext, err := opentracing.GlobalTracer().Extract(
		opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(r.Header))
	if err != nil {
		level.Debug(s.logger).Log("msg", "can't find a span", "error", err)
	}

	serverSpan := opentracing.StartSpan(
		operationName,
		ext.RPCServerOption(wireContext))
	metrics.RequestCounter.WithLabelValues(operationName).Inc()
	return opentracing.ContextWithSpan(r.Context(), serverSpan), serverSpan
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// deviceAuth only lets a device access its own routes.
func (s *Server) deviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := ParseToken(s.config.Secret, bearer(r))
		if err != nil {
			level.Debug(s.logger).Log("msg", "rejected token", "error", err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if sub != mux.Vars(r)["name"] && sub != OperatorSubject {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) operatorAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := ParseToken(s.config.Secret, bearer(r))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if sub != OperatorSubject {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) fail(w http.ResponseWriter, code int, msg string, err error, kv ...interface{}) {
	if code >= http.StatusInternalServerError {
		metrics.ErrorCounter.Inc()
		level.Error(s.logger).Log(append([]interface{}{"msg", msg, "error", err}, kv...)...)
	} else {
		level.Debug(s.logger).Log(append([]interface{}{"msg", msg, "error", err}, kv...)...)
	}
	w.WriteHeader(code)
	w.Write([]byte(err.Error()))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "can't marshal json", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

// document returns the document of name, created when missing, with the
// read position of the stored log.
func (s *Server) document(name string, fn func(doc *Document)) (Document, error) {
	var doc Document
	size, err := s.store.LogSize(name)
	if err != nil {
		return doc, err
	}
	b, err := s.store.UpdateDocument(name, func(cur []byte) ([]byte, error) {
		doc = Document{DeviceName: name}
		if cur != nil {
			if err := json.Unmarshal(cur, &doc); err != nil {
				return nil, err
			}
		}
		doc.Logging.ReadPosition = size
		if fn != nil {
			fn(&doc)
		}
		return json.Marshal(doc)
	})
	if err != nil {
		return doc, err
	}
	return doc, json.Unmarshal(b, &doc)
}

// GetShadow returns the device document.
func (s *Server) GetShadow(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/v1/devices/shadow")
	defer span.Finish()

	name := mux.Vars(r)["name"]
	doc, err := s.document(name, nil)
	if err != nil {
		s.fail(w, storageStatus(err), "can't read shadow", err, "device", name)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// PutStatus records the reported status and indexes its location.
func (s *Server) PutStatus(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/v1/devices/status")
	defer span.Finish()

	name := mux.Vars(r)["name"]
	var st Status
	if err := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxBody)).Decode(&st); err != nil {
		s.fail(w, http.StatusBadRequest, "can't decode status", err, "device", name)
		return
	}

	if _, err := s.document(name, func(doc *Document) { doc.Reported = &st }); err != nil {
		s.fail(w, storageStatus(err), "can't store status", err, "device", name)
		return
	}

	if st.Location != nil {
		lpp := st.LPP
		if len(lpp) == 0 {
			lpp = EncodeLocation(*st.Location)
		}
		ts := time.Unix(int64(st.Timestamp), 0).UTC()
		if err := s.geoDB.Index(name, lpp, st.Location.Latitude, st.Location.Longitude, ts); err != nil {
			s.fail(w, storageStatus(err), "can't index status", err, "device", name)
			return
		}
		metrics.InsertCounter.Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogResponse is the answer to a log chunk.
type LogResponse struct {
	Size uint32 `json:"size"`
}

// PostLogs appends a log chunk at the offset query parameter.
func (s *Server) PostLogs(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/v1/devices/logs")
	defer span.Finish()

	name := mux.Vars(r)["name"]
	offset, err := strconv.ParseUint(r.URL.Query().Get("offset"), 10, 32)
	if err != nil {
		s.fail(w, http.StatusBadRequest, "invalid offset", err, "device", name)
		return
	}
	chunk, err := ioutil.ReadAll(io.LimitReader(r.Body, s.config.MaxBody))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "can't read chunk", err, "device", name)
		return
	}

	size, err := s.store.WriteLog(name, uint32(offset), chunk)
	if errors.Is(err, storage.ErrLogOffset) {
		cur, _ := s.store.LogSize(name)
		level.Info(s.logger).Log("msg", "log chunk out of order", "device", name, "offset", offset, "size", cur)
		s.writeJSON(w, http.StatusConflict, LogResponse{Size: cur})
		return
	}
	if err != nil {
		s.fail(w, storageStatus(err), "can't store log", err, "device", name)
		return
	}
	metrics.LogBytesCounter.Add(float64(len(chunk)))
	s.writeJSON(w, http.StatusOK, LogResponse{Size: size})
}

// Desired is the update a device should install.
type Desired struct {
	Firmware      *UpdateInfo `json:"firmware,omitempty"`
	Configuration *UpdateInfo `json:"configuration,omitempty"`
}

// PutDesired sets the firmware or configuration a device should run.
func (s *Server) PutDesired(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/v1/devices/desired")
	defer span.Finish()

	name := mux.Vars(r)["name"]
	var d Desired
	if err := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxBody)).Decode(&d); err != nil {
		s.fail(w, http.StatusBadRequest, "can't decode desired", err, "device", name)
		return
	}
	doc, err := s.document(name, func(doc *Document) {
		if d.Firmware != nil {
			doc.Firmware = *d.Firmware
		}
		if d.Configuration != nil {
			doc.Configuration = *d.Configuration
		}
	})
	if err != nil {
		s.fail(w, storageStatus(err), "can't store desired", err, "device", name)
		return
	}
	level.Info(s.logger).Log(
		"msg", "desired versions updated",
		"device", name,
		"firmware", doc.Firmware.Version,
		"configuration", doc.Configuration.Version,
	)
	s.writeJSON(w, http.StatusOK, doc)
}

// PutFile uploads an update file.
func (s *Server) PutFile(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/v1/files/put")
	defer span.Finish()

	name := mux.Vars(r)["file"]
	b, err := ioutil.ReadAll(io.LimitReader(r.Body, s.config.MaxBody))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "can't read file", err, "file", name)
		return
	}
	if err := s.store.PutFile(name, b); err != nil {
		s.fail(w, storageStatus(err), "can't store file", err, "file", name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFile downloads an update file.
func (s *Server) GetFile(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/v1/files/get")
	defer span.Finish()

	name := mux.Vars(r)["file"]
	b, err := s.store.File(name)
	if err != nil {
		s.fail(w, storageStatus(err), "can't read file", err, "file", name)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Write(b)
}

// DevicesQuery lists the devices having reported a location.
func (s *Server) DevicesQuery(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/api/devices")
	defer span.Finish()

	devices, err := s.geoDB.Devices()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "can't list devices", err)
		return
	}
	if devices == nil {
		devices = []string{}
	}
	s.writeJSON(w, http.StatusOK, devices)
}

// DataQuery returns the location history of a device.
func (s *Server) DataQuery(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/api/data")
	defer span.Finish()

	name := mux.Vars(r)["name"]
	dps, err := s.geoDB.History(name, historySize)
	if err != nil {
		s.fail(w, http.StatusBadRequest, "can't query history", err, "device", name)
		return
	}

	res := make([]map[string]interface{}, len(dps))
	for i, dp := range dps {
		dec := cayenne.NewDecoder(bytes.NewBuffer(dp.Value))
		msg, err := dec.DecodeUplink()
		if err != nil {
			s.fail(w, http.StatusInternalServerError, "can't decode stored payload", err, "device", name)
			return
		}
		jsresp := make(map[string]interface{})
		for k, v := range msg.Values() {
			jsresp[k] = v
		}
		jsresp["device"] = dp.Device
		jsresp["time"] = dp.Time

		res[i] = jsresp
	}
	s.writeJSON(w, http.StatusOK, res)
}

// RectQuery returns the devices last seen in a rect as GeoJSON.
func (s *Server) RectQuery(w http.ResponseWriter, r *http.Request) {
	_, span := s.startSpan(r, "/api/rect")
	defer span.Finish()

	vars := mux.Vars(r)
	var coords [4]float64
	for i, k := range []string{"urlat", "urlng", "bllat", "bllng"} {
		v, err := strconv.ParseFloat(vars[k], 64)
		if err != nil {
			s.fail(w, http.StatusBadRequest, "invalid coordinate", err, "param", k)
			return
		}
		coords[i] = v
	}

	dpts, err := s.geoDB.RectSearch(coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "can't search rect", err)
		return
	}
	fc := geojson.FeatureCollection{}
	for _, p := range dpts {
		f := &geojson.Feature{}
		f.Properties = make(map[string]interface{})
		f.Properties["device"] = p.Device
		f.Properties["ts"] = p.Time

		f.Geometry = geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat})
		fc.Features = append(fc.Features, f)
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "can't marshal geojson", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

func storageStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
