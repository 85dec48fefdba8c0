// Package cellular is the cellular session: it talks HTTPS to the shadow
// service with a device token.
package cellular

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/radio"
	"github.com/akhenakh/tracklink/shadow"
	"github.com/akhenakh/tracklink/timer"
)

const (
	defaultTokenTTL = time.Hour

	contentJSON   = "application/json"
	contentBinary = "application/octet-stream"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrHTTPStatus   = errors.New("unexpected http status")
)

type Config struct {
	// URL is the shadow service base URL.
	URL    string
	Device string
	// Secret signs the device tokens.
	Secret   []byte
	TokenTTL time.Duration
	// LogBufferSize is the log shipping working buffer.
	LogBufferSize int
	// DownloadDir receives the downloaded files.
	DownloadDir string
	// Clock stamps the device status, defaults to the system clock.
	Clock timer.Clock
}

// Session implements radio.Session on a cellular modem.
type Session struct {
	cfg    Config
	base   *url.URL
	modem  Modem
	client *http.Client
	logger log.Logger
	ship   *logship.Shipper

	powered   bool
	connected bool
	token     string
	tokenExp  time.Time
	report    radio.ErrorReport
	info      radio.NetworkInfo
}

func New(cfg Config, modem Modem, client *http.Client, logger log.Logger) (*Session, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid shadow service url: %w", err)
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.LogBufferSize == 0 {
		cfg.LogBufferSize = logship.DefaultBufferSize
	}
	if cfg.Clock == nil {
		cfg.Clock = timer.SystemClock{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	s := &Session{
		cfg:    cfg,
		base:   base,
		modem:  modem,
		client: client,
		logger: log.With(logger, "component", "cellular"),
	}
	s.ship, err = logship.NewShipper(logship.UploaderFunc(s.upload), cfg.LogBufferSize)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) PowerOn(ctx context.Context, t radio.Type) error {
	if t != radio.Cellular {
		return s.fail(radio.CodePowerOn, radio.ErrNotSupported)
	}
	s.report = radio.ErrorReport{}
	s.info = radio.NetworkInfo{}
	if err := s.modem.PowerOn(ctx); err != nil {
		return s.fail(radio.CodePowerOn, err)
	}
	s.powered = true
	return nil
}

func (s *Session) PowerOff(ctx context.Context) error {
	s.connected = false
	s.powered = false
	if err := s.modem.PowerOff(ctx); err != nil {
		return s.fail(radio.CodePowerOff, err)
	}
	return nil
}

func (s *Session) Connect(ctx context.Context, timeout time.Duration) error {
	if !s.powered {
		return s.fail(radio.CodeConnect, radio.ErrNotPowered)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := s.modem.Attach(ctx)
	s.info = info
	if err != nil {
		return s.fail(radio.CodeConnect, err)
	}
	s.connected = true
	level.Debug(s.logger).Log("msg", "attached", "operator", info.Operator, "technology", info.Technology)
	return nil
}

func (s *Session) FetchDeviceShadow(ctx context.Context, timeout time.Duration) (shadow.Document, error) {
	var doc shadow.Document
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.do(ctx, http.MethodGet, s.devicePath("shadow"), "", nil, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (s *Session) SendDeviceStatus(ctx context.Context, timeout time.Duration, st devstatus.DeviceStatus) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b, err := json.Marshal(shadow.NewStatus(st, s.cfg.Clock.Now()))
	if err != nil {
		return s.fail(radio.CodeProtocol, err)
	}
	return s.do(ctx, http.MethodPut, s.devicePath("status"), contentJSON, b, nil)
}

// SendPayload is a satellite only operation.
func (s *Session) SendPayload(ctx context.Context, timeout time.Duration, payload []byte) error {
	return s.fail(radio.CodeProtocol, radio.ErrNotSupported)
}

func (s *Session) SendLogging(ctx context.Context, timeout time.Duration, f logship.File, pos uint32) (uint32, error) {
	if !s.connected {
		return pos, s.fail(radio.CodeConnect, ErrNotConnected)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	next, err := s.ship.Ship(ctx, f, pos)
	if err != nil {
		if s.report.IsZero() {
			s.report = radio.Report(radio.CodeTransfer, err)
		}
		return pos, err
	}
	level.Debug(s.logger).Log("msg", "log shipped", "from", pos, "to", next)
	return next, nil
}

func (s *Session) upload(ctx context.Context, offset uint32, chunk []byte) error {
	p := s.devicePath("logs") + "?offset=" + strconv.FormatUint(uint64(offset), 10)
	return s.do(ctx, http.MethodPost, p, contentBinary, chunk, nil)
}

// DownloadFile stores the file at rawURL, relative to the shadow service
// when not absolute, as name in the download directory.
func (s *Session) DownloadFile(ctx context.Context, timeout time.Duration, rawURL, name string) (uint32, error) {
	if !s.connected {
		return 0, s.fail(radio.CodeConnect, ErrNotConnected)
	}
	u, err := s.base.Parse(rawURL)
	if err != nil {
		return 0, s.fail(radio.CodeProtocol, err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.request(ctx, http.MethodGet, u.String(), "", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	dst := filepath.Join(s.cfg.DownloadDir, name)
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, s.fail(radio.CodeStorage, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, s.fail(radio.CodeTransfer, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return 0, s.fail(radio.CodeStorage, err)
	}
	level.Info(s.logger).Log("msg", "file downloaded", "name", name, "size", n)
	return uint32(n), nil
}

func (s *Session) ErrorReport() radio.ErrorReport { return s.report }

func (s *Session) NetworkInfo() radio.NetworkInfo { return s.info }

func (s *Session) devicePath(op string) string {
	return "/v1/devices/" + url.PathEscape(s.cfg.Device) + "/" + op
}

// do runs a request on the shadow service, out receives the JSON response.
func (s *Session) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	u, err := s.base.Parse(path)
	if err != nil {
		return s.fail(radio.CodeProtocol, err)
	}
	resp, err := s.request(ctx, method, u.String(), contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return s.fail(radio.CodeProtocol, fmt.Errorf("decoding %s response: %w", path, err))
	}
	return nil
}

func (s *Session) request(ctx context.Context, method, u, contentType string, body []byte) (*http.Response, error) {
	if !s.connected {
		return nil, s.fail(radio.CodeConnect, ErrNotConnected)
	}
	token, err := s.bearer()
	if err != nil {
		return nil, s.fail(radio.CodeProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, s.fail(radio.CodeProtocol, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.fail(radio.CodeTransfer, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		err := fmt.Errorf("%s %s: %w %d", method, u, ErrHTTPStatus, resp.StatusCode)
		s.report = radio.ErrorReport{RadioCode: radio.CodeProtocol, VendorCode: int32(resp.StatusCode)}
		return nil, err
	}
	return resp, nil
}

// bearer returns a valid device token, renewed before expiry.
func (s *Session) bearer() (string, error) {
	if s.token != "" && time.Until(s.tokenExp) > time.Minute {
		return s.token, nil
	}
	token, err := shadow.IssueToken(s.cfg.Secret, s.cfg.Device, s.cfg.TokenTTL)
	if err != nil {
		return "", err
	}
	s.token = token
	s.tokenExp = time.Now().Add(s.cfg.TokenTTL)
	return token, nil
}

func (s *Session) fail(code int32, err error) error {
	s.report = radio.Report(code, err)
	return err
}
