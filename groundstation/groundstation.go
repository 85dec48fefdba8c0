// Package groundstation receives the ARGOS frames relayed over UDP and
// feeds the decoded statuses to the shadow storage.
package groundstation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/tracklink/argos"
	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/metrics"
	"github.com/akhenakh/tracklink/shadow"
	"github.com/akhenakh/tracklink/storage"
)

const maxDatagram = 1024

type Server struct {
	appName string
	logger  log.Logger
	GeoDB   storage.Indexer
	Store   storage.Store
	// Names maps an ARGOS id to a device name.
	Names map[uint32]string

	udpConn *net.UDPConn
	now     func() time.Time
}

func NewServer(appName string, logger log.Logger, idx storage.Indexer, store storage.Store, names map[uint32]string) *Server {
	logger = log.With(logger, "component", "groundstation")
	return &Server{
		appName: appName,
		logger:  logger,
		GeoDB:   idx,
		Store:   store,
		Names:   names,
		now:     time.Now,
	}
}

func (s *Server) Close() {
	if s.udpConn != nil {
		s.udpConn.Close()
	}
}

// Addr is the listening address, nil before StartListener.
func (s *Server) Addr() net.Addr {
	if s.udpConn == nil {
		return nil
	}
	return s.udpConn.LocalAddr()
}

func (s *Server) StartListener(ctx context.Context, addr string) error {
	serverAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		level.Error(s.logger).Log("msg", "ground station: failed to resolve", "error", err)
		return err
	}

	s.udpConn, err = net.ListenUDP("udp", serverAddr)
	if err != nil {
		level.Error(s.logger).Log("msg", "ground station: failed to listen", "error", err)
		return err
	}

	level.Info(s.logger).Log("msg", fmt.Sprintf("ground station UDP server listening at %s", s.udpConn.LocalAddr()))

	buf := make([]byte, maxDatagram)
	go func() {
		for {
			n, from, err := s.udpConn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				level.Warn(s.logger).Log("msg", "error reading on the ground station", "error", err)
				continue
			}
			if err := s.HandleFrame(buf[:n]); err != nil {
				metrics.FrameCounter.WithLabelValues(metrics.ResultError).Inc()
				level.Info(s.logger).Log("msg", "can't handle ARGOS frame", "from", from, "error", err)
				continue
			}
			metrics.FrameCounter.WithLabelValues(metrics.ResultOK).Inc()
		}
	}()

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return nil
}

// DeviceName returns the device name of an ARGOS id.
func (s *Server) DeviceName(id uint32) string {
	if name, ok := s.Names[id]; ok {
		return name
	}
	return fmt.Sprintf("argos-%07x", id)
}

// HandleFrame decodes one frame and records the status it carries.
func (s *Server) HandleFrame(frame []byte) error {
	f, err := argos.Decode(frame)
	if err != nil {
		return err
	}
	name := s.DeviceName(f.DeviceID)
	if f.Class == argos.ClassZTE {
		level.Debug(s.logger).Log("msg", "zero length frame", "device", name)
		return nil
	}

	st, err := devstatus.DecodeSatellite(f.Payload)
	if err != nil {
		return fmt.Errorf("device %s: %w", name, err)
	}
	now := s.now()
	status := shadow.NewStatus(st, uint32(now.Unix()))

	_, err = s.Store.UpdateDocument(name, func(cur []byte) ([]byte, error) {
		doc := shadow.Document{DeviceName: name}
		if cur != nil {
			if err := json.Unmarshal(cur, &doc); err != nil {
				return nil, err
			}
		}
		doc.Reported = &status
		return json.Marshal(doc)
	})
	if err != nil {
		return fmt.Errorf("can't store status of %s: %w", name, err)
	}

	if !st.Has(devstatus.FieldLocation) {
		level.Debug(s.logger).Log("msg", "status without location", "device", name)
		return nil
	}

	ts := now
	if st.Location.Timestamp != 0 {
		ts = time.Unix(int64(st.Location.Timestamp), 0)
	}
	err = s.GeoDB.Index(name, status.LPP, st.Location.Latitude, st.Location.Longitude, ts.UTC())
	if err != nil {
		return fmt.Errorf("can't index status of %s: %w", name, err)
	}
	metrics.InsertCounter.Inc()
	level.Debug(s.logger).Log("msg", "satellite status indexed", "device", name, "class", f.Class)

	return nil
}
