package radio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akhenakh/tracklink/devstatus"
	"github.com/akhenakh/tracklink/logship"
	"github.com/akhenakh/tracklink/shadow"
)

type recSession struct {
	name  string
	calls []string
}

func (r *recSession) PowerOn(ctx context.Context, t Type) error {
	r.calls = append(r.calls, "on")
	return nil
}

func (r *recSession) PowerOff(ctx context.Context) error {
	r.calls = append(r.calls, "off")
	return nil
}

func (r *recSession) Connect(ctx context.Context, timeout time.Duration) error {
	r.calls = append(r.calls, "connect")
	return nil
}

func (r *recSession) FetchDeviceShadow(ctx context.Context, timeout time.Duration) (shadow.Document, error) {
	return shadow.Document{DeviceName: r.name}, nil
}

func (r *recSession) SendDeviceStatus(ctx context.Context, timeout time.Duration, s devstatus.DeviceStatus) error {
	return nil
}

func (r *recSession) SendPayload(ctx context.Context, timeout time.Duration, payload []byte) error {
	r.calls = append(r.calls, "payload")
	return nil
}

func (r *recSession) SendLogging(ctx context.Context, timeout time.Duration, f logship.File, pos uint32) (uint32, error) {
	return pos, nil
}

func (r *recSession) DownloadFile(ctx context.Context, timeout time.Duration, url, name string) (uint32, error) {
	return 0, nil
}

func (r *recSession) ErrorReport() ErrorReport {
	return ErrorReport{RadioCode: int32(len(r.name))}
}

func (r *recSession) NetworkInfo() NetworkInfo { return NetworkInfo{Operator: r.name} }

func TestMuxRoutes(t *testing.T) {
	ctx := context.Background()
	cell := &recSession{name: "cell"}
	sat := &recSession{name: "satellite"}
	m := &Mux{Cellular: cell, Satellite: sat}

	_, err := m.FetchDeviceShadow(ctx, time.Second)
	require.ErrorIs(t, err, ErrNotPowered)
	require.ErrorIs(t, m.PowerOff(ctx), ErrNotPowered)

	require.NoError(t, m.PowerOn(ctx, Cellular))
	require.NoError(t, m.Connect(ctx, time.Second))
	doc, err := m.FetchDeviceShadow(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "cell", doc.DeviceName)
	require.NoError(t, m.PowerOff(ctx))

	require.NoError(t, m.PowerOn(ctx, Satellite))
	require.NoError(t, m.SendPayload(ctx, time.Second, []byte{1}))
	require.NoError(t, m.PowerOff(ctx))

	// the report of the last radio stays available after power off
	require.Equal(t, int32(len("satellite")), m.ErrorReport().RadioCode)
	require.Equal(t, "satellite", m.NetworkInfo().Operator)

	require.Equal(t, []string{"on", "connect", "off"}, cell.calls)
	require.Equal(t, []string{"on", "payload", "off"}, sat.calls)
}

func TestMuxMissingRadio(t *testing.T) {
	m := &Mux{Cellular: &recSession{}}
	require.ErrorIs(t, m.PowerOn(context.Background(), Satellite), ErrNotSupported)
	require.True(t, m.ErrorReport().IsZero())
}
