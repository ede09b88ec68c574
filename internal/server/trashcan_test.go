package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/buildingco2/tracker/internal/detector"
	"github.com/buildingco2/tracker/internal/scanner"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/buildingco2/tracker/pkg/streaming"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleSource blocks until the session is cancelled.
type idleSource struct{}

func (idleSource) Frame(ctx context.Context) (core.Frame, error) {
	<-ctx.Done()
	return core.Frame{}, ctx.Err()
}

func (idleSource) Close() error { return nil }

type noDetections struct{}

func (noDetections) Detect(context.Context, core.Frame) ([]core.Detection, error) { return nil, nil }

func idleFactory(buildingID string) (scanner.Dependencies, error) {
	return scanner.Dependencies{
		Source:   idleSource{},
		Detector: detector.NewAdapter(noDetections{}, 0.5, nil),
	}, nil
}

func newScannerServer(t *testing.T, factory scanner.Factory) (*Server, *scanner.Controller) {
	t.Helper()
	ctrl := scanner.NewController(factory, time.Hour, 5, nil)
	srv := New(Dependencies{Backend: newBackend(t), Scanner: ctrl, DefaultBuildingID: "b1"})
	t.Cleanup(srv.Close)
	return srv, ctrl
}

func TestTrashcanStartStop(t *testing.T) {
	srv, ctrl := newScannerServer(t, idleFactory)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/trashcan/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[scanner.Status](t, rec)
	assert.True(t, st.Running)
	assert.Equal(t, "b1", st.BuildingID)
	assert.True(t, ctrl.Running())

	rec = do(t, h, http.MethodPost, "/api/trashcan/start", map[string]any{"buildingId": "b2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/trashcan/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[scanner.Status](t, rec).Running)
	assert.False(t, ctrl.Running())

	rec = do(t, h, http.MethodGet, "/api/trashcan", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTrashcanStart_FactoryError(t *testing.T) {
	srv, _ := newScannerServer(t, func(string) (scanner.Dependencies, error) {
		return scanner.Dependencies{}, errors.New("no camera")
	})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/trashcan/start", map[string]any{"buildingId": "b9"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no camera")
}

func readEnvelope(t *testing.T, conn *ws.Conn) streaming.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestFeed(t *testing.T) {
	srv, ctrl := newScannerServer(t, idleFactory)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/trashcan/feed"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	assert.Equal(t, streaming.TypeStatus, env.Type)

	ctrl.Hub().Publish(scanner.Snapshot{Seq: 7, Displayed: "Paper"})
	env = readEnvelope(t, conn)
	require.Equal(t, streaming.TypeSnapshot, env.Type)
	var snap scanner.Snapshot
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	assert.Equal(t, uint64(7), snap.Seq)
	assert.Equal(t, "Paper", snap.Displayed)

	srv.NotifyDisposal("b1", core.WasteDataPoint{ItemType: "Paper", Emissions: 0.02})
	env = readEnvelope(t, conn)
	require.Equal(t, streaming.TypeDisposal, env.Type)
	var d streaming.DisposalPayload
	require.NoError(t, json.Unmarshal(env.Payload, &d))
	assert.Equal(t, "b1", d.BuildingID)
	assert.Equal(t, "Paper", d.Point.ItemType)
}

func TestFeed_ClosedOnServerClose(t *testing.T) {
	srv, ctrl := newScannerServer(t, idleFactory)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/trashcan/feed"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readEnvelope(t, conn)

	srv.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, ws.IsCloseError(err, ws.CloseNormalClosure), "got %v", err)
	assert.Eventually(t, func() bool {
		return srv.feed.len() == 0 && ctrl.Hub().Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
