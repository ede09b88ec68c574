package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGELFSink_SendsRecord(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	sink, err := NewGELFSink(conn.LocalAddr().String(), "info")
	require.NoError(t, err)
	defer sink.Close()

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &file, Level: "info", Sinks: []slog.Handler{sink.Handler()}})
	m.Logger().Info("disposal recorded", "item", "Plastic-Bottle")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 8192)
	var payload []byte
	// Setup itself logs once; read until our record arrives.
	for i := 0; i < 2; i++ {
		n, _, err := conn.ReadFrom(buf)
		require.NoError(t, err)
		payload = decodeGELF(t, buf[:n])
		if bytes.Contains(payload, []byte("disposal recorded")) {
			break
		}
	}

	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Contains(t, msg["short_message"], "disposal recorded")
	assert.Contains(t, file.String(), "disposal recorded")
}

func decodeGELF(t *testing.T, b []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return b
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}
