package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), Config{Enabled: false, LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, ServiceName: "co2tracker"})
	assert.ErrorIs(t, err, ErrNoExporter)
}

func TestNew_FileWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(context.Background(), Config{
		Enabled:        true,
		ServiceName:    "co2tracker",
		ServiceVersion: "0.0.1",
		BatchTimeout:   time.Second,
		LogWriter:      &buf,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	require.NotNil(t, p.LoggerProvider())

	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}
