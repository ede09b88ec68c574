package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_DefaultBucket(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.Equal(t, DefaultBucketName, m.BucketName)
	assert.False(t, m.IsValid)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{Enabled: false}, zerolog.Nop(), "")
	assert.Error(t, m.Connect(context.Background()))
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	err := m.WritePoint(influxdb2_write.NewPointWithMeasurement("x"))
	assert.Error(t, err)
}

func TestWastePoint(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := WastePoint("b1", core.WasteDataPoint{
		Timestamp:     at,
		ItemType:      "Plastic-Bottle",
		TrashcanID:    "TC-001",
		WasteCategory: "Recycling",
		Emissions:     0.082,
	})

	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	assert.True(t, strings.HasPrefix(line, MeasurementWaste+","))
	assert.Contains(t, line, "bin=Recycling")
	assert.Contains(t, line, "building=b1")
	assert.Contains(t, line, "trashcan=TC-001")
	assert.Contains(t, line, "emissions=0.082")
	assert.Contains(t, line, `item="Plastic-Bottle"`)
}

func TestUsagePoint(t *testing.T) {
	p := UsagePoint("b1", core.UsageGas, time.Unix(0, 0), 120, 0.636)
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	assert.Contains(t, line, "type=gas")
	assert.Contains(t, line, "unit=therms")
	assert.Contains(t, line, "usage=120")
}

func TestConnect_UnreachableFallsBackToBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "co2",
	}, zerolog.Nop(), backup)

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	require.NoError(t, m.WriteWaste("b1", core.WasteDataPoint{ItemType: "Paper", WasteCategory: "Recycling"}))
	require.NoError(t, m.WriteElectricity("b1", []core.ElectricityDataPoint{{KWh: 10}}))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], MeasurementWaste))
	assert.True(t, strings.HasPrefix(lines[1], MeasurementUsage))
	for _, line := range lines {
		assert.NotEmpty(t, line)
	}
}

func TestWastePoint_SkipsEmptyTags(t *testing.T) {
	line := influxdb2_write.PointToLineProtocol(WastePoint("b1", core.WasteDataPoint{ItemType: "Paper", WasteCategory: "Recycling"}), time.Nanosecond)

	assert.NotContains(t, line, "trashcan=")
	assert.Contains(t, line, "bin=Recycling")
	assert.Contains(t, line, "building=b1")
}
