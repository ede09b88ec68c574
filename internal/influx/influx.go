package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement names written by the tracker.
const (
	MeasurementWaste = "waste_disposal"
	MeasurementUsage = "utility_usage"
)

// DefaultBucketName is used when the config leaves the bucket empty.
const DefaultBucketName = "co2tracker"

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketName   string
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucketName
	}
	return &Manager{
		IsValid:    false,
		BucketName: bucket,
		Logger:     log,
		BackupPath: backupPath,
		cfg:        cfg,
	}
}

// Connect establishes a connection to InfluxDB. When the server cannot be
// reached, points are written as line protocol to a gzip backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)

	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")
			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %w", err)
			}
			m.backupFile = file
			m.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		if err := m.setupOrganizationAndBucket(ctx); err != nil {
			return err
		}
		m.createWriter()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	}

	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// ensure bucket exists with 365 day retention
	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.BucketName); err != nil {
		m.Logger.Info().Str("bucket", m.BucketName).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.BucketName, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 365,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.BucketName).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

func (m *Manager) createWriter() {
	m.Logger.Trace().Str("bucket", m.BucketName).Msg("Creating InfluxDB writer")
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.BucketName)

	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.BucketName).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		if m.Writer == nil {
			return fmt.Errorf("influxDB bucket '%s' not registered", m.BucketName)
		}
		m.Writer.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	// PointToLineProtocol terminates the line itself.
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteWaste records one disposal.
func (m *Manager) WriteWaste(buildingID string, p core.WasteDataPoint) error {
	return m.WritePoint(WastePoint(buildingID, p))
}

// WriteElectricity records committed electricity usage.
func (m *Manager) WriteElectricity(buildingID string, pts []core.ElectricityDataPoint) error {
	for _, p := range pts {
		if err := m.WritePoint(UsagePoint(buildingID, core.UsageElectricity, p.Timestamp, p.KWh, p.Emissions)); err != nil {
			return err
		}
	}
	return nil
}

// WriteGas records committed natural gas usage.
func (m *Manager) WriteGas(buildingID string, pts []core.NaturalGasDataPoint) error {
	for _, p := range pts {
		if err := m.WritePoint(UsagePoint(buildingID, core.UsageGas, p.Timestamp, p.Therms, p.Emissions)); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// tag adds key=value unless value is empty. Line protocol has no empty tag
// values.
func tag(pt *influxdb2_write.Point, key, value string) *influxdb2_write.Point {
	if value == "" {
		return pt
	}
	return pt.AddTag(key, value)
}

// WastePoint builds the point for a waste disposal.
func WastePoint(buildingID string, p core.WasteDataPoint) *influxdb2_write.Point {
	pt := influxdb2_write.NewPointWithMeasurement(MeasurementWaste)
	pt = tag(pt, "building", buildingID)
	pt = tag(pt, "bin", p.WasteCategory)
	pt = tag(pt, "trashcan", p.TrashcanID)
	return pt.
		AddField("item", p.ItemType).
		AddField("emissions", p.Emissions).
		SetTime(p.Timestamp)
}

// UsagePoint builds the point for one utility usage reading.
func UsagePoint(buildingID string, usage core.UsageType, at time.Time, amount, emissions float64) *influxdb2_write.Point {
	pt := influxdb2_write.NewPointWithMeasurement(MeasurementUsage)
	pt = tag(pt, "building", buildingID)
	pt = tag(pt, "type", string(usage))
	pt = tag(pt, "unit", usage.Unit())
	return pt.
		AddField("usage", amount).
		AddField("emissions", emissions).
		SetTime(at)
}
