package worker

import (
	"fmt"

	"github.com/buildingco2/tracker/internal/dispatcher"
	"github.com/buildingco2/tracker/pkg/core"
)

// DefaultQueueSize is the buffer used for each write command.
const DefaultQueueSize = 100

// RegisterHandlers registers the write handlers with the dispatcher. Every
// write is buffered so callers never wait on storage.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher, queueSize int) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d.Register(core.CommandRecordWaste, m.handleWaste, dispatcher.Buffered(queueSize), dispatcher.Logged())
	d.Register(core.CommandAppendElectricity, m.handleElectricity, dispatcher.Buffered(queueSize), dispatcher.Logged())
	d.Register(core.CommandAppendGas, m.handleGas, dispatcher.Buffered(queueSize), dispatcher.Logged())
}

func (m *Manager) handleWaste(e dispatcher.Event) (any, error) {
	rec, ok := e.Payload.(core.WasteRecord)
	if !ok {
		return nil, fmt.Errorf("%w for %s: %T", ErrBadPayload, e.Command, e.Payload)
	}

	ctx, cancel := m.writeContext()
	defer cancel()
	if err := m.backend.AppendWaste(ctx, rec.BuildingID, rec.Point); err != nil {
		m.failed.Add(1)
		return nil, fmt.Errorf("failed to persist waste point for %s: %w", rec.BuildingID, err)
	}
	m.persisted.Add(1)

	if m.deps.Metrics != nil {
		if err := m.deps.Metrics.WriteWaste(rec.BuildingID, rec.Point); err != nil {
			m.deps.LogManager.WriteLog("worker:handleWaste", fmt.Sprintf("Error writing metric: %v", err), "WARN")
		}
	}
	if m.deps.OnWaste != nil {
		m.deps.OnWaste(rec.BuildingID, rec.Point)
	}
	return nil, nil
}

func (m *Manager) handleElectricity(e dispatcher.Event) (any, error) {
	batch, ok := e.Payload.(core.ElectricityBatch)
	if !ok {
		return nil, fmt.Errorf("%w for %s: %T", ErrBadPayload, e.Command, e.Payload)
	}

	ctx, cancel := m.writeContext()
	defer cancel()
	if err := m.backend.AppendElectricity(ctx, batch.BuildingID, batch.Points); err != nil {
		m.failed.Add(1)
		return nil, fmt.Errorf("failed to persist electricity usage for %s: %w", batch.BuildingID, err)
	}
	m.persisted.Add(1)

	if m.deps.Metrics != nil {
		if err := m.deps.Metrics.WriteElectricity(batch.BuildingID, batch.Points); err != nil {
			m.deps.LogManager.WriteLog("worker:handleElectricity", fmt.Sprintf("Error writing metric: %v", err), "WARN")
		}
	}
	return nil, nil
}

func (m *Manager) handleGas(e dispatcher.Event) (any, error) {
	batch, ok := e.Payload.(core.GasBatch)
	if !ok {
		return nil, fmt.Errorf("%w for %s: %T", ErrBadPayload, e.Command, e.Payload)
	}

	ctx, cancel := m.writeContext()
	defer cancel()
	if err := m.backend.AppendGas(ctx, batch.BuildingID, batch.Points); err != nil {
		m.failed.Add(1)
		return nil, fmt.Errorf("failed to persist gas usage for %s: %w", batch.BuildingID, err)
	}
	m.persisted.Add(1)

	if m.deps.Metrics != nil {
		if err := m.deps.Metrics.WriteGas(batch.BuildingID, batch.Points); err != nil {
			m.deps.LogManager.WriteLog("worker:handleGas", fmt.Sprintf("Error writing metric: %v", err), "WARN")
		}
	}
	return nil, nil
}
