package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/buildingco2/tracker/internal/api"
	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/dispatcher"
	"github.com/buildingco2/tracker/internal/parser"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/google/uuid"
)

// Status is the extraction state shown next to an upload.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusComplete Status = "complete"
)

var (
	ErrJobNotFound      = errors.New("upload job not found")
	ErrNotComplete      = errors.New("extraction is not complete")
	ErrAlreadyCommitted = errors.New("upload already committed")
	ErrInvalidUsageType = errors.New("usage type must be gas or electricity")
	ErrEmptyUpload      = errors.New("uploaded file is empty")
)

// Job tracks one uploaded bill.
type Job struct {
	ID         string              `json:"id"`
	BuildingID string              `json:"buildingId"`
	Type       core.UsageType      `json:"type"`
	Filename   string              `json:"filename"`
	Status     Status              `json:"status"`
	Error      string              `json:"error,omitempty"`
	Points     []parser.UsagePoint `json:"points,omitempty"`
	Committed  bool                `json:"committed"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

func (j *Job) clone() Job {
	cp := *j
	cp.Points = append([]parser.UsagePoint(nil), j.Points...)
	return cp
}

// Converter renders a PDF into page images.
type Converter interface {
	Convert(ctx context.Context, filename string, pdf io.Reader) ([]api.Page, error)
}

// Dispatcher queues usage batches for persistence.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Dependencies wires a Service. Converter may be nil, in which case PDFs are
// sent to the model as-is.
type Dependencies struct {
	Generator  Generator
	Converter  Converter
	Parser     *parser.Parser
	Dispatcher Dispatcher
	Config     config.ExtractConfig
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Service runs extractions and keeps their jobs.
type Service struct {
	deps Dependencies

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewService creates a Service.
func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
}

// Close cancels running extractions and waits for them.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) newJob(buildingID string, usage core.UsageType, filename string) (*Job, error) {
	if buildingID == "" {
		return nil, fmt.Errorf("building id is required")
	}
	if !usage.Valid() {
		return nil, ErrInvalidUsageType
	}
	now := s.deps.Clock.Now()
	job := &Job{
		ID:         uuid.NewString(),
		BuildingID: buildingID,
		Type:       usage,
		Filename:   filename,
		Status:     StatusIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job, nil
}

// Submit starts an extraction in the background and returns the job in the
// loading state.
func (s *Service) Submit(buildingID string, usage core.UsageType, filename string, data []byte) (Job, error) {
	if len(data) == 0 {
		return Job{}, ErrEmptyUpload
	}
	job, err := s.newJob(buildingID, usage, filename)
	if err != nil {
		return Job{}, err
	}
	snap := s.setLoading(job)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.run(s.ctx, job, data)
	}()
	return snap, nil
}

// Extract runs an extraction synchronously and returns the finished job.
func (s *Service) Extract(ctx context.Context, buildingID string, usage core.UsageType, filename string, data []byte) (Job, error) {
	if len(data) == 0 {
		return Job{}, ErrEmptyUpload
	}
	job, err := s.newJob(buildingID, usage, filename)
	if err != nil {
		return Job{}, err
	}
	s.setLoading(job)
	err = s.run(ctx, job, data)

	final, _ := s.Get(job.ID)
	if err != nil {
		return final, fmt.Errorf("failed to extract %s: %w", filename, err)
	}
	return final, nil
}

func (s *Service) setLoading(job *Job) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = StatusLoading
	job.Error = ""
	job.UpdatedAt = s.deps.Clock.Now()
	return job.clone()
}

// run extracts data into job and returns the cause of a failure. The job
// itself only keeps the user-facing message.
func (s *Service) run(ctx context.Context, job *Job, data []byte) error {
	if s.deps.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.Config.Timeout)
		defer cancel()
	}

	log := s.deps.Logger.With("job", job.ID, "building", job.BuildingID, "type", job.Type)
	points, err := s.extract(ctx, job.Type, job.Filename, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	job.UpdatedAt = s.deps.Clock.Now()
	if err != nil {
		// Failed extractions return to idle with nothing kept.
		job.Status = StatusIdle
		job.Error = userMessage(err)
		job.Points = nil
		log.Warn("bill extraction failed", "error", err)
		return err
	}
	job.Status = StatusComplete
	job.Points = points
	log.Info("bill extraction complete", "points", len(points))
	return nil
}

func (s *Service) extract(ctx context.Context, usage core.UsageType, filename string, data []byte) ([]parser.UsagePoint, error) {
	if s.deps.Generator == nil {
		return nil, fmt.Errorf("no model configured")
	}
	docs, err := s.documents(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	raw, err := s.deps.Generator.Generate(ctx, Prompt(usage), docs)
	if err != nil {
		return nil, err
	}
	return s.deps.Parser.ParseUsageResponse(raw)
}

// documents converts PDFs to page images when a converter is available.
func (s *Service) documents(ctx context.Context, filename string, data []byte) ([]Document, error) {
	mimeType := http.DetectContentType(data)
	isPDF := mimeType == "application/pdf" || strings.EqualFold(extOf(filename), ".pdf")
	if !isPDF {
		return []Document{{Data: data, MIMEType: mimeType}}, nil
	}
	if s.deps.Converter == nil {
		return []Document{{Data: data, MIMEType: "application/pdf"}}, nil
	}

	pages, err := s.deps.Converter.Convert(ctx, filename, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to convert PDF: %w", err)
	}
	docs := make([]Document, 0, len(pages))
	for _, p := range pages {
		docs = append(docs, Document{Data: p.Data, MIMEType: p.MIMEType})
	}
	return docs, nil
}

func extOf(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return filename[i:]
	}
	return ""
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, parser.ErrMalformedResponse):
		return "Could not read usage data from the bill. Please check the file and try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "Extraction timed out. Please try again."
	default:
		return fmt.Sprintf("Extraction failed: %v", err)
	}
}

// Get returns a copy of a job.
func (s *Service) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// List returns all jobs, newest first.
func (s *Service) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Commit queues the extracted points for the job's building. Only complete
// jobs can be committed, and only once.
func (s *Service) Commit(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if job.Status != StatusComplete {
		return job.clone(), ErrNotComplete
	}
	if job.Committed {
		return job.clone(), ErrAlreadyCommitted
	}
	if s.deps.Dispatcher == nil {
		return job.clone(), fmt.Errorf("no dispatcher configured")
	}

	ev := dispatcher.Event{Timestamp: s.deps.Clock.Now()}
	switch job.Type {
	case core.UsageElectricity:
		ev.Command = core.CommandAppendElectricity
		ev.Payload = core.ElectricityBatch{BuildingID: job.BuildingID, Points: ElectricityPoints(job.Points, s.deps.Config.ElectricityFactor)}
	case core.UsageGas:
		ev.Command = core.CommandAppendGas
		ev.Payload = core.GasBatch{BuildingID: job.BuildingID, Points: GasPoints(job.Points, s.deps.Config.GasFactor)}
	default:
		return job.clone(), ErrInvalidUsageType
	}

	if _, err := s.deps.Dispatcher.Dispatch(ev); err != nil {
		return job.clone(), fmt.Errorf("failed to queue usage points: %w", err)
	}
	job.Committed = true
	job.UpdatedAt = s.deps.Clock.Now()
	return job.clone(), nil
}

// ElectricityPoints converts extracted kWh readings using factor tons per kWh.
func ElectricityPoints(points []parser.UsagePoint, factor float64) []core.ElectricityDataPoint {
	out := make([]core.ElectricityDataPoint, 0, len(points))
	for _, p := range points {
		out = append(out, core.ElectricityDataPoint{Timestamp: p.Date, KWh: p.Usage, Emissions: p.Usage * factor})
	}
	return out
}

// GasPoints converts extracted therm readings using factor tons per therm.
func GasPoints(points []parser.UsagePoint, factor float64) []core.NaturalGasDataPoint {
	out := make([]core.NaturalGasDataPoint, 0, len(points))
	for _, p := range points {
		out = append(out, core.NaturalGasDataPoint{Timestamp: p.Date, Therms: p.Usage, Emissions: p.Usage * factor})
	}
	return out
}

// Describe asks the model about a single image, as the chat endpoint does,
// and returns its raw answer.
func (s *Service) Describe(ctx context.Context, doc Document, usage core.UsageType) (string, error) {
	if s.deps.Generator == nil {
		return "", fmt.Errorf("no model configured")
	}
	if !usage.Valid() {
		return "", ErrInvalidUsageType
	}
	return s.deps.Generator.Generate(ctx, Prompt(usage), []Document{doc})
}
