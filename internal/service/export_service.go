package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
	"github.com/pulseworks/pulse-api/pkg/export"
	"github.com/pulseworks/pulse-api/pkg/jobs"
	"github.com/pulseworks/pulse-api/pkg/storage"
)

// Export statuses.
const (
	ExportStatusPending = "PENDING"
	ExportStatusReady   = "READY"
	ExportStatusFailed  = "FAILED"
)

type snapshotProvider interface {
	Latest(ctx context.Context, surveyID string) (*dto.ReportResponse, error)
}

type exportJobPayload struct {
	ExportID string
	SurveyID string
	Format   string
}

type exportRecord struct {
	Status   string
	Filename string
	URL      string
	Err      string
}

// ExportService renders report snapshots to CSV or PDF files in the
// background and hands out signed download URLs. Only already-suppressed
// aggregates are exported, never raw responses, so an export can never
// leak below the k-threshold.
type ExportService struct {
	reports snapshotProvider
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	store   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger

	mu      sync.RWMutex
	records map[string]*exportRecord
}

// ExportServiceConfig tunes the background worker pool.
type ExportServiceConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func NewExportService(reports snapshotProvider, store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg ExportServiceConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		reports: reports,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		store:   store,
		signer:  signer,
		logger:  logger,
		records: make(map[string]*exportRecord),
	}
	s.queue = jobs.NewQueue("report-exports", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// WithMetrics attaches domain counters.
func (s *ExportService) WithMetrics(metrics *MetricsService) *ExportService {
	s.metrics = metrics
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Request enqueues a render of the survey's latest snapshot and returns
// a handle the client can poll.
func (s *ExportService) Request(ctx context.Context, surveyID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	// Fail fast when no snapshot exists rather than from a worker.
	if _, err := s.reports.Latest(ctx, surveyID); err != nil {
		return nil, err
	}

	exportID := uuid.NewString()
	s.mu.Lock()
	s.records[exportID] = &exportRecord{Status: ExportStatusPending}
	s.mu.Unlock()

	err := s.queue.Enqueue(jobs.Job{
		ID:      exportID,
		Type:    "render",
		Payload: exportJobPayload{ExportID: exportID, SurveyID: surveyID, Format: req.Format},
	})
	if err != nil {
		s.mu.Lock()
		delete(s.records, exportID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}

	return &dto.ExportResponse{ExportID: exportID, Status: ExportStatusPending}, nil
}

// Status reports the current state of an export, including the signed
// download URL once rendering finished.
func (s *ExportService) Status(exportID string) (*dto.ExportResponse, error) {
	s.mu.RLock()
	record, ok := s.records[exportID]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	return &dto.ExportResponse{ExportID: exportID, Status: record.Status, URL: record.URL, Error: record.Err}, nil
}

// Download validates a signed token and opens the rendered file.
func (s *ExportService) Download(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return file, relPath, nil
}

// Cleanup removes rendered files older than the ttl.
func (s *ExportService) Cleanup(ttl time.Duration) {
	removed, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("export files cleaned", zap.Int("removed", len(removed)))
	}
}

func (s *ExportService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	report, err := s.reports.Latest(ctx, payload.SurveyID)
	if err != nil {
		s.fail(payload.ExportID, err)
		return err
	}

	dataset := datasetFromAggregates(report.Aggregates)
	var data []byte
	switch payload.Format {
	case "csv":
		data, err = s.csv.Render(dataset)
	case "pdf":
		data, err = s.pdf.Render(dataset, fmt.Sprintf("Survey report %s", payload.SurveyID))
	default:
		err = fmt.Errorf("unsupported format %q", payload.Format)
	}
	if err != nil {
		s.fail(payload.ExportID, err)
		return err
	}

	filename := fmt.Sprintf("%s-%s.%s", payload.SurveyID, payload.ExportID, payload.Format)
	if _, err := s.store.Save(filename, data); err != nil {
		s.fail(payload.ExportID, err)
		return err
	}

	url, _, err := s.signer.Generate(payload.ExportID, filename)
	if err != nil {
		s.fail(payload.ExportID, err)
		return err
	}

	s.mu.Lock()
	if record, ok := s.records[payload.ExportID]; ok {
		record.Status = ExportStatusReady
		record.Filename = filename
		record.URL = url
	}
	s.mu.Unlock()

	s.metrics.RecordExportRendered(payload.Format)
	s.logger.Info("export rendered",
		zap.String("export_id", payload.ExportID),
		zap.String("survey_id", payload.SurveyID),
		zap.String("format", payload.Format))
	return nil
}

func (s *ExportService) fail(exportID string, err error) {
	s.mu.Lock()
	if record, ok := s.records[exportID]; ok {
		record.Status = ExportStatusFailed
		record.Err = err.Error()
	}
	s.mu.Unlock()
}

// datasetFromAggregates flattens a report into one metric per row.
// Suppressed cells are emitted as a suppression marker so the export
// mirrors exactly what the API would have shown.
func datasetFromAggregates(aggregates models.ReportAggregates) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"section", "question", "type", "respondents", "metric", "value"},
	}

	addRow := func(section, question, qtype string, respondents int, metric, value string) {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"section":     section,
			"question":    question,
			"type":        qtype,
			"respondents": strconv.Itoa(respondents),
			"metric":      metric,
			"value":       value,
		})
	}

	summary := aggregates.Summary
	addRow("", "summary", "", summary.TotalResponses, "response_rate", fmt.Sprintf("%.1f%%", summary.ResponseRate))
	if summary.NPSAnswerCount > 0 {
		addRow("", "summary", "", summary.NPSAnswerCount, "enps", fmt.Sprintf("%.1f", summary.ENPS))
	}

	for _, q := range aggregates.Questions {
		if q.Suppressed {
			addRow(q.SectionID, q.Prompt, string(q.Type), q.Respondents, "suppressed", "true")
			continue
		}
		if q.Scale != nil {
			addRow(q.SectionID, q.Prompt, string(q.Type), q.Respondents, "mean", fmt.Sprintf("%.2f", q.Scale.Mean))
			addRow(q.SectionID, q.Prompt, string(q.Type), q.Respondents, "median", fmt.Sprintf("%.2f", q.Scale.Median))
			addRow(q.SectionID, q.Prompt, string(q.Type), q.Respondents, "min", fmt.Sprintf("%.2f", q.Scale.Min))
			addRow(q.SectionID, q.Prompt, string(q.Type), q.Respondents, "max", fmt.Sprintf("%.2f", q.Scale.Max))
		}
		for option, count := range q.Frequencies {
			addRow(q.SectionID, q.Prompt, string(q.Type), q.Respondents, option, strconv.Itoa(count))
		}
		if len(q.Texts) > 0 {
			addRow(q.SectionID, q.Prompt, string(q.Type), q.Respondents, "text_answers", strconv.Itoa(len(q.Texts)))
		}
	}
	return dataset
}
