package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/pkg/export"
	"github.com/glorious-schools/portal-api/pkg/storage"
)

type rollCallProvider interface {
	RollCall(ctx context.Context, scope models.AttendanceScope) (*models.RollCall, error)
}

type streamFinder interface {
	FindStreamByID(ctx context.Context, id string) (*models.StreamDetail, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

type tableRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type titledRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService builds attendance register datasets and persists rendered
// files. The dataset comes from the merged roll-call view, so unsynced local
// marks are included.
type ExportService struct {
	rollCall rollCallProvider
	streams  streamFinder
	storage  fileStorage
	csv      tableRenderer
	json     tableRenderer
	xlsx     tableRenderer
	pdf      titledRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService with the default renderers.
func NewExportService(rollCall rollCallProvider, streams streamFinder, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		rollCall: rollCall,
		streams:  streams,
		storage:  store,
		csv:      export.NewCSVExporter(),
		json:     export.NewJSONExporter(),
		xlsx:     export.NewXLSXExporter(),
		pdf:      export.NewPDFExporter(),
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the register for the job's scope and stores the rendered
// file, returning a signed download URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	date, err := time.Parse(models.DateLayout, job.Params.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid export date %q: %w", job.Params.Date, err)
	}
	scope := models.AttendanceScope{StreamID: job.Params.StreamID, Date: date}

	sheet, err := s.rollCall.RollCall(ctx, scope)
	if err != nil {
		return nil, err
	}
	dataset := buildRegisterDataset(sheet)
	title := s.buildTitle(ctx, scope)

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatJSON:
		payload, err = s.json.Render(dataset)
	case models.ExportFormatXLSX:
		payload, err = s.xlsx.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildTitle(ctx context.Context, scope models.AttendanceScope) string {
	streamName := scope.StreamID
	if s.streams != nil {
		if stream, err := s.streams.FindStreamByID(ctx, scope.StreamID); err == nil {
			streamName = stream.Name
		}
	}
	return fmt.Sprintf("Attendance Register %s %s", streamName, scope.DateString())
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	streamPart := sanitizeFilename(job.Params.StreamID)
	datePart := sanitizeFilename(job.Params.Date)
	return fmt.Sprintf("attendance_%s_%s_%s.%s", streamPart, datePart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

var registerHeaders = []string{"Student ID", "Student Name", "Status", "Time Marked", "Absent Reason", "Synced"}

func buildRegisterDataset(sheet *models.RollCall) export.Dataset {
	rows := make([]map[string]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		timeMarked := ""
		if row.TimeMarked != nil {
			timeMarked = row.TimeMarked.UTC().Format(time.RFC3339)
		}
		reason := ""
		if row.AbsentReason != nil {
			reason = *row.AbsentReason
		}
		rows = append(rows, map[string]string{
			"Student ID":    row.StudentID,
			"Student Name":  row.StudentName,
			"Status":        string(row.Status),
			"Time Marked":   timeMarked,
			"Absent Reason": reason,
			"Synced":        fmt.Sprintf("%t", row.Synced),
		})
	}

	summary := sheet.Summary
	rate := 0.0
	if marked := summary.Present + summary.Absent; marked > 0 {
		rate = float64(summary.Present) / float64(marked) * 100
	}
	return export.Dataset{
		Headers: registerHeaders,
		Rows:    rows,
		Summary: []export.SummaryLine{
			{Label: "Total Students", Value: fmt.Sprintf("%d", summary.Total)},
			{Label: "Present", Value: fmt.Sprintf("%d", summary.Present)},
			{Label: "Absent", Value: fmt.Sprintf("%d", summary.Absent)},
			{Label: "Not Marked", Value: fmt.Sprintf("%d", summary.Unmarked)},
			{Label: "Attendance Rate", Value: fmt.Sprintf("%.1f%%", rate)},
		},
	}
}
