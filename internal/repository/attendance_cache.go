package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glorious-schools/portal-api/internal/models"
)

// AttendanceCache is the durable local roll-call store. Marks land here
// before any remote write is attempted, one JSON file per (stream, date).
type AttendanceCache struct {
	dir    string
	logger *zap.Logger
}

// NewAttendanceCache constructs the cache rooted at dir.
func NewAttendanceCache(dir string, logger *zap.Logger) (*AttendanceCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("attendance cache: directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("attendance cache: create directory: %w", err)
	}
	return &AttendanceCache{dir: dir, logger: logger}, nil
}

func (c *AttendanceCache) path(scope models.AttendanceScope) string {
	name := fmt.Sprintf("attendance_%s_%s.json", scope.StreamID, scope.DateString())
	return filepath.Join(c.dir, name)
}

// Load reads the cached sheet for a scope. A missing file yields an empty
// sheet. A corrupted file is recoverable: it is treated as empty and a
// warning is logged, never an error.
func (c *AttendanceCache) Load(scope models.AttendanceScope) (*models.AttendanceSheet, error) {
	data, err := os.ReadFile(c.path(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewAttendanceSheet(), nil
		}
		return nil, fmt.Errorf("attendance cache: read %s: %w", scope.DateString(), err)
	}

	var sheet models.AttendanceSheet
	if err := json.Unmarshal(data, &sheet); err != nil {
		c.logger.Warn("attendance cache entry corrupted, starting fresh",
			zap.String("stream_id", scope.StreamID),
			zap.String("date", scope.DateString()),
			zap.Error(err))
		return models.NewAttendanceSheet(), nil
	}
	if sheet.Records == nil {
		sheet.Records = make(map[string]models.AttendanceMark)
	}
	if sheet.SyncStatus == nil {
		sheet.SyncStatus = make(map[string]bool)
	}
	return &sheet, nil
}

// Save writes the sheet atomically via a temp file and rename.
func (c *AttendanceCache) Save(scope models.AttendanceScope, sheet *models.AttendanceSheet) error {
	if sheet == nil {
		sheet = models.NewAttendanceSheet()
	}
	data, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("attendance cache: encode %s: %w", scope.DateString(), err)
	}

	target := c.path(scope)
	tmp, err := os.CreateTemp(c.dir, ".attendance-*.tmp")
	if err != nil {
		return fmt.Errorf("attendance cache: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("attendance cache: write %s: %w", scope.DateString(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("attendance cache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("attendance cache: replace %s: %w", scope.DateString(), err)
	}
	return nil
}

// Clear removes the whole scope from the cache. Clearing an absent scope is a no-op.
func (c *AttendanceCache) Clear(scope models.AttendanceScope) error {
	if err := os.Remove(c.path(scope)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("attendance cache: clear %s: %w", scope.DateString(), err)
	}
	return nil
}

// PendingScopes lists the cached scopes still holding unsynced marks.
// File names carry the scope key, so no sheet contents leave this scan
// beyond the sync flags.
func (c *AttendanceCache) PendingScopes() ([]models.AttendanceScope, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("attendance cache: scan: %w", err)
	}
	var scopes []models.AttendanceScope
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		scope, ok := parseScopeFilename(entry.Name())
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			continue
		}
		var sheet models.AttendanceSheet
		if err := json.Unmarshal(data, &sheet); err != nil {
			continue
		}
		if len(sheet.UnsyncedStudents()) > 0 {
			scopes = append(scopes, scope)
		}
	}
	return scopes, nil
}

// UnsyncedScopes counts cached sheets still holding unsynced marks.
func (c *AttendanceCache) UnsyncedScopes() (int, error) {
	scopes, err := c.PendingScopes()
	if err != nil {
		return 0, err
	}
	return len(scopes), nil
}

func parseScopeFilename(name string) (models.AttendanceScope, bool) {
	if !strings.HasPrefix(name, "attendance_") || !strings.HasSuffix(name, ".json") {
		return models.AttendanceScope{}, false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "attendance_"), ".json")
	idx := strings.LastIndex(trimmed, "_")
	if idx <= 0 {
		return models.AttendanceScope{}, false
	}
	streamID, rawDate := trimmed[:idx], trimmed[idx+1:]
	date, err := time.Parse(models.DateLayout, rawDate)
	if err != nil {
		return models.AttendanceScope{}, false
	}
	return models.AttendanceScope{StreamID: streamID, Date: date}, true
}
