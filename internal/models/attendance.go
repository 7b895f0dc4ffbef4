package models

import "time"

// DateLayout is the wire format for attendance dates.
const DateLayout = "2006-01-02"

// AttendanceStatus represents the marking state for a student on a given day.
type AttendanceStatus string

const (
	AttendanceStatusPresent  AttendanceStatus = "present"
	AttendanceStatusAbsent   AttendanceStatus = "absent"
	AttendanceStatusUnmarked AttendanceStatus = "unmarked"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusUnmarked:
		return true
	default:
		return false
	}
}

// AbsentReasons lists the accepted reasons for an absence.
var AbsentReasons = []string{
	"Sick",
	"Sent back for school fees",
	"Public Holiday",
	"Suspended",
	"Other",
}

// AttendanceScope identifies one roll-call sheet: a stream on a school day.
type AttendanceScope struct {
	StreamID string    `json:"stream_id"`
	Date     time.Time `json:"date"`
}

// DateString renders the scope date in wire format.
func (s AttendanceScope) DateString() string {
	return s.Date.Format(DateLayout)
}

// IsSchoolDay reports whether the scope falls on a Monday-Friday.
func (s AttendanceScope) IsSchoolDay() bool {
	wd := s.Date.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AttendanceMark is a single student's mark as held in the local cache.
type AttendanceMark struct {
	Status       AttendanceStatus `json:"status"`
	TimeMarked   time.Time        `json:"time_marked"`
	AbsentReason *string          `json:"absent_reason,omitempty"`
	MarkedBy     string           `json:"marked_by"`
}

// AttendanceSheet is the cached roll-call state for one scope.
// SyncStatus tracks, per student, whether the mark reached the remote store.
type AttendanceSheet struct {
	Records    map[string]AttendanceMark `json:"records"`
	SyncStatus map[string]bool           `json:"sync_status"`
}

// NewAttendanceSheet returns an empty sheet with initialised maps.
func NewAttendanceSheet() *AttendanceSheet {
	return &AttendanceSheet{
		Records:    make(map[string]AttendanceMark),
		SyncStatus: make(map[string]bool),
	}
}

// UnsyncedStudents returns the IDs of students whose marks have not reached
// the remote store, in no particular order.
func (s *AttendanceSheet) UnsyncedStudents() []string {
	if s == nil {
		return nil
	}
	var ids []string
	for id, synced := range s.SyncStatus {
		if !synced {
			ids = append(ids, id)
		}
	}
	return ids
}

// AttendanceRecord is a persisted attendance row in the remote store.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	StreamID     string           `db:"stream_id" json:"stream_id"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	AbsentReason *string          `db:"absent_reason" json:"absent_reason,omitempty"`
	MarkedBy     string           `db:"marked_by" json:"marked_by"`
	MarkedAt     time.Time        `db:"marked_at" json:"marked_at"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter scopes range queries over the remote store.
type AttendanceFilter struct {
	StreamID  string
	StudentID string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// MarkOutcome reports the result of marking one student.
type MarkOutcome struct {
	StudentID string         `json:"student_id"`
	Mark      AttendanceMark `json:"mark"`
	Synced    bool           `json:"synced"`
}

// BulkMarkOutcome aggregates outcomes of a mark-all operation.
type BulkMarkOutcome struct {
	Marked   int `json:"marked"`
	Synced   int `json:"synced"`
	Unsynced int `json:"unsynced"`
}

// RollCallRow is one student's line on the marking screen.
type RollCallRow struct {
	StudentID    string           `json:"student_id"`
	StudentName  string           `json:"student_name"`
	Status       AttendanceStatus `json:"status"`
	TimeMarked   *time.Time       `json:"time_marked,omitempty"`
	AbsentReason *string          `json:"absent_reason,omitempty"`
	Synced       bool             `json:"synced"`
}

// RollCallSummary aggregates a scope for the marking screen header.
type RollCallSummary struct {
	Total    int `json:"total"`
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Unmarked int `json:"unmarked"`
}

// RollCall is the merged view of remote rows and cached marks for one scope.
type RollCall struct {
	StreamID string          `json:"stream_id"`
	Date     string          `json:"date"`
	Rows     []RollCallRow   `json:"rows"`
	Summary  RollCallSummary `json:"summary"`
	Sync     SyncResult      `json:"sync"`
}

// SyncResult reports one reconcile pass over a scope.
type SyncResult struct {
	Succeeded     int `json:"succeeded"`
	StillUnsynced int `json:"still_unsynced"`
}

// StreamAttendanceOverview is a per-stream rollup for dashboards.
type StreamAttendanceOverview struct {
	StreamID   string `db:"stream_id" json:"stream_id"`
	StreamName string `db:"stream_name" json:"stream_name"`
	Present    int    `db:"present" json:"present"`
	Absent     int    `db:"absent" json:"absent"`
	Marked     int    `db:"marked" json:"marked"`
}
