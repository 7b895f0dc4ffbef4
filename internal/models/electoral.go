package models

import "time"

// ElectoralPosition is a prefectural post students run for.
type ElectoralPosition string

const (
	PositionHeadPrefect         ElectoralPosition = "head_prefect"
	PositionDeputyHeadPrefect   ElectoralPosition = "deputy_head_prefect"
	PositionAcademicPrefect     ElectoralPosition = "academic_prefect"
	PositionGamesPrefect        ElectoralPosition = "games_prefect"
	PositionHealthPrefect       ElectoralPosition = "health_prefect"
	PositionUniformPrefect      ElectoralPosition = "uniform_prefect"
	PositionEntertainmentPrefect ElectoralPosition = "entertainment_prefect"
	PositionTimekeeperPrefect   ElectoralPosition = "timekeeper_prefect"
	PositionICTPrefect          ElectoralPosition = "ict_prefect"
)

// ElectoralPositions enumerates all posts on the ballot in display order.
var ElectoralPositions = []ElectoralPosition{
	PositionHeadPrefect,
	PositionDeputyHeadPrefect,
	PositionAcademicPrefect,
	PositionGamesPrefect,
	PositionHealthPrefect,
	PositionUniformPrefect,
	PositionEntertainmentPrefect,
	PositionTimekeeperPrefect,
	PositionICTPrefect,
}

// Valid reports whether the position is on the ballot.
func (p ElectoralPosition) Valid() bool {
	for _, known := range ElectoralPositions {
		if p == known {
			return true
		}
	}
	return false
}

// ApplicationStatus tracks candidate vetting.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationApproved ApplicationStatus = "APPROVED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// CandidateApplication is a student's bid for a position.
type CandidateApplication struct {
	ID         string            `db:"id" json:"id"`
	StudentID  string            `db:"student_id" json:"student_id"`
	Position   ElectoralPosition `db:"position" json:"position"`
	Manifesto  string            `db:"manifesto" json:"manifesto"`
	Status     ApplicationStatus `db:"status" json:"status"`
	ReviewedBy *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`
}

// Candidate is an approved application joined with student identity.
type Candidate struct {
	ApplicationID string            `db:"application_id" json:"application_id"`
	StudentID     string            `db:"student_id" json:"student_id"`
	StudentName   string            `db:"student_name" json:"student_name"`
	PhotoURL      *string           `db:"photo_url" json:"photo_url,omitempty"`
	Position      ElectoralPosition `db:"position" json:"position"`
	Manifesto     string            `db:"manifesto" json:"manifesto"`
}

// ApplyRequest submits a candidacy.
type ApplyRequest struct {
	Position  string `json:"position" validate:"required"`
	Manifesto string `json:"manifesto" validate:"required,min=20"`
}

// Vote is one ballot entry. A voter casts at most one vote per position.
type Vote struct {
	ID          string            `db:"id" json:"id"`
	VoterID     string            `db:"voter_id" json:"voter_id"`
	CandidateID string            `db:"candidate_id" json:"candidate_id"`
	Position    ElectoralPosition `db:"position" json:"position"`
	DeviceHash  string            `db:"device_hash" json:"-"`
	CastAt      time.Time         `db:"cast_at" json:"cast_at"`
}

// CastVoteRequest records a single ballot selection.
type CastVoteRequest struct {
	CandidateID string `json:"candidate_id" validate:"required"`
	Position    string `json:"position" validate:"required"`
}

// PositionTally summarises results for one position.
type PositionTally struct {
	Position   ElectoralPosition `json:"position"`
	TotalVotes int               `json:"total_votes"`
	Candidates []CandidateTally  `json:"candidates"`
}

// CandidateTally is one candidate's share of a position's votes.
type CandidateTally struct {
	CandidateID string  `db:"candidate_id" json:"candidate_id"`
	StudentName string  `db:"student_name" json:"student_name"`
	Votes       int     `db:"votes" json:"votes"`
	Percent     float64 `json:"percent"`
}

// BallotReceipt confirms the selections a voter has cast.
type BallotReceipt struct {
	VoterID   string    `json:"voter_id"`
	VoterName string    `json:"voter_name"`
	CastAt    time.Time `json:"cast_at"`
	Entries   []Vote    `json:"entries"`
}
