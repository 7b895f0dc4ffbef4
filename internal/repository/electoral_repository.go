package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/glorious-schools/portal-api/internal/models"
)

// ElectoralRepository manages candidate applications and ballots.
type ElectoralRepository struct {
	db *sqlx.DB
}

// NewElectoralRepository constructs the repository.
func NewElectoralRepository(db *sqlx.DB) *ElectoralRepository {
	return &ElectoralRepository{db: db}
}

// CreateApplication submits a candidacy.
func (r *ElectoralRepository) CreateApplication(ctx context.Context, app *models.CandidateApplication) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationPending
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	const query = `INSERT INTO candidate_applications (id, student_id, position, manifesto, status, reviewed_by, created_at, updated_at)
        VALUES (:id, :student_id, :position, :manifesto, :status, :reviewed_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create candidate application: %w", err)
	}
	return nil
}

// ListApplications returns applications, optionally filtered by status.
func (r *ElectoralRepository) ListApplications(ctx context.Context, status *models.ApplicationStatus) ([]models.CandidateApplication, error) {
	query := `SELECT id, student_id, position, manifesto, status, reviewed_by, created_at, updated_at
        FROM candidate_applications`
	args := []interface{}{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	query += " ORDER BY created_at ASC"
	var apps []models.CandidateApplication
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, fmt.Errorf("list candidate applications: %w", err)
	}
	return apps, nil
}

// ReviewApplication sets the vetting decision for an application.
func (r *ElectoralRepository) ReviewApplication(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string) error {
	const query = `UPDATE candidate_applications SET status = $2, reviewed_by = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, reviewerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("review candidate application: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("review candidate application: no such application %s", id)
	}
	return nil
}

// ListCandidates returns approved candidates for a position (all positions when empty).
func (r *ElectoralRepository) ListCandidates(ctx context.Context, position models.ElectoralPosition) ([]models.Candidate, error) {
	query := `SELECT ca.id AS application_id, ca.student_id, s.first_name || ' ' || s.last_name AS student_name,
        s.photo_url, ca.position, ca.manifesto
        FROM candidate_applications ca
        JOIN students s ON s.id = ca.student_id
        WHERE ca.status = 'APPROVED'`
	args := []interface{}{}
	if position != "" {
		query += " AND ca.position = $1"
		args = append(args, position)
	}
	query += " ORDER BY ca.position, student_name"
	var candidates []models.Candidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, nil
}

// CastVote records one ballot entry. The unique constraint on
// (voter_id, position) enforces the one-vote-per-position rule; a violation
// surfaces as errDuplicateVote for the service layer to translate.
func (r *ElectoralRepository) CastVote(ctx context.Context, vote *models.Vote) error {
	if vote.ID == "" {
		vote.ID = uuid.NewString()
	}
	if vote.CastAt.IsZero() {
		vote.CastAt = time.Now().UTC()
	}
	const query = `INSERT INTO votes (id, voter_id, candidate_id, position, device_hash, cast_at)
        VALUES (:id, :voter_id, :candidate_id, :position, :device_hash, :cast_at)`
	if _, err := r.db.NamedExecContext(ctx, query, vote); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateVoteRow
		}
		return fmt.Errorf("cast vote: %w", err)
	}
	return nil
}

// ErrDuplicateVoteRow signals a unique-constraint hit on (voter_id, position).
var ErrDuplicateVoteRow = fmt.Errorf("duplicate vote for position")

// VotesByVoter returns the ballot entries a voter has already cast.
func (r *ElectoralRepository) VotesByVoter(ctx context.Context, voterID string) ([]models.Vote, error) {
	const query = `SELECT id, voter_id, candidate_id, position, device_hash, cast_at
        FROM votes WHERE voter_id = $1 ORDER BY cast_at ASC`
	var votes []models.Vote
	if err := r.db.SelectContext(ctx, &votes, query, voterID); err != nil {
		return nil, fmt.Errorf("list votes by voter: %w", err)
	}
	return votes, nil
}

// TallyPosition counts votes per candidate for one position.
func (r *ElectoralRepository) TallyPosition(ctx context.Context, position models.ElectoralPosition) ([]models.CandidateTally, error) {
	const query = `SELECT v.candidate_id, s.first_name || ' ' || s.last_name AS student_name, COUNT(*) AS votes
        FROM votes v
        JOIN candidate_applications ca ON ca.id = v.candidate_id
        JOIN students s ON s.id = ca.student_id
        WHERE v.position = $1
        GROUP BY v.candidate_id, student_name
        ORDER BY votes DESC, student_name`
	var tallies []models.CandidateTally
	if err := r.db.SelectContext(ctx, &tallies, query, position); err != nil {
		return nil, fmt.Errorf("tally position: %w", err)
	}
	return tallies, nil
}

// RecentVotesByDevice counts ballots from one device hash within the window.
// Used as a rapid-voting heuristic, not a hard block.
func (r *ElectoralRepository) RecentVotesByDevice(ctx context.Context, deviceHash string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM votes WHERE device_hash = $1 AND cast_at >= $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, deviceHash, since); err != nil {
		return 0, fmt.Errorf("count device votes: %w", err)
	}
	return count, nil
}
