package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/internal/repository"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
	"github.com/glorious-schools/portal-api/pkg/export"
)

type electoralRepository interface {
	CreateApplication(ctx context.Context, app *models.CandidateApplication) error
	ListApplications(ctx context.Context, status *models.ApplicationStatus) ([]models.CandidateApplication, error)
	ReviewApplication(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string) error
	ListCandidates(ctx context.Context, position models.ElectoralPosition) ([]models.Candidate, error)
	CastVote(ctx context.Context, vote *models.Vote) error
	VotesByVoter(ctx context.Context, voterID string) ([]models.Vote, error)
	TallyPosition(ctx context.Context, position models.ElectoralPosition) ([]models.CandidateTally, error)
	RecentVotesByDevice(ctx context.Context, deviceHash string, since time.Time) (int, error)
}

// VotingWindow bounds when ballots are accepted. A zero bound is open-ended.
type VotingWindow struct {
	Open  time.Time
	Close time.Time
}

// Contains reports whether t falls inside the window.
func (w VotingWindow) Contains(t time.Time) bool {
	if !w.Open.IsZero() && t.Before(w.Open) {
		return false
	}
	if !w.Close.IsZero() && !t.Before(w.Close) {
		return false
	}
	return true
}

// ElectoralService runs the prefect election: candidate vetting, ballots
// and tallies.
type ElectoralService struct {
	repo      electoralRepository
	window    VotingWindow
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewElectoralService constructs the electoral service.
func NewElectoralService(repo electoralRepository, window VotingWindow, validate *validator.Validate, logger *zap.Logger) *ElectoralService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElectoralService{
		repo:      repo,
		window:    window,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Positions returns the ballot positions in display order.
func (s *ElectoralService) Positions() []models.ElectoralPosition {
	return models.ElectoralPositions
}

// Apply submits a student's candidacy for a position.
func (s *ElectoralService) Apply(ctx context.Context, studentID string, req models.ApplyRequest) (*models.CandidateApplication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	position := models.ElectoralPosition(req.Position)
	if !position.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown electoral position: "+req.Position)
	}

	app := &models.CandidateApplication{
		StudentID: studentID,
		Position:  position,
		Manifesto: req.Manifesto,
		Status:    models.ApplicationPending,
	}
	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}
	s.logger.Info("candidacy submitted",
		zap.String("student_id", studentID),
		zap.String("position", string(position)))
	return app, nil
}

// ListApplications returns applications for admin review.
func (s *ElectoralService) ListApplications(ctx context.Context, status string) ([]models.CandidateApplication, error) {
	var filter *models.ApplicationStatus
	if status != "" {
		st := models.ApplicationStatus(status)
		switch st {
		case models.ApplicationPending, models.ApplicationApproved, models.ApplicationRejected:
			filter = &st
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown application status: "+status)
		}
	}
	apps, err := s.repo.ListApplications(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, nil
}

// Review approves or rejects a candidacy.
func (s *ElectoralService) Review(ctx context.Context, applicationID, reviewerID string, approve bool) error {
	status := models.ApplicationRejected
	if approve {
		status = models.ApplicationApproved
	}
	if err := s.repo.ReviewApplication(ctx, applicationID, status, reviewerID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review application")
	}
	s.logger.Info("candidacy reviewed",
		zap.String("application_id", applicationID),
		zap.String("status", string(status)),
		zap.String("reviewed_by", reviewerID))
	return nil
}

// Candidates lists approved candidates, optionally for one position.
func (s *ElectoralService) Candidates(ctx context.Context, position string) ([]models.Candidate, error) {
	pos := models.ElectoralPosition(position)
	if position != "" && !pos.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown electoral position: "+position)
	}
	candidates, err := s.repo.ListCandidates(ctx, pos)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list candidates")
	}
	return candidates, nil
}

// CastVote records one ballot selection. The voter is identified by their
// account, the device by a fingerprint hash derived from the client.
func (s *ElectoralService) CastVote(ctx context.Context, voterID, deviceFingerprint string, req models.CastVoteRequest) (*models.Vote, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ballot payload")
	}
	position := models.ElectoralPosition(req.Position)
	if !position.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown electoral position: "+req.Position)
	}
	if !s.window.Contains(s.now()) {
		return nil, appErrors.ErrVotingClosed
	}

	vote := &models.Vote{
		VoterID:     voterID,
		CandidateID: req.CandidateID,
		Position:    position,
		DeviceHash:  hashDeviceFingerprint(deviceFingerprint),
		CastAt:      s.now(),
	}
	if err := s.repo.CastVote(ctx, vote); err != nil {
		if errors.Is(err, repository.ErrDuplicateVoteRow) {
			return nil, appErrors.ErrDuplicateVote
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cast vote")
	}

	if recent, err := s.repo.RecentVotesByDevice(ctx, vote.DeviceHash, s.now().Add(-5*time.Minute)); err == nil && recent > len(models.ElectoralPositions) {
		s.logger.Warn("rapid voting from single device",
			zap.String("device_hash", vote.DeviceHash),
			zap.Int("recent_votes", recent))
	}

	s.logger.Info("vote cast",
		zap.String("voter_id", voterID),
		zap.String("position", string(position)))
	return vote, nil
}

// Receipt returns the selections a voter has cast so far.
func (s *ElectoralService) Receipt(ctx context.Context, voterID, voterName string) (*models.BallotReceipt, error) {
	votes, err := s.repo.VotesByVoter(ctx, voterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ballot")
	}
	receipt := &models.BallotReceipt{VoterID: voterID, VoterName: voterName, Entries: votes}
	for _, v := range votes {
		if v.CastAt.After(receipt.CastAt) {
			receipt.CastAt = v.CastAt
		}
	}
	return receipt, nil
}

// ReceiptPDF renders the voter's ballot confirmation as a PDF document.
func (s *ElectoralService) ReceiptPDF(ctx context.Context, voterID, voterName string) ([]byte, error) {
	receipt, err := s.Receipt(ctx, voterID, voterName)
	if err != nil {
		return nil, err
	}
	candidates, err := s.repo.ListCandidates(ctx, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load candidates")
	}
	names := make(map[string]string, len(candidates))
	for _, c := range candidates {
		names[c.ApplicationID] = c.StudentName
	}

	rows := make([]map[string]string, 0, len(receipt.Entries))
	for _, entry := range receipt.Entries {
		candidate := names[entry.CandidateID]
		if candidate == "" {
			candidate = entry.CandidateID
		}
		rows = append(rows, map[string]string{
			"Position":  string(entry.Position),
			"Candidate": candidate,
			"Cast At":   entry.CastAt.Format("2006-01-02 15:04"),
		})
	}

	data := export.Dataset{
		Headers: []string{"Position", "Candidate", "Cast At"},
		Rows:    rows,
		Summary: []export.SummaryLine{
			{Label: "Voter", Value: voterName},
			{Label: "Selections", Value: strconv.Itoa(len(rows))},
		},
	}
	return export.NewPDFExporter().Render(data, "Ballot Confirmation")
}

// Results tallies every position with per-candidate percentages.
func (s *ElectoralService) Results(ctx context.Context) ([]models.PositionTally, error) {
	results := make([]models.PositionTally, 0, len(models.ElectoralPositions))
	for _, position := range models.ElectoralPositions {
		tally, err := s.resultsFor(ctx, position)
		if err != nil {
			return nil, err
		}
		results = append(results, *tally)
	}
	return results, nil
}

// ResultsFor tallies one position.
func (s *ElectoralService) ResultsFor(ctx context.Context, position string) (*models.PositionTally, error) {
	pos := models.ElectoralPosition(position)
	if !pos.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown electoral position: "+position)
	}
	return s.resultsFor(ctx, pos)
}

func (s *ElectoralService) resultsFor(ctx context.Context, position models.ElectoralPosition) (*models.PositionTally, error) {
	candidates, err := s.repo.TallyPosition(ctx, position)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally votes")
	}
	total := 0
	for _, c := range candidates {
		total += c.Votes
	}
	for i := range candidates {
		if total > 0 {
			candidates[i].Percent = float64(candidates[i].Votes) / float64(total) * 100
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Votes > candidates[j].Votes })
	return &models.PositionTally{Position: position, TotalVotes: total, Candidates: candidates}, nil
}

func hashDeviceFingerprint(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}
