package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/internal/repository"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

type fakeElectoralRepo struct {
	applications []models.CandidateApplication
	candidates   []models.Candidate
	votes        []models.Vote
	voted        map[string]bool
	tallies      map[models.ElectoralPosition][]models.CandidateTally
}

func newFakeElectoralRepo() *fakeElectoralRepo {
	return &fakeElectoralRepo{
		voted:   map[string]bool{},
		tallies: map[models.ElectoralPosition][]models.CandidateTally{},
	}
}

func (f *fakeElectoralRepo) CreateApplication(ctx context.Context, app *models.CandidateApplication) error {
	app.ID = "app-1"
	f.applications = append(f.applications, *app)
	return nil
}

func (f *fakeElectoralRepo) ListApplications(ctx context.Context, status *models.ApplicationStatus) ([]models.CandidateApplication, error) {
	if status == nil {
		return f.applications, nil
	}
	var out []models.CandidateApplication
	for _, app := range f.applications {
		if app.Status == *status {
			out = append(out, app)
		}
	}
	return out, nil
}

func (f *fakeElectoralRepo) ReviewApplication(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string) error {
	for i := range f.applications {
		if f.applications[i].ID == id {
			f.applications[i].Status = status
			f.applications[i].ReviewedBy = &reviewerID
			return nil
		}
	}
	return fmt.Errorf("no such application %s", id)
}

func (f *fakeElectoralRepo) ListCandidates(ctx context.Context, position models.ElectoralPosition) ([]models.Candidate, error) {
	if position == "" {
		return f.candidates, nil
	}
	var out []models.Candidate
	for _, c := range f.candidates {
		if c.Position == position {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeElectoralRepo) CastVote(ctx context.Context, vote *models.Vote) error {
	key := vote.VoterID + "|" + string(vote.Position)
	if f.voted[key] {
		return repository.ErrDuplicateVoteRow
	}
	f.voted[key] = true
	vote.ID = "vote-1"
	f.votes = append(f.votes, *vote)
	return nil
}

func (f *fakeElectoralRepo) VotesByVoter(ctx context.Context, voterID string) ([]models.Vote, error) {
	var out []models.Vote
	for _, v := range f.votes {
		if v.VoterID == voterID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeElectoralRepo) TallyPosition(ctx context.Context, position models.ElectoralPosition) ([]models.CandidateTally, error) {
	return f.tallies[position], nil
}

func (f *fakeElectoralRepo) RecentVotesByDevice(ctx context.Context, deviceHash string, since time.Time) (int, error) {
	return 0, nil
}

func openWindow() VotingWindow {
	return VotingWindow{
		Open:  time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		Close: time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestCastVoteRecordsBallot(t *testing.T) {
	repo := newFakeElectoralRepo()
	svc := NewElectoralService(repo, openWindow(), nil, nil)
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC) }

	vote, err := svc.CastVote(context.Background(), "student-1", "device-abc", models.CastVoteRequest{
		CandidateID: "app-7",
		Position:    string(models.PositionHeadPrefect),
	})

	require.NoError(t, err)
	assert.Equal(t, models.PositionHeadPrefect, vote.Position)
	assert.Len(t, vote.DeviceHash, 64)
	assert.NotEqual(t, "device-abc", vote.DeviceHash)
}

func TestCastVoteRejectsDuplicatePosition(t *testing.T) {
	repo := newFakeElectoralRepo()
	svc := NewElectoralService(repo, openWindow(), nil, nil)
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC) }

	req := models.CastVoteRequest{CandidateID: "app-7", Position: string(models.PositionHeadPrefect)}
	_, err := svc.CastVote(context.Background(), "student-1", "device-abc", req)
	require.NoError(t, err)

	req.CandidateID = "app-8"
	_, err = svc.CastVote(context.Background(), "student-1", "device-abc", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateVote.Code, appErrors.FromError(err).Code)

	// A different position is still allowed.
	_, err = svc.CastVote(context.Background(), "student-1", "device-abc", models.CastVoteRequest{
		CandidateID: "app-9",
		Position:    string(models.PositionGamesPrefect),
	})
	require.NoError(t, err)
}

func TestCastVoteOutsideWindow(t *testing.T) {
	repo := newFakeElectoralRepo()
	svc := NewElectoralService(repo, openWindow(), nil, nil)
	svc.now = func() time.Time { return time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC) }

	_, err := svc.CastVote(context.Background(), "student-1", "device-abc", models.CastVoteRequest{
		CandidateID: "app-7",
		Position:    string(models.PositionHeadPrefect),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrVotingClosed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.votes)
}

func TestCastVoteUnknownPosition(t *testing.T) {
	svc := NewElectoralService(newFakeElectoralRepo(), openWindow(), nil, nil)

	_, err := svc.CastVote(context.Background(), "student-1", "device-abc", models.CastVoteRequest{
		CandidateID: "app-7",
		Position:    "class_monitor",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplyAndReview(t *testing.T) {
	repo := newFakeElectoralRepo()
	svc := NewElectoralService(repo, openWindow(), nil, nil)

	app, err := svc.Apply(context.Background(), "student-5", models.ApplyRequest{
		Position:  string(models.PositionICTPrefect),
		Manifesto: "I will keep the computer lab open after classes every day.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, app.Status)

	require.NoError(t, svc.Review(context.Background(), app.ID, "admin-1", true))
	assert.Equal(t, models.ApplicationApproved, repo.applications[0].Status)
}

func TestResultsComputesPercentages(t *testing.T) {
	repo := newFakeElectoralRepo()
	repo.tallies[models.PositionHeadPrefect] = []models.CandidateTally{
		{CandidateID: "app-1", StudentName: "Amina Nankya", Votes: 30},
		{CandidateID: "app-2", StudentName: "Brian Okello", Votes: 10},
	}
	svc := NewElectoralService(repo, openWindow(), nil, nil)

	tally, err := svc.ResultsFor(context.Background(), string(models.PositionHeadPrefect))
	require.NoError(t, err)
	assert.Equal(t, 40, tally.TotalVotes)
	assert.InDelta(t, 75.0, tally.Candidates[0].Percent, 0.001)
	assert.InDelta(t, 25.0, tally.Candidates[1].Percent, 0.001)
}

func TestReceiptPDFRendersBallot(t *testing.T) {
	repo := newFakeElectoralRepo()
	repo.candidates = []models.Candidate{
		{ApplicationID: "app-7", StudentID: "student-7", StudentName: "Amina Nankya", Position: models.PositionHeadPrefect},
	}
	svc := NewElectoralService(repo, openWindow(), nil, nil)
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC) }

	_, err := svc.CastVote(context.Background(), "student-1", "device-abc", models.CastVoteRequest{
		CandidateID: "app-7",
		Position:    string(models.PositionHeadPrefect),
	})
	require.NoError(t, err)

	pdf, err := svc.ReceiptPDF(context.Background(), "student-1", "Brian Okello")
	require.NoError(t, err)
	require.NotEmpty(t, pdf)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}

func TestVotingWindowBounds(t *testing.T) {
	w := openWindow()
	assert.False(t, w.Contains(w.Open.Add(-time.Second)))
	assert.True(t, w.Contains(w.Open))
	assert.True(t, w.Contains(w.Close.Add(-time.Second)))
	assert.False(t, w.Contains(w.Close))

	// Zero bounds are open-ended.
	assert.True(t, VotingWindow{}.Contains(time.Now()))
}
