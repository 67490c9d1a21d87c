package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeExclusions(t *testing.T) {
	got := NormalizeExclusions([]string{" U-1 ", "U-2", "", "U-1", "  ", "U-3"})
	assert.Equal(t, []string{"U-1", "U-2", "U-3"}, got)
	assert.Empty(t, NormalizeExclusions(nil))
}

func TestExclusionSetSplitCandidates(t *testing.T) {
	set := NewExclusionSet([]string{"U-2", "U-9"})
	candidates := []UniqueCode{{Code: "U-1"}, {Code: "U-2"}, {Code: "U-3"}}

	remaining, excluded := set.SplitCandidates(candidates)
	assert.Equal(t, 1, excluded)
	require.Len(t, remaining, 2)
	assert.Equal(t, "U-1", remaining[0].Code)
	assert.Equal(t, "U-3", remaining[1].Code)
}

func TestClassifyCandidate(t *testing.T) {
	printed := UniqueCode{Code: "U-1", Status: CodeStatusPrinted}
	shipped := UniqueCode{Code: "U-2", Status: CodeStatusShippedDistributor}

	assert.Equal(t, OutcomePrepare, ClassifyCandidate(printed, "", "job-1"))
	assert.Equal(t, OutcomePrepare, ClassifyCandidate(printed, "job-1", "job-1"))
	assert.Equal(t, OutcomeDuplicate, ClassifyCandidate(printed, "job-0", "job-1"))
	assert.Equal(t, OutcomeInvalid, ClassifyCandidate(shipped, "", "job-1"))
}

func TestNewReverseJob(t *testing.T) {
	b := newTestBatch(t)
	now := time.Now()

	tests := []struct {
		name        string
		orderID     string
		requestedBy string
		cases       []int
		expectError error
	}{
		{name: "Valid", orderID: "ORD-001", requestedBy: "user-1", cases: []int{1, 10}},
		{name: "Missing requester", orderID: "ORD-001", requestedBy: " ", expectError: ErrRequesterRequired},
		{name: "Wrong order", orderID: "ORD-999", requestedBy: "user-1", expectError: ErrOrderMismatch},
		{name: "Case out of range", orderID: "ORD-001", requestedBy: "user-1", cases: []int{11}, expectError: ErrInvalidCaseNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := NewReverseJob(b, tt.orderID, "org-1", tt.requestedBy, []string{"U-1", "U-1 "}, "", tt.cases, now)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ReverseJobQueued, job.Status)
			assert.Equal(t, []string{"U-1"}, job.ExcludeCodes)
			assert.Equal(t, b.ID, job.Filter.BatchID)
		})
	}

	_, err := NewReverseJob(nil, "ORD-001", "", "user-1", nil, "", nil, now)
	assert.ErrorIs(t, err, ErrBatchRequired)
}

func TestReverseJobLifecycle(t *testing.T) {
	now := time.Now()
	job, err := NewReverseJob(newTestBatch(t), "ORD-001", "org-1", "user-1", nil, "", nil, now)
	require.NoError(t, err)

	require.NoError(t, job.Claim("w1", now.Add(time.Minute), now))
	assert.Equal(t, ReverseJobRunning, job.Status)
	assert.ErrorIs(t, job.Claim("w2", now.Add(time.Minute), now), ErrLeaseHeld)

	candidates := 100
	job.CandidateCount = &candidates
	job.RecordChunk(ChunkResult{Candidates: 50, Excluded: 5, Prepared: 40, Duplicates: 3, Invalid: 2, LastSequence: 50}, now.Add(time.Minute), now)
	assert.Equal(t, 50, job.Progress)
	assert.Equal(t, 50, job.Cursor)

	job.RecordChunk(ChunkResult{Candidates: 50, Excluded: 5, Prepared: 45, LastSequence: 100}, now.Add(time.Minute), now)
	require.NoError(t, job.Complete(now))

	assert.Equal(t, ReverseJobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultSummary)
	assert.Equal(t, ResultSummary{
		Prepared:       85,
		Duplicates:     3,
		Invalid:        2,
		TotalAvailable: 90,
		ExcludedCount:  10,
		CandidateCount: 100,
	}, *job.ResultSummary)
	s := job.ResultSummary
	assert.LessOrEqual(t, s.Prepared+s.Duplicates+s.Invalid, s.CandidateCount-s.ExcludedCount)
	assert.IsType(t, &ReverseJobCompletedEvent{}, job.DomainEvents[0])

	assert.ErrorIs(t, job.Fail("late", now), ErrInvalidTransition)
}

func TestReverseJobAllExcluded(t *testing.T) {
	now := time.Now()
	job, err := NewReverseJob(newTestBatch(t), "ORD-001", "", "user-1", nil, "", nil, now)
	require.NoError(t, err)
	require.NoError(t, job.Claim("w1", now.Add(time.Minute), now))

	candidates := 50
	job.CandidateCount = &candidates
	job.RecordChunk(ChunkResult{Candidates: 50, Excluded: 50, LastSequence: 50}, now, now)
	require.NoError(t, job.Complete(now))

	assert.Equal(t, 0, job.PreparedCount)
	assert.Equal(t, 0, job.ResultSummary.TotalAvailable)
	assert.Equal(t, 50, job.ResultSummary.ExcludedCount)
	assert.Empty(t, job.ErrorMessage)
}

func TestReverseJobFail(t *testing.T) {
	now := time.Now()
	job, err := NewReverseJob(newTestBatch(t), "ORD-001", "", "user-1", nil, "", nil, now)
	require.NoError(t, err)

	require.NoError(t, job.Fail("store unavailable", now))
	assert.Equal(t, ReverseJobFailed, job.Status)
	assert.True(t, job.Status.IsTerminal())
	assert.Equal(t, "store unavailable", job.ErrorMessage)
	assert.ErrorIs(t, job.Claim("w1", now, now), ErrInvalidTransition)
}
