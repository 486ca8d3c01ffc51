package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/store"
)

func summary(id string, started time.Time, state domain.PipelineState) *domain.PipelineSummary {
	return &domain.PipelineSummary{
		RunID:         id,
		Success:       state == domain.PipelineSuccess,
		State:         state,
		Stages:        []string{"vision", "prd"},
		Iterations:    2,
		MaxIterations: 3,
		StageResults: map[string]*domain.OrchestrationResult{
			"vision": {
				Stage:           "vision",
				Success:         true,
				TotalTokens:     120,
				TotalCost:       0.25,
				ConsensusResult: &domain.ConsensusResult{FinalDecision: domain.DecisionPass, FailureReasons: []string{}},
			},
			"prd": {Stage: "prd", FailedAuditors: []string{"security"}, TotalTokens: 30, TotalCost: 0.05},
		},
		AlignmentResults: []domain.AlignmentResult{{SourceStage: "vision", TargetStage: "prd", IsAligned: true, AlignmentScore: 0.9}},
		Documents:        map[string]string{"vision": "v", "prd": "p"},
		StartedAt:        started,
		FinishedAt:       started.Add(time.Minute),
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "runs", "council.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, summary("run-1", started, domain.PipelineExhausted)))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineExhausted, got.State)
	assert.Equal(t, 2, got.Iterations)
	assert.Nil(t, got.StageResults["prd"].ConsensusResult)
	assert.Equal(t, domain.DecisionPass, got.StageResults["vision"].ConsensusResult.FinalDecision)
	assert.Equal(t, "p", got.Documents["prd"])
	assert.True(t, got.StartedAt.Equal(started))

	_, err = s.GetRun(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveRunReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Now().UTC()

	require.NoError(t, s.SaveRun(ctx, summary("run-1", started, domain.PipelineExhausted)))
	require.NoError(t, s.SaveRun(ctx, summary("run-1", started, domain.PipelineSuccess)))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.PipelineSuccess, runs[0].State)
	assert.True(t, runs[0].Success)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.SaveRun(ctx, summary(id, base.Add(time.Duration(i)*time.Hour), domain.PipelineSuccess)))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "mid", runs[1].RunID)
	assert.Equal(t, []string{"vision", "prd"}, runs[0].Stages)
	assert.Equal(t, int64(150), runs[0].TotalTokens)
	assert.InDelta(t, 0.30, runs[0].TotalCost, 1e-9)
	assert.Equal(t, time.Minute, runs[0].FinishedAt.Sub(runs[0].StartedAt))

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSaveRunRequiresID(t *testing.T) {
	s := openStore(t)
	require.Error(t, s.SaveRun(context.Background(), &domain.PipelineSummary{}))
	require.Error(t, s.SaveRun(context.Background(), nil))
}

func TestInMemoryStore(t *testing.T) {
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveRun(context.Background(), summary("m", time.Now(), domain.PipelineSuccess)))
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
