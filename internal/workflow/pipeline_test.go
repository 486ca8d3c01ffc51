package workflow_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ErikCohenDev/consensus-council/internal/audit"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/pipeline"
	"github.com/ErikCohenDev/consensus-council/internal/workflow"
	pkgactivity "github.com/ErikCohenDev/consensus-council/pkg/activity"
)

// passWhen audits a document as PASS when it contains marker.
type passWhen struct {
	marker string

	mu    sync.Mutex
	calls []string
}

func (p *passWhen) ExecuteStageAudit(_ context.Context, stage, doc string) (*domain.OrchestrationResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, stage)
	p.mu.Unlock()

	decision := domain.DecisionFail
	if strings.Contains(doc, p.marker) {
		decision = domain.DecisionPass
	}
	return &domain.OrchestrationResult{
		Stage:            stage,
		Success:          true,
		AuditorResponses: []domain.AuditorResponse{},
		FailedAuditors:   []string{},
		ConsensusResult:  &domain.ConsensusResult{FinalDecision: decision},
		TotalTokens:      10,
	}, nil
}

type memoryRuns struct {
	mu   sync.Mutex
	runs []*domain.PipelineSummary
}

func (m *memoryRuns) SaveRun(_ context.Context, s *domain.PipelineSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, s)
	return nil
}

func appendMarker(marker string) pipeline.RevisionStrategy {
	return pipeline.RevisionFunc(func(_ context.Context, docs map[string]string, results map[string]*domain.OrchestrationResult, _ []domain.AlignmentResult) (map[string]string, error) {
		out := map[string]string{}
		for stage, res := range results {
			if !res.Passed() {
				out[stage] = docs[stage] + " " + marker
			}
		}
		return out, nil
	})
}

type harness struct {
	env  *testsuite.TestWorkflowEnvironment
	runs *memoryRuns
}

func newHarness(t *testing.T, auditor pipeline.StageAuditor, alignment pipeline.AlignmentValidator, revisions pipeline.RevisionStrategy) *harness {
	t.Helper()
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	runs := &memoryRuns{}
	acts := audit.NewActivities(pkgactivity.NewBaseActivities(nil), auditor, alignment, revisions, runs)
	env.RegisterActivity(acts.ExecuteStageAudit)
	env.RegisterActivity(acts.ValidateAlignment)
	env.RegisterActivity(acts.ProposeRevisions)
	env.RegisterActivity(acts.SaveRun)
	return &harness{env: env, runs: runs}
}

func (h *harness) run(t *testing.T, in workflow.PipelineInput) *domain.PipelineSummary {
	t.Helper()
	h.env.ExecuteWorkflow(workflow.PipelineWorkflow, in)
	require.True(t, h.env.IsWorkflowCompleted())
	require.NoError(t, h.env.GetWorkflowError())

	var summary *domain.PipelineSummary
	require.NoError(t, h.env.GetWorkflowResult(&summary))
	return summary
}

func TestPipelineWorkflowSucceeds(t *testing.T) {
	auditor := &passWhen{marker: "ok"}
	h := newHarness(t, auditor, nil, nil)

	summary := h.run(t, workflow.PipelineInput{
		RunID:         "run-1",
		Documents:     map[string]string{"vision": "ok vision", "prd": "ok prd", "architecture": "ok arch"},
		Stages:        []string{"vision", "prd", "architecture"},
		MaxIterations: 3,
	})

	assert.Equal(t, domain.PipelineSuccess, summary.State)
	assert.True(t, summary.Success)
	assert.Equal(t, 1, summary.Iterations)
	assert.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.AlignmentResults, 2)
	assert.Equal(t, []string{"vision", "prd", "architecture"}, auditor.calls, "stages are audited one after another in order")
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))

	require.Len(t, h.runs.runs, 1)
	assert.Equal(t, domain.PipelineSuccess, h.runs.runs[0].State)
	assert.Equal(t, int64(30), h.runs.runs[0].TotalTokens())
}

// TestPipelineWorkflowAuditsStagesSequentially checks that no stage audit
// starts before the previous one has returned.
func TestPipelineWorkflowAuditsStagesSequentially(t *testing.T) {
	auditor := &passWhen{marker: "ok"}
	h := newHarness(t, auditor, nil, nil)

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
		order    []string
	)
	h.env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
		if info.ActivityType.Name != audit.ActivityExecuteStageAudit {
			return
		}
		var in audit.StageAuditInput
		assert.NoError(t, args.Get(&in))
		mu.Lock()
		defer mu.Unlock()
		inFlight++
		peak = max(peak, inFlight)
		order = append(order, in.Stage)
	})
	h.env.SetOnActivityCompletedListener(func(info *activity.Info, _ converter.EncodedValue, _ error) {
		if info.ActivityType.Name != audit.ActivityExecuteStageAudit {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		inFlight--
	})

	h.run(t, workflow.PipelineInput{
		Documents:     map[string]string{"a": "ok", "b": "ok", "c": "ok", "d": "ok"},
		Stages:        []string{"d", "c", "b", "a"},
		MaxIterations: 1,
	})

	assert.Equal(t, []string{"d", "c", "b", "a"}, order)
	assert.Equal(t, 1, peak)
}

func TestPipelineWorkflowRevisesUntilSuccess(t *testing.T) {
	h := newHarness(t, &passWhen{marker: "revised"}, nil, appendMarker("revised"))

	summary := h.run(t, workflow.PipelineInput{
		Documents:     map[string]string{"vision": "draft", "prd": "draft"},
		Stages:        []string{"vision", "prd"},
		MaxIterations: 3,
	})

	assert.Equal(t, domain.PipelineSuccess, summary.State)
	assert.Equal(t, 2, summary.Iterations)
	assert.Equal(t, "draft revised", summary.Documents["prd"])
	assert.NotEmpty(t, summary.RunID, "run ID defaults to the workflow ID")
}

func TestPipelineWorkflowExhausts(t *testing.T) {
	h := newHarness(t, &passWhen{marker: "never"}, nil, appendMarker("again"))

	summary := h.run(t, workflow.PipelineInput{
		Documents:     map[string]string{"prd": "draft"},
		Stages:        []string{"prd"},
		MaxIterations: 2,
	})

	assert.Equal(t, domain.PipelineExhausted, summary.State)
	assert.False(t, summary.Success)
	assert.Equal(t, 2, summary.Iterations)
	assert.Equal(t, "draft again", summary.Documents["prd"])
}

func TestPipelineWorkflowStopsWithoutRevisions(t *testing.T) {
	h := newHarness(t, &passWhen{marker: "never"}, nil, nil)

	summary := h.run(t, workflow.PipelineInput{
		Documents:     map[string]string{"prd": "draft"},
		Stages:        []string{"prd"},
		MaxIterations: 5,
	})

	assert.Equal(t, domain.PipelineStoppedNoRevision, summary.State)
	assert.Equal(t, 1, summary.Iterations)
	require.Len(t, h.runs.runs, 1)
}

func TestPipelineWorkflowMissingDocument(t *testing.T) {
	auditor := &passWhen{marker: "ok"}
	h := newHarness(t, auditor, nil, nil)

	summary := h.run(t, workflow.PipelineInput{
		Documents:     map[string]string{"vision": "ok"},
		Stages:        []string{"vision", "prd"},
		MaxIterations: 1,
	})

	assert.Equal(t, domain.PipelineExhausted, summary.State)
	assert.Equal(t, []string{"vision"}, auditor.calls)
	prd := summary.StageResults["prd"]
	require.NotNil(t, prd)
	assert.Nil(t, prd.ConsensusResult)
	assert.Contains(t, prd.Error, "prd")
}

func TestPipelineWorkflowRevisesOnMisalignment(t *testing.T) {
	h := newHarness(t, &passWhen{marker: ""}, nil, pipeline.RevisionFunc(
		func(_ context.Context, docs map[string]string, _ map[string]*domain.OrchestrationResult, _ []domain.AlignmentResult) (map[string]string, error) {
			return map[string]string{"prd": docs["prd"] + " aligned"}, nil
		}))

	misaligned := []domain.AlignmentResult{{SourceStage: "vision", TargetStage: "prd", AlignmentScore: 0.2}}
	aligned := []domain.AlignmentResult{{SourceStage: "vision", TargetStage: "prd", IsAligned: true, AlignmentScore: 0.9}}
	h.env.OnActivity(audit.ActivityValidateAlignment, mock.Anything, mock.Anything).Return(misaligned, nil).Once()
	h.env.OnActivity(audit.ActivityValidateAlignment, mock.Anything, mock.Anything).Return(aligned, nil).Once()

	summary := h.run(t, workflow.PipelineInput{
		Documents:     map[string]string{"vision": "v", "prd": "p"},
		Stages:        []string{"vision", "prd"},
		MaxIterations: 3,
	})

	assert.Equal(t, domain.PipelineSuccess, summary.State)
	assert.Equal(t, 2, summary.Iterations)
	assert.Equal(t, "p aligned", summary.Documents["prd"])
	h.env.AssertExpectations(t)
}

func TestPipelineWorkflowValidation(t *testing.T) {
	tests := []struct {
		name string
		in   workflow.PipelineInput
	}{
		{"zero iterations", workflow.PipelineInput{Stages: []string{"prd"}}},
		{"no stages", workflow.PipelineInput{MaxIterations: 1}},
		{"duplicate stage", workflow.PipelineInput{Stages: []string{"prd", "prd"}, MaxIterations: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &passWhen{}, nil, nil)
			h.env.ExecuteWorkflow(workflow.PipelineWorkflow, tt.in)
			require.True(t, h.env.IsWorkflowCompleted())

			err := h.env.GetWorkflowError()
			var appErr *temporal.ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "Validation", appErr.Type())
			assert.True(t, appErr.NonRetryable())
			assert.Empty(t, h.runs.runs)
		})
	}
}

func TestPipelineWorkflowDeterminism(t *testing.T) {
	in := workflow.PipelineInput{
		RunID:         "run-d",
		Documents:     map[string]string{"vision": "draft", "prd": "draft"},
		Stages:        []string{"vision", "prd"},
		MaxIterations: 3,
	}

	var states []domain.PipelineState
	var iterations []int
	for range 3 {
		h := newHarness(t, &passWhen{marker: "revised"}, nil, appendMarker("revised"))
		s := h.run(t, in)
		states = append(states, s.State)
		iterations = append(iterations, s.Iterations)
	}
	assert.Equal(t, []domain.PipelineState{domain.PipelineSuccess, domain.PipelineSuccess, domain.PipelineSuccess}, states)
	assert.Equal(t, []int{2, 2, 2}, iterations)
}
