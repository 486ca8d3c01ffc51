package pipeline

import (
	"context"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
)

// StageAuditor audits one stage document. It is satisfied by
// *orchestrator.Orchestrator.
type StageAuditor interface {
	ExecuteStageAudit(ctx context.Context, stage, document string) (*domain.OrchestrationResult, error)
}

// AlignmentValidator checks consistency between consecutive stage documents.
// Implementations report misalignment through the results; an error means
// the check itself could not run.
type AlignmentValidator interface {
	ValidateDocumentChain(ctx context.Context, documents []domain.StageDocument) ([]domain.AlignmentResult, error)
}

// AlignmentFunc adapts a function to AlignmentValidator.
type AlignmentFunc func(ctx context.Context, documents []domain.StageDocument) ([]domain.AlignmentResult, error)

// ValidateDocumentChain implements AlignmentValidator.
func (f AlignmentFunc) ValidateDocumentChain(ctx context.Context, documents []domain.StageDocument) ([]domain.AlignmentResult, error) {
	return f(ctx, documents)
}

// AlwaysAligned reports every consecutive pair as fully aligned.
type AlwaysAligned struct{}

// ValidateDocumentChain implements AlignmentValidator.
func (AlwaysAligned) ValidateDocumentChain(_ context.Context, documents []domain.StageDocument) ([]domain.AlignmentResult, error) {
	if len(documents) < 2 {
		return []domain.AlignmentResult{}, nil
	}
	out := make([]domain.AlignmentResult, 0, len(documents)-1)
	for i := 1; i < len(documents); i++ {
		out = append(out, domain.AlignmentResult{
			SourceStage:    documents[i-1].Stage,
			TargetStage:    documents[i].Stage,
			IsAligned:      true,
			AlignmentScore: 1,
			Misalignments:  []string{},
		})
	}
	return out, nil
}

// RevisionStrategy proposes new document content after a failed iteration.
// An empty map means no revision is possible and the run stops.
type RevisionStrategy interface {
	ProposeRevisions(
		ctx context.Context,
		documents map[string]string,
		stageResults map[string]*domain.OrchestrationResult,
		alignment []domain.AlignmentResult,
	) (map[string]string, error)
}

// RevisionFunc adapts a function to RevisionStrategy.
type RevisionFunc func(
	ctx context.Context,
	documents map[string]string,
	stageResults map[string]*domain.OrchestrationResult,
	alignment []domain.AlignmentResult,
) (map[string]string, error)

// ProposeRevisions implements RevisionStrategy.
func (f RevisionFunc) ProposeRevisions(
	ctx context.Context,
	documents map[string]string,
	stageResults map[string]*domain.OrchestrationResult,
	alignment []domain.AlignmentResult,
) (map[string]string, error) {
	return f(ctx, documents, stageResults, alignment)
}

// NoRevision never proposes changes.
type NoRevision struct{}

// ProposeRevisions implements RevisionStrategy.
func (NoRevision) ProposeRevisions(
	context.Context,
	map[string]string,
	map[string]*domain.OrchestrationResult,
	[]domain.AlignmentResult,
) (map[string]string, error) {
	return map[string]string{}, nil
}
