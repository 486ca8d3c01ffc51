// Package worker registers the pipeline workflow and its activities with a
// Temporal worker.
package worker

import (
	"go.temporal.io/sdk/activity"

	"github.com/ErikCohenDev/consensus-council/internal/audit"
	"github.com/ErikCohenDev/consensus-council/internal/workflow"
)

// Registry is the registration surface shared by sdk workers and the
// Temporal test environment.
type Registry interface {
	RegisterWorkflow(w any)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

// RegisterAll registers PipelineWorkflow and every audit activity under the
// names the workflow schedules them by. Call it once before starting the
// worker.
func RegisterAll(r Registry, acts *audit.Activities) {
	r.RegisterWorkflow(workflow.PipelineWorkflow)

	r.RegisterActivityWithOptions(acts.ExecuteStageAudit, activity.RegisterOptions{Name: audit.ActivityExecuteStageAudit})
	r.RegisterActivityWithOptions(acts.ValidateAlignment, activity.RegisterOptions{Name: audit.ActivityValidateAlignment})
	r.RegisterActivityWithOptions(acts.ProposeRevisions, activity.RegisterOptions{Name: audit.ActivityProposeRevisions})
	r.RegisterActivityWithOptions(acts.SaveRun, activity.RegisterOptions{Name: audit.ActivitySaveRun})
}
