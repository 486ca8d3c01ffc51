package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ErikCohenDev/consensus-council/internal/audit"
	"github.com/ErikCohenDev/consensus-council/internal/config"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/workflow"
)

// Dial connects to the Temporal frontend named by cfg, logging through logger.
func Dial(cfg config.TemporalConfig, logger *slog.Logger) (client.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    tlog.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// New builds a worker on taskQueue with everything registered. The caller
// starts it with Run or Start.
func New(c client.Client, taskQueue string, acts *audit.Activities) sdkworker.Worker {
	w := sdkworker.New(c, taskQueue, sdkworker.Options{})
	RegisterAll(w, acts)
	return w
}

// StartPipeline starts PipelineWorkflow with the run ID as workflow ID and
// waits for its summary.
func StartPipeline(ctx context.Context, c client.Client, taskQueue string, in workflow.PipelineInput) (*domain.PipelineSummary, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        in.RunID,
		TaskQueue: taskQueue,
	}, workflow.PipelineWorkflow, in)
	if err != nil {
		return nil, fmt.Errorf("start pipeline workflow: %w", err)
	}

	var summary *domain.PipelineSummary
	if err := run.Get(ctx, &summary); err != nil {
		return nil, fmt.Errorf("pipeline workflow %s: %w", run.GetID(), err)
	}
	return summary, nil
}
