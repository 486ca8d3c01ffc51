package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ErikCohenDev/consensus-council/internal/app"
	"github.com/ErikCohenDev/consensus-council/internal/domain"
	"github.com/ErikCohenDev/consensus-council/internal/pipeline"
	"github.com/ErikCohenDev/consensus-council/internal/worker"
	"github.com/ErikCohenDev/consensus-council/internal/workflow"
)

func (c *cli) auditCmd() *cobra.Command {
	var stage, docPath string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit one stage document with its auditor panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := os.ReadFile(docPath)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Auditor.ExecuteStageAudit(ctx, stage, string(doc))
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					if err := printJSON(c.out, res); err != nil {
						return err
					}
				} else {
					renderStageAudit(c.out, res)
				}
				if !res.Passed() {
					return fmt.Errorf("%w: stage %s", errGateFailed, stage)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage name, e.g. prd")
	cmd.Flags().StringVar(&docPath, "doc", "", "path to the stage document")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var (
		docsDir       string
		stages        []string
		maxIterations int
		useTemporal   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the gated pipeline over <docs-dir>/<stage>.md",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if len(stages) == 0 {
					stages = a.Stages()
				}
				if maxIterations == 0 {
					maxIterations = a.Config.Pipeline.MaxIterations
				}
				docs, err := readStageDocuments(docsDir, stages)
				if err != nil {
					return err
				}

				req := pipeline.Request{
					RunID:         uuid.NewString(),
					Documents:     docs,
					Stages:        stages,
					MaxIterations: maxIterations,
				}
				if err := req.Validate(); err != nil {
					return err
				}

				run := a.RunPipeline
				if useTemporal {
					run = func(ctx context.Context, req pipeline.Request) (*domain.PipelineSummary, error) {
						return runOnTemporal(ctx, a, req)
					}
				}
				summary, err := run(ctx, req)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					if err := printJSON(c.out, summary); err != nil {
						return err
					}
				} else {
					renderSummary(c.out, summary)
				}
				if !summary.Success {
					return fmt.Errorf("%w: pipeline %s", errGateFailed, summary.State)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&docsDir, "docs-dir", "", "directory holding one <stage>.md per stage")
	cmd.Flags().StringSliceVar(&stages, "stages", nil, "stage order (default from config)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration limit (default from config)")
	cmd.Flags().BoolVar(&useTemporal, "temporal", false, "run as a Temporal workflow on the configured task queue")
	_ = cmd.MarkFlagRequired("docs-dir")
	return cmd
}

func runOnTemporal(ctx context.Context, a *app.App, req pipeline.Request) (*domain.PipelineSummary, error) {
	client, err := worker.Dial(a.Config.Temporal, a.Logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return worker.StartPipeline(ctx, client, a.Config.Temporal.TaskQueue, workflow.PipelineInput{
		RunID:         req.RunID,
		Documents:     req.Documents,
		Stages:        req.Stages,
		MaxIterations: req.MaxIterations,
	})
}

// readStageDocuments loads <dir>/<stage>.md for each stage. Absent files are
// left out so the pipeline records the stage as missing.
func readStageDocuments(dir string, stages []string) (map[string]string, error) {
	docs := make(map[string]string, len(stages))
	for _, stage := range stages {
		data, err := os.ReadFile(filepath.Join(dir, stage+".md"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s document: %w", stage, err)
		}
		docs[stage] = string(data)
	}
	return docs, nil
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded pipeline runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				runs, err := a.Store.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return printJSON(c.out, runs)
				}
				renderHistory(c.out, runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list; 0 lists all")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the final iteration of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				summary, err := a.Store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return printJSON(c.out, summary)
				}
				renderSummary(c.out, summary)
				return nil
			})
		},
	}
}

func (c *cli) workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve pipeline workflows and audit activities on the Temporal task queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(_ context.Context, a *app.App) error {
				client, err := worker.Dial(a.Config.Temporal, a.Logger)
				if err != nil {
					return err
				}
				defer client.Close()

				w := worker.New(client, a.Config.Temporal.TaskQueue, a.Activities())
				a.Logger.Info("worker started",
					"component", "worker",
					"task_queue", a.Config.Temporal.TaskQueue,
					"namespace", a.Config.Temporal.Namespace)
				return w.Run(sdkworker.InterruptCh())
			})
		},
	}
}
