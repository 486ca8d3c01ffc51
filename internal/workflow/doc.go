// Package workflow holds the Temporal workflow that drives the gated
// document pipeline as a durable execution.
//
// The workflow owns only control flow: iteration counting, the gate
// decision and document bookkeeping. Stage audits, alignment checks,
// revision proposals and persistence run as activities from
// internal/audit, so every model call happens outside workflow code.
//
// Workflow code must stay deterministic. Time comes from workflow.Now and
// the run ID defaults to the workflow ID.
package workflow
