package domain

import "errors"

// ErrInvalidPolicy indicates that a consensus policy is out of range.
var ErrInvalidPolicy = errors.New("invalid consensus policy")

// ErrInvalidPipelineRequest indicates that a pipeline run request is malformed.
var ErrInvalidPipelineRequest = errors.New("invalid pipeline request")

// ErrMissingDocument indicates that a stage has no document to audit.
var ErrMissingDocument = errors.New("no document for stage")

// ErrNoAuditors indicates that a stage has no auditors configured.
var ErrNoAuditors = errors.New("no auditors configured for stage")
