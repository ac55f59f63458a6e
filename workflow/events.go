package workflow

import "github.com/tailored-agentic-units/stepflow/observability"

const (
	EventRunStart    observability.EventType = "workflow.run.start"
	EventStepStart   observability.EventType = "workflow.step.start"
	EventStepSuccess observability.EventType = "workflow.step.success"
	EventStepError   observability.EventType = "workflow.step.error"
	EventRunEnd      observability.EventType = "workflow.run.end"

	EventCheckpointSave   observability.EventType = "workflow.checkpoint.save"
	EventCheckpointResume observability.EventType = "workflow.checkpoint.resume"
)

// Run end statuses reported in the "status" field of EventRunEnd.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)
