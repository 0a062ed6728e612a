package workflows

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
)

// Starter is the part of the Temporal client the scheduler needs.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
}

// Scheduler starts background embedding for newly registered documents.
type Scheduler struct {
	client    Starter
	taskQueue string
}

func NewScheduler(c Starter, taskQueue string) *Scheduler {
	return &Scheduler{client: c, taskQueue: taskQueue}
}

// ScheduleEmbedding starts DocumentEmbedWorkflow for the document. A run that
// is already in progress counts as scheduled.
func (s *Scheduler) ScheduleEmbedding(ctx context.Context, documentID string) (string, error) {
	wfID := EmbedWorkflowID(documentID)
	we, err := s.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, DocumentEmbedWorkflow, DocumentEmbedInput{DocumentID: documentID})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return wfID, nil
		}
		return "", fmt.Errorf("start embed workflow %s: %w", wfID, err)
	}
	return we.GetID(), nil
}

// ScheduleRetry starts one RetryFailedNamespacesWorkflow run.
func (s *Scheduler) ScheduleRetry(ctx context.Context, input RetryFailedInput) (string, string, error) {
	we, err := s.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       "retry-failed-namespaces",
		TaskQueue:                                s.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, RetryFailedNamespacesWorkflow, input)
	if err != nil {
		return "", "", fmt.Errorf("start retry workflow: %w", err)
	}
	return we.GetID(), we.GetRunID(), nil
}
