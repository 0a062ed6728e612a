package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"docchat/internal/activities"
)

const (
	QueryGetEmbedStatus = "GetEmbedStatus"
	QueryGetProgress    = "GetProgress"
)

const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// DocumentEmbedWorkflow embeds one uploaded document ahead of its first chat
// turn. Documents that can never be embedded end in "failed" without error.
func DocumentEmbedWorkflow(ctx workflow.Context, input DocumentEmbedInput) (string, error) {
	status := EmbedStatus{DocumentID: input.DocumentID, Status: StatusProcessing}
	if err := workflow.SetQueryHandler(ctx, QueryGetEmbedStatus, func() (EmbedStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        2 * time.Minute,
			MaximumAttempts:        4,
			NonRetryableErrorTypes: []string{activities.ErrTypeDocumentUnavailable},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out activities.EnsureEmbeddedOutput
	err := workflow.ExecuteActivity(ctx, "EnsureEmbeddedActivity", activities.EnsureEmbeddedInput{DocumentID: input.DocumentID}).Get(ctx, &out)
	if err != nil {
		status.Status = StatusFailed
		status.FailReason = err.Error()
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == activities.ErrTypeDocumentUnavailable {
			workflow.GetLogger(ctx).Warn("document cannot be embedded", "doc_id", input.DocumentID, "error", err)
			return status.Status, nil
		}
		return "", err
	}
	status.Status = StatusComplete
	status.ChunkCount = out.ChunkCount
	status.Created = out.Created
	return status.Status, nil
}

// RetryFailedNamespacesWorkflow re-runs embedding for failed namespaces, at most
// MaxConcurrentChildren documents at a time.
func RetryFailedNamespacesWorkflow(ctx workflow.Context, input RetryFailedInput) (RetryProgress, error) {
	progress := RetryProgress{PerDocument: map[string]string{}, ChildWorkflow: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (RetryProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}
	var listOut activities.ListFailedNamespacesOutput
	if err := workflow.ExecuteActivity(ctx, "ListFailedNamespacesActivity", activities.ListFailedNamespacesInput{Limit: limit}).Get(ctx, &listOut); err != nil {
		return progress, err
	}
	ids := listOut.DocumentIDs
	progress.Total = len(ids)
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	for i := 0; i < len(ids); i += maxChildren {
		end := min(i+maxChildren, len(ids))
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		for _, id := range ids[i:end] {
			progress.PerDocument[id] = StatusProcessing
			workflowID := EmbedWorkflowID(id) + "-retry-" + runID
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, DocumentEmbedWorkflow, DocumentEmbedInput{DocumentID: id}))
			progress.ChildWorkflow[id] = workflowID
		}
		for idx, f := range futures {
			id := ids[i+idx]
			var childStatus string
			if err := f.Get(ctx, &childStatus); err != nil || childStatus != StatusComplete {
				progress.Failed++
				progress.PerDocument[id] = StatusFailed
				continue
			}
			progress.Done++
			progress.PerDocument[id] = childStatus
		}
	}

	_ = workflow.ExecuteActivity(ctx, "WriteRetrySummaryActivity", activities.WriteRetrySummaryInput{
		RunID: runID,
		Summary: map[string]any{
			"total":               progress.Total,
			"done":                progress.Done,
			"failed":              progress.Failed,
			"per_document_status": progress.PerDocument,
			"generated_at":        workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return progress, nil
}

func EmbedWorkflowID(documentID string) string {
	return "embed-" + documentID
}
