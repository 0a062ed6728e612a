package workflows

import "go.temporal.io/sdk/worker"

// Register adds the embedding workflows to a worker's registry.
func Register(r worker.Registry) {
	r.RegisterWorkflow(DocumentEmbedWorkflow)
	r.RegisterWorkflow(RetryFailedNamespacesWorkflow)
}
