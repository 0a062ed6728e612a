package activities

import "go.temporal.io/sdk/worker"

func Register(r worker.Registry, a *Activities) {
	r.RegisterActivity(a.EnsureEmbeddedActivity)
	r.RegisterActivity(a.ListFailedNamespacesActivity)
	r.RegisterActivity(a.WriteRetrySummaryActivity)
}
