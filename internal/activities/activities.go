package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"docchat/internal/embedstore"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/util"
)

// ErrTypeDocumentUnavailable marks failures that retrying cannot fix.
const ErrTypeDocumentUnavailable = "DocumentUnavailable"

type Ensurer interface {
	EnsureEmbedded(ctx context.Context, documentID string) (embedstore.Handle, error)
}

type NamespaceLister interface {
	ListNamespaces(ctx context.Context, status models.NamespaceStatus, limit int) ([]models.Namespace, error)
}

type Activities struct {
	ensurer    Ensurer
	namespaces NamespaceLister
	outRoot    string
	log        *slog.Logger
}

func New(ensurer Ensurer, namespaces NamespaceLister, outRoot string, log *slog.Logger) *Activities {
	if log == nil {
		log = slog.Default()
	}
	return &Activities{ensurer: ensurer, namespaces: namespaces, outRoot: outRoot, log: log}
}

func (a *Activities) EnsureEmbeddedActivity(ctx context.Context, in EnsureEmbeddedInput) (EnsureEmbeddedOutput, error) {
	h, err := a.ensurer.EnsureEmbedded(ctx, in.DocumentID)
	if err != nil {
		a.log.Warn("ensure embedded failed", "doc_id", in.DocumentID, "attempt", attempt(ctx), "err", err)
		if !retryable(err) {
			return EnsureEmbeddedOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeDocumentUnavailable, err)
		}
		return EnsureEmbeddedOutput{}, err
	}
	return EnsureEmbeddedOutput{Namespace: h.Namespace, ChunkCount: h.ChunkCount, Created: h.Created}, nil
}

func (a *Activities) ListFailedNamespacesActivity(ctx context.Context, in ListFailedNamespacesInput) (ListFailedNamespacesOutput, error) {
	nss, err := a.namespaces.ListNamespaces(ctx, models.NamespaceFailed, in.Limit)
	if err != nil {
		return ListFailedNamespacesOutput{}, fmt.Errorf("list failed namespaces: %w", err)
	}
	ids := make([]string, 0, len(nss))
	for _, ns := range nss {
		ids = append(ids, ns.Name)
	}
	return ListFailedNamespacesOutput{DocumentIDs: ids}, nil
}

// WriteRetrySummaryActivity stores the retry run summary under the output root.
func (a *Activities) WriteRetrySummaryActivity(_ context.Context, in WriteRetrySummaryInput) error {
	if a.outRoot == "" {
		return nil
	}
	return util.WriteJSONAtomic(util.SafeJoin(filepath.Join(a.outRoot, "retries"), in.RunID+".json"), in.Summary)
}

// retryable reports whether another attempt could succeed. Missing documents,
// PDFs without text and permanent provider errors are final.
func retryable(err error) bool {
	switch {
	case errors.Is(err, util.ErrNotFound), errors.Is(err, util.ErrNoExtractableText):
		return false
	case errors.Is(err, util.ErrEmbedding):
		return providers.Retryable(err)
	default:
		return true
	}
}

func attempt(ctx context.Context) int32 {
	if !activity.IsActivity(ctx) {
		return 0
	}
	return activity.GetInfo(ctx).Attempt
}
