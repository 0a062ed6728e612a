package activities

type EnsureEmbeddedInput struct {
	DocumentID string `json:"document_id"`
}

type EnsureEmbeddedOutput struct {
	Namespace  string `json:"namespace"`
	ChunkCount int    `json:"chunk_count"`
	Created    bool   `json:"created"`
}

type ListFailedNamespacesInput struct {
	Limit int `json:"limit"`
}

type ListFailedNamespacesOutput struct {
	DocumentIDs []string `json:"document_ids"`
}

type WriteRetrySummaryInput struct {
	RunID   string         `json:"run_id"`
	Summary map[string]any `json:"summary"`
}
