package workflows

type DocumentEmbedInput struct {
	DocumentID string `json:"document_id"`
}

type RetryFailedInput struct {
	Limit                 int `json:"limit"`
	MaxConcurrentChildren int `json:"max_concurrent_children"`
}

type EmbedStatus struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Created    bool   `json:"created"`
	FailReason string `json:"fail_reason,omitempty"`
}

type RetryProgress struct {
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerDocument   map[string]string `json:"per_document_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}
