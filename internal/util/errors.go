package util

import "errors"

var (
	ErrAuth              = errors.New("unauthenticated")
	ErrNotFound          = errors.New("not found")
	ErrFetch             = errors.New("document fetch failed")
	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrEmbedding         = errors.New("embedding failed")
	ErrStoreWrite        = errors.New("vector store write failed")
	ErrRetrieval         = errors.New("retrieval failed")
	ErrNamespaceMissing  = errors.New("namespace not embedded")
	ErrPersistence       = errors.New("persistence failed")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)
