package domain

import "time"

// DefaultLanguage is used when a reindex request names no language.
const DefaultLanguage = "en"

// RetryableStatus marks a failed bulk item the caller may retry as-is.
const RetryableStatus = 429

// ReindexRequest is the mutation operation input.
type ReindexRequest struct {
	Tenant   string `json:"tenant" validate:"required"`
	Language string `json:"language"`
}

// ReindexFailure describes one document the index engine rejected.
type ReindexFailure struct {
	Status    int            `json:"status"`
	Error     *BulkItemError `json:"error"`
	Operation BulkAction     `json:"operation"`
	Document  Document       `json:"document"`
}

// Retryable reports whether the engine hinted that retrying may succeed.
func (f ReindexFailure) Retryable() bool {
	return f.Status == RetryableStatus
}

// ReindexResult is the summary of a reindex run. It is also the persisted
// run record.
type ReindexResult struct {
	ID              string           `json:"id"`
	Tenant          string           `json:"tenant"`
	Language        string           `json:"language"`
	Index           string           `json:"index"`
	Success         bool             `json:"success"`
	TotalCount      int              `json:"totalCount"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
	Message         string           `json:"message"`
	Failures        []ReindexFailure `json:"failures,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt"`
}
