// CLAUDE:SUMMARY Job record type, lifecycle statuses, and failure codes.
package jobstore

import "time"

// Lifecycle statuses. Received and processing are transient; completed and
// failed are terminal; the only way out of failed is an explicit Resubmit.
const (
	StatusReceived   = "received"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Failure codes recorded on failed jobs.
const (
	FailExtraction = "extraction_error"
	FailAnalysis   = "analysis_error"
	FailInfra      = "transient_infra_error"
)

// Job is one unit of pipeline work, one per submitted document.
//
// Empty string means "not populated" for ExtractedText, ResultJSON,
// FailureCode and FailureMessage, mirroring the NOT NULL DEFAULT ''
// columns.
type Job struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	Filename       string `json:"filename"`
	Format         string `json:"format"`
	SizeBytes      int64  `json:"size_bytes"`
	BlobKey        string `json:"blob_key"`
	Status         string `json:"status"`
	ExtractedText  string `json:"extracted_text,omitempty"`
	PageCount      int    `json:"page_count,omitempty"`
	WordCount      int    `json:"word_count,omitempty"`
	ResultJSON     string `json:"result_json,omitempty"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
	Attempts       int    `json:"attempts"`
	CreatedAt      int64  `json:"created_at"` // unix ms
	UpdatedAt      int64  `json:"updated_at"` // unix ms
}

// Terminal reports whether the job reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Age returns how long ago the job was last updated.
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(j.UpdatedAt))
}
