package models

// JobStatus is the lifecycle state of an asynchronous scrape job.
type JobStatus string

const (
	JobQueued     JobStatus = "Queued"
	JobProcessing JobStatus = "Processing"
	JobCompleted  JobStatus = "Completed"
	JobFailed     JobStatus = "Failed"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ScrapeJob is an issued asynchronous job.
type ScrapeJob struct {
	ID             string    `json:"id"`
	Ticker         string    `json:"ticker"`
	Status         JobStatus `json:"status"`
	ExtendedStatus string    `json:"extended_status,omitempty"`
}

// PolledJob is one entry returned by the job-status source.
type PolledJob struct {
	ID             string
	Status         JobStatus
	ExtendedStatus string
}

// JobView is a polled job resolved to its ticker.
type JobView struct {
	Ticker         string    `json:"ticker"`
	Status         JobStatus `json:"status"`
	ExtendedStatus string    `json:"extended_status,omitempty"`
}
