package queue

import "time"

// Status represents the lifecycle of a job row.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var allStatuses = []Status{StatusQueued, StatusRunning, StatusDone, StatusFailed}

// ParseStatus converts a user supplied status name.
func ParseStatus(value string) (Status, bool) {
	for _, status := range allStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// Job is one unit of dispatcher work persisted in the jobs table.
type Job struct {
	ID           int64
	Queue        string
	PayloadID    int64
	Status       Status
	Attempts     int
	ErrorMessage string
	ErrorKind    string
	ResultRef    string
	EnqueuedAt   time.Time
	AvailableAt  time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// IsTerminal reports whether the job reached done or failed.
func (j *Job) IsTerminal() bool {
	return j != nil && (j.Status == StatusDone || j.Status == StatusFailed)
}

// Counts aggregates job counts per status for one queue.
type Counts struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// Total sums all statuses.
func (c Counts) Total() int {
	return c.Queued + c.Running + c.Done + c.Failed
}

func (c *Counts) add(status Status, n int) {
	switch status {
	case StatusQueued:
		c.Queued += n
	case StatusRunning:
		c.Running += n
	case StatusDone:
		c.Done += n
	case StatusFailed:
		c.Failed += n
	}
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Queue    string
	Statuses []Status
	Limit    int
}
