package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueAccessReview carries the access review tasks.
	QueueAccessReview = "access-review"
	// TaskUsersExpiryReport reports users whose valid_until has passed.
	TaskUsersExpiryReport = "users:expiry_report"
	// DefaultExpiryReportCron runs the report every morning.
	DefaultExpiryReportCron = "0 6 * * *"
)

// ExpiryReportPayload describes one expiry report run.
type ExpiryReportPayload struct {
	// Trigger names what enqueued the run, such as "cron" or "manual".
	Trigger string `json:"trigger"`
	// RequestedAt is informational only; the report always uses the current time.
	RequestedAt time.Time `json:"requested_at"`
}

// NewExpiryReportTask constructs an Asynq task for the expiry report.
func NewExpiryReportTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(ExpiryReportPayload{Trigger: trigger, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("jobs: encode expiry report payload: %w", err)
	}
	return asynq.NewTask(TaskUsersExpiryReport, data, asynq.Queue(QueueAccessReview)), nil
}
