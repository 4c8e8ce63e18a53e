package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/accessdesk/internal/jobs"
	"github.com/odyssey-erp/accessdesk/internal/rbac"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ExpiredUserLister lists users whose valid_until has passed.
type ExpiredUserLister interface {
	ListExpired(ctx context.Context) ([]rbac.User, error)
}

// ExpiryReportJob logs one warning per expired user so operators can revoke
// their roles.
type ExpiryReportJob struct {
	Users   ExpiredUserLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewExpiryReportJob wires dependencies for the expiry report handler.
func NewExpiryReportJob(users ExpiredUserLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpiryReportJob {
	return &ExpiryReportJob{Users: users, Logger: logger, Metrics: metrics, Timeout: time.Minute}
}

// Handle processes TaskUsersExpiryReport tasks.
func (j *ExpiryReportJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Users == nil {
		return errors.New("expiry report: handler not configured")
	}
	var payload ExpiryReportPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("expiry report: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskUsersExpiryReport)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	expired, err := j.Users.ListExpired(ctx)
	if err != nil {
		logger.Error("list expired users", slog.Any("error", err))
		return fmt.Errorf("expiry report: %w", err)
	}
	for _, u := range expired {
		attrs := []any{slog.Int64("user_id", u.ID), slog.String("email", u.Email)}
		if u.ValidUntil != nil {
			attrs = append(attrs, slog.Time("valid_until", *u.ValidUntil))
		}
		logger.Warn("user access expired", attrs...)
	}
	j.metrics().SetExpiredUsers(len(expired))
	logger.Info("completed expiry report", slog.Int("expired", len(expired)))
	return nil
}

func (j *ExpiryReportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskUsersExpiryReport))
	}
	return slog.Default().With(slog.String("job", TaskUsersExpiryReport))
}

func (j *ExpiryReportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
