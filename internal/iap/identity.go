// Package iap resolves the caller identity asserted by Identity-Aware Proxy.
package iap

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Request headers set by the platform in front of the service.
const (
	HeaderAssertion    = "X-Goog-IAP-JWT-Assertion"
	HeaderCron         = "X-Appengine-Cron"
	HeaderQueueName    = "X-AppEngine-QueueName"
	HeaderForwardedFor = "X-Forwarded-For"
)

// CronJobEmail is the synthetic identity given to platform cron requests.
const CronJobEmail = "cron_job"

// Identity is the verified caller. The zero value means unverified.
type Identity struct {
	Email   string
	Subject string
}

// Verified reports whether the identity carries an email.
func (i Identity) Verified() bool {
	return i.Email != ""
}

// AssertionVerifier validates a signed IAP assertion.
type AssertionVerifier interface {
	Verify(ctx context.Context, assertion string) (Identity, error)
}

// Resolver turns an inbound request into an Identity.
type Resolver struct {
	verifier AssertionVerifier
	logger   *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(verifier AssertionVerifier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{verifier: verifier, logger: logger}
}

// Resolve never fails: any verification problem yields the zero Identity.
func (r *Resolver) Resolve(req *http.Request) Identity {
	if IsCron(req) {
		return Identity{Email: CronJobEmail}
	}
	assertion := strings.TrimSpace(req.Header.Get(HeaderAssertion))
	if assertion == "" || r.verifier == nil {
		return Identity{}
	}
	identity, err := r.verifier.Verify(req.Context(), assertion)
	if err != nil {
		r.logger.Debug("iap assertion rejected",
			slog.String("path", req.URL.Path),
			slog.Any("error", err))
		return Identity{}
	}
	return identity
}

// IsCron reports whether the platform scheduler issued the request.
func IsCron(req *http.Request) bool {
	return req.Header.Get(HeaderCron) == "true"
}

// QueueName returns the task queue that dispatched the request, if any.
func QueueName(req *http.Request) string {
	return strings.TrimSpace(req.Header.Get(HeaderQueueName))
}

// ForwardedFor returns the client address chain for log lines.
func ForwardedFor(req *http.Request) string {
	if v := req.Header.Get(HeaderForwardedFor); v != "" {
		return v
	}
	return "None"
}
