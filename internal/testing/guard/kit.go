package guard

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
	"github.com/odyssey-erp/accessdesk/internal/view"
)

// AuditSink collects audit records in memory.
type AuditSink struct {
	mu      sync.Mutex
	Entries []shared.AuditLog
}

// Record implements tablemaint.AuditRecorder.
func (a *AuditSink) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Entries = append(a.Entries, log)
	return nil
}

// Kit builds a table maintenance kit with real templates and the given guard.
func Kit(t testing.TB, g rbac.Guard, audit tablemaint.AuditRecorder) *tablemaint.Kit {
	t.Helper()
	engine, err := view.NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	return &tablemaint.Kit{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Templates: engine,
		CSRF:      shared.NewCSRFManager("test-secret"),
		Guard:     g,
		Audit:     audit,
		Forms:     tablemaint.NewForms(),
	}
}
