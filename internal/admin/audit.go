package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// configAudit is the audit record of one runtime config write. Every
// attempt is recorded, including rejected ones, with the ledger bound
// before and after the write.
type configAudit struct {
	logger    *slog.Logger
	requestID string
	client    string
	start     time.Time
	attrs     []any
}

func (s *Server) beginConfigAudit(r *http.Request) *configAudit {
	return &configAudit{
		logger:    s.audit,
		requestID: uuid.NewString(),
		client:    clientAddr(r),
		start:     time.Now(),
	}
}

func (a *configAudit) add(args ...any) {
	a.attrs = append(a.attrs, args...)
}

func (a *configAudit) finish(status int) {
	args := append([]any{
		"request_id", a.requestID,
		"client", a.client,
		"response_status", status,
		"duration_ms", time.Since(a.start).Milliseconds(),
	}, a.attrs...)
	if status >= http.StatusBadRequest {
		a.logger.Warn("runtime config write rejected", args...)
		return
	}
	a.logger.Info("runtime config write applied", args...)
}
