package worker

import (
	"github.com/lastwayz/ticketd/internal/engine"
)

// StartAuditWorker registers audit-trail handlers.
func StartAuditWorker(auditService *engine.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
