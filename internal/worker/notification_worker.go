package worker

import (
	"context"

	"github.com/spec-kit/ticket-sla-engine/internal/events"
	"github.com/spec-kit/ticket-sla-engine/internal/service"
)

// StartNotificationWorker registers notification handlers and starts the
// dispatcher's delivery goroutines. The returned func drains the queue.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, dispatcher *events.QueueDispatcher) func() {
	if notificationService == nil || dispatcher == nil {
		return func() {}
	}
	notificationService.RegisterHandlers()
	dispatcher.Start(ctx)
	return dispatcher.Stop
}
